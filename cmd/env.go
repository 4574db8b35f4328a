package main

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/verdantlab/flora-cli/internal/area"
	"github.com/verdantlab/flora-cli/internal/config"
	"github.com/verdantlab/flora-cli/internal/enrich"
	"github.com/verdantlab/flora-cli/internal/georesolve"
	"github.com/verdantlab/flora-cli/internal/match"
	"github.com/verdantlab/flora-cli/internal/model"
	"github.com/verdantlab/flora-cli/internal/store"
	"github.com/verdantlab/flora-cli/internal/synonym"
	"github.com/verdantlab/flora-cli/internal/throttle"
	"github.com/verdantlab/flora-cli/pkg/gbif"
	"github.com/verdantlab/flora-cli/pkg/wfo"
	"github.com/verdantlab/flora-cli/pkg/wikidata"
)

// openStore opens and migrates the configured cache backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		s, err = store.NewSQLite(cfg.Store.Path)
	case "postgres":
		s, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

// newThrottle builds a throttle controller from configuration. Each pass
// gets its own controller: the adaptive state models one upstream sequence.
func newThrottle(cfg config.ThrottleConfig) *throttle.Controller {
	return throttle.New(throttle.Config{
		Initial:        time.Duration(cfg.InitialMS) * time.Millisecond,
		Max:            time.Duration(cfg.MaxMS) * time.Millisecond,
		UpMultiplier:   cfg.UpMultiplier,
		DownMultiplier: cfg.DownMultiplier,
		SuccessWindow:  cfg.SuccessWindow,
	})
}

// gbifSearcher adapts the GBIF match endpoint to the candidate-search
// contract: the primary usage plus all alternatives become one reference set.
type gbifSearcher struct {
	client gbif.Client
}

func (s gbifSearcher) Search(ctx context.Context, name string) ([]model.ReferenceRecord, error) {
	resp, err := s.client.MatchName(ctx, name)
	if err != nil {
		return nil, err
	}

	var records []model.ReferenceRecord
	add := func(c gbif.MatchCandidate) {
		if c.UsageKey == 0 {
			return
		}
		records = append(records, model.ReferenceRecord{
			ID:             strconv.FormatInt(c.UsageKey, 10),
			ScientificName: c.ScientificName,
			DisplayName:    c.CanonicalName,
		})
	}
	if resp.Usage != nil {
		add(*resp.Usage)
	}
	for _, c := range resp.Candidates {
		add(c)
	}
	return records, nil
}

// newResolveStack wires the name-resolution pass from configuration.
func newResolveStack(cfg *config.Config, cache store.Store) *enrich.Resolver {
	client := gbif.NewClient(
		gbif.WithBaseURL(cfg.GBIF.BaseURL),
		gbif.WithRateLimit(cfg.GBIF.RateLimit),
	)
	accepted := synonym.NewResolver(client, cache, synonym.WithMaxHops(cfg.Resolve.MaxHops))
	matcher := match.NewMatcher(
		match.WithThresholds(cfg.Resolve.SpeciesThreshold, cfg.Resolve.GenusThreshold),
	)
	return enrich.NewResolver(gbifSearcher{client: client}, accepted, matcher, cache, newThrottle(cfg.Throttle),
		enrich.WithLexicon(client),
	)
}

// newNativityStack wires the native-range pass from configuration. The area
// hierarchy is optional; without one, raw tokens go straight to country
// resolution.
func newNativityStack(cfg *config.Config, cache store.Store) (*enrich.Nativity, error) {
	var expander enrich.AreaExpander
	if cfg.Nativity.HierarchyPath != "" {
		h, err := area.Load(cfg.Nativity.HierarchyPath)
		if err != nil {
			return nil, eris.Wrap(err, "load area hierarchy")
		}
		expander = h
	}

	kb := wikidata.NewClient(
		wikidata.WithEndpoint(cfg.Wikidata.Endpoint),
		wikidata.WithRateLimit(cfg.Wikidata.RateLimit),
	)
	countries := georesolve.NewResolver(kb, cache,
		georesolve.WithClimbDepth(cfg.Wikidata.ClimbDepth),
		georesolve.WithRetryBlank(cfg.Nativity.RetryBlank),
	)
	areas := wfo.NewClient(
		wfo.WithBaseURL(cfg.WFO.BaseURL),
		wfo.WithRateLimit(cfg.WFO.RateLimit),
	)

	return enrich.NewNativity(areas, expander, countries, cache, newThrottle(cfg.Throttle),
		enrich.WithRetryBlank(cfg.Nativity.RetryBlank)), nil
}
