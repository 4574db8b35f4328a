package enrich

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/verdantlab/flora-cli/internal/georesolve"
	"github.com/verdantlab/flora-cli/internal/model"
	"github.com/verdantlab/flora-cli/internal/resilience"
	"github.com/verdantlab/flora-cli/internal/store"
	"github.com/verdantlab/flora-cli/internal/throttle"
)

const nativityPipeline = "nativity"

// AreaSource provides the pre-tokenized native-area list for a taxon.
type AreaSource interface {
	NativeAreas(ctx context.Context, id string) ([]string, error)
	TaxonURL(id string) string
}

// AreaExpander expands a named geographic unit to its leaf-level units.
// An empty result means the unit is unknown and the raw token stands.
type AreaExpander interface {
	Expand(areaName string) []string
}

// CountryResolver maps a place token (possibly composite) to country names.
type CountryResolver interface {
	ResolveAll(ctx context.Context, token string) ([]string, error)
}

// Nativity is the native-range enrichment pass.
type Nativity struct {
	areas      AreaSource
	expander   AreaExpander
	countries  CountryResolver
	cache      store.Store
	limiter    *throttle.Controller
	retryBlank bool
}

// NativityOption configures the pass.
type NativityOption func(*Nativity)

// WithRetryBlank re-attempts cached entries whose country list came up
// empty, instead of treating them as settled.
func WithRetryBlank(retry bool) NativityOption {
	return func(n *Nativity) { n.retryBlank = retry }
}

// NewNativity wires the nativity pass. expander and cache may be nil.
func NewNativity(areas AreaSource, expander AreaExpander, countries CountryResolver, cache store.Store, limiter *throttle.Controller, opts ...NativityOption) *Nativity {
	if limiter == nil {
		limiter = throttle.New(throttle.DefaultConfig())
	}
	n := &Nativity{
		areas:     areas,
		expander:  expander,
		countries: countries,
		cache:     cache,
		limiter:   limiter,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Run enriches every taxon identifier sequentially, absorbing per-record
// failures.
func (n *Nativity) Run(ctx context.Context, ids []string) ([]model.NativityResult, Summary) {
	summary := Summary{Total: len(ids)}
	results := make([]model.NativityResult, 0, len(ids))
	progress := NewReporter("nativity", len(ids), defaultProgressEvery)

	for i, id := range ids {
		if ctx.Err() != nil {
			zap.L().Warn("nativity pass interrupted", zap.Int("done", i))
			break
		}

		res, cached := n.EnrichTaxon(ctx, id)
		if cached {
			summary.CacheHits++
		}
		switch {
		case res.Error != "":
			summary.Errors++
		case res.HasCountries():
			summary.Resolved++
		default:
			summary.Unmatched++
		}

		results = append(results, res)
		progress.Step(i + 1)
	}

	zap.L().Info("nativity pass complete",
		zap.Int("total", summary.Total),
		zap.Int("with_countries", summary.Resolved),
		zap.Int("blank", summary.Unmatched),
		zap.Int("errors", summary.Errors),
		zap.Int("cache_hits", summary.CacheHits),
	)
	return results, summary
}

// EnrichTaxon derives the native areas and country set for one taxon. The
// second return reports whether the result came from cache.
func (n *Nativity) EnrichTaxon(ctx context.Context, taxonID string) (model.NativityResult, bool) {
	taxonID = strings.TrimSpace(taxonID)
	if taxonID == "" {
		return model.NativityResult{}, false
	}
	key := strings.ToLower(taxonID)

	if cached, ok := n.cacheGet(ctx, key); ok {
		return *cached, true
	}

	res := model.NativityResult{TaxonID: taxonID, SourceURL: n.areas.TaxonURL(taxonID)}

	n.limiter.Sleep(ctx)
	raw, err := n.areas.NativeAreas(ctx, taxonID)
	if err != nil {
		n.signal(err)
		res.Error = err.Error()
		n.cachePut(ctx, key, res)
		return res, false
	}
	n.limiter.OnSuccess()

	res.Areas = splitAreas(raw)
	res.Countries = n.resolveCountries(ctx, res.Areas)

	n.cachePut(ctx, key, res)
	return res, false
}

// resolveCountries maps area tokens to a deduplicated, insertion-ordered
// country set. Per-token failures are logged and skipped; a lookup failure
// must not discard the countries already attributed.
func (n *Nativity) resolveCountries(ctx context.Context, areas []string) []string {
	var countries []string
	seen := map[string]bool{}

	for _, area := range areas {
		for _, unit := range n.expand(area) {
			resolved, err := n.countries.ResolveAll(ctx, unit)
			if err != nil {
				n.signal(err)
				zap.L().Debug("country resolution failed",
					zap.String("area", unit),
					zap.Error(err),
				)
				continue
			}
			for _, c := range resolved {
				lc := strings.ToLower(c)
				if !seen[lc] {
					seen[lc] = true
					countries = append(countries, c)
				}
			}
		}
	}
	return countries
}

// expand maps an area token to leaf-level units, falling back to the raw
// token when the hierarchy does not know it.
func (n *Nativity) expand(area string) []string {
	if n.expander == nil {
		return []string{area}
	}
	if leaves := n.expander.Expand(area); len(leaves) > 0 {
		return leaves
	}
	return []string{area}
}

func (n *Nativity) signal(err error) {
	if resilience.IsThrottle(err) {
		n.limiter.OnThrottle()
	} else {
		n.limiter.OnError()
	}
}

// splitAreas splits composite pipe-delimited tokens into individual area
// tokens, preserving order and dropping duplicates.
func splitAreas(raw []string) []string {
	var areas []string
	seen := map[string]bool{}
	for _, token := range raw {
		for _, part := range georesolve.SplitTokens(token) {
			lc := strings.ToLower(part)
			if !seen[lc] {
				seen[lc] = true
				areas = append(areas, part)
			}
		}
	}
	return areas
}

func (n *Nativity) cacheGet(ctx context.Context, key string) (*model.NativityResult, bool) {
	if n.cache == nil || key == "" {
		return nil, false
	}
	entry, err := n.cache.Get(ctx, nativityPipeline, key)
	if err != nil {
		zap.L().Warn("nativity cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if entry == nil {
		return nil, false
	}

	var res model.NativityResult
	if err := json.Unmarshal(entry.Value, &res); err != nil {
		return nil, false
	}
	if entry.Success {
		return &res, true
	}
	// A clean-but-blank entry is settled under the default policy and
	// re-attempted under the stricter one; errored entries always retry.
	if !n.retryBlank && res.Error == "" && res.SourceURL != "" {
		return &res, true
	}
	return nil, false
}

func (n *Nativity) cachePut(ctx context.Context, key string, res model.NativityResult) {
	if n.cache == nil || key == "" {
		return
	}
	success := res.Error == "" && res.HasCountries()
	if err := store.PutJSON(ctx, n.cache, nativityPipeline, key, res, success); err != nil {
		zap.L().Warn("nativity cache write failed", zap.String("key", key), zap.Error(err))
	}
}
