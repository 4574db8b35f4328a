// Package synonym climbs accepted-name pointers from a matched taxon to the
// terminal accepted taxon. Chains are bounded and cycle-safe, and every
// registry fetch is memoized through the durable cache because many input
// rows converge on the same ancestors.
package synonym

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/verdantlab/flora-cli/internal/model"
	"github.com/verdantlab/flora-cli/internal/store"
)

// cachePipeline is the store pipeline name for taxon detail records.
const cachePipeline = "taxon"

// DefaultMaxHops bounds chain length; real synonym chains are short, so ten
// hops only triggers on pathological registry data.
const DefaultMaxHops = 10

// DetailService fetches one registry record by identifier.
type DetailService interface {
	Species(ctx context.Context, id string) (*model.TaxonRecord, error)
}

// Resolver resolves a starting identifier to its accepted taxon.
type Resolver struct {
	svc     DetailService
	cache   store.Store
	maxHops int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxHops overrides the hop bound.
func WithMaxHops(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxHops = n
		}
	}
}

// NewResolver creates a Resolver. cache may be nil, disabling memoization.
func NewResolver(svc DetailService, cache store.Store, opts ...Option) *Resolver {
	r := &Resolver{svc: svc, cache: cache, maxHops: DefaultMaxHops}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveAccepted climbs accepted pointers from startID until the record is
// no longer synonym-like, the pointer is absent, the hop bound is reached,
// or the chain revisits an identifier. The last visited record is returned
// with the hop count taken; cycles are not errors. Resolving an identifier
// that is already accepted returns it with zero hops.
func (r *Resolver) ResolveAccepted(ctx context.Context, startID string) (*model.AcceptedTaxon, error) {
	startID = strings.TrimSpace(startID)
	if startID == "" {
		return nil, eris.New("synonym: empty identifier")
	}

	current := startID
	visited := map[string]bool{}
	hops := 0

	var rec *model.TaxonRecord
	for hops < r.maxHops && !visited[current] {
		visited[current] = true

		var err error
		rec, err = r.fetch(ctx, current)
		if err != nil {
			return nil, eris.Wrapf(err, "synonym: fetch %s", current)
		}

		if !model.IsSynonymStatus(rec.Status) || rec.AcceptedID == "" {
			return &model.AcceptedTaxon{Record: *rec, Hops: hops}, nil
		}

		current = rec.AcceptedID
		hops++
	}

	if visited[current] {
		zap.L().Debug("synonym chain cycle detected",
			zap.String("start", startID),
			zap.String("at", current),
		)
		// Return the node whose pointer closed the cycle.
		return &model.AcceptedTaxon{Record: *rec, Hops: hops}, nil
	}

	// Hop bound reached: return the record at the frontier.
	rec, err := r.fetch(ctx, current)
	if err != nil {
		return nil, eris.Wrapf(err, "synonym: fetch %s", current)
	}
	return &model.AcceptedTaxon{Record: *rec, Hops: hops}, nil
}

// fetch returns the detail record for id, consulting the cache first.
func (r *Resolver) fetch(ctx context.Context, id string) (*model.TaxonRecord, error) {
	key := strings.ToLower(id)

	if r.cache != nil {
		cached, found, err := store.GetJSON[model.TaxonRecord](ctx, r.cache, cachePipeline, key)
		if err != nil {
			zap.L().Warn("taxon cache read failed", zap.String("id", id), zap.Error(err))
		} else if found {
			return cached, nil
		}
	}

	rec, err := r.svc.Species(ctx, id)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := store.PutJSON(ctx, r.cache, cachePipeline, key, rec, true); err != nil {
			zap.L().Warn("taxon cache write failed", zap.String("id", id), zap.Error(err))
		}
	}

	return rec, nil
}
