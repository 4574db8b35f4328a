// Package georesolve maps free-text place tokens to sovereign-state names
// using a typed knowledge base. Label matching alone is unreliable: a generic
// place can carry the exact name of a country while sitting inside a
// different country, so the resolver checks country-typed entities before it
// falls back to generic geographic entities and containment climbing.
package georesolve

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/verdantlab/flora-cli/internal/store"
)

// cachePipeline is the store pipeline name for place resolutions.
const cachePipeline = "geo"

// DefaultClimbDepth bounds the administrative-parent climb in pass two.
const DefaultClimbDepth = 5

// TypeFilter selects which entity classification a label search applies.
type TypeFilter string

const (
	// TypeCountry restricts results to country / sovereign-state entities.
	TypeCountry TypeFilter = "country"
	// TypeGeographic restricts results to entities that are geographic
	// objects: they carry coordinates or a geographical-feature class.
	TypeGeographic TypeFilter = "geographic"
)

// Entity is one knowledge-base entity.
type Entity struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// KnowledgeBase is the query surface the resolver needs. Implementations
// wrap a structured knowledge graph such as Wikidata.
type KnowledgeBase interface {
	FindByLabelAndType(ctx context.Context, label string, filter TypeFilter) ([]Entity, error)
	EntityCountry(ctx context.Context, e Entity) (string, error)
	EntityParent(ctx context.Context, e Entity) (*Entity, error)
}

// Resolver resolves place labels to country names with durable caching.
type Resolver struct {
	kb         KnowledgeBase
	cache      store.Store
	climbDepth int
	retryBlank bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClimbDepth overrides the containment-climb bound.
func WithClimbDepth(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.climbDepth = n
		}
	}
}

// WithRetryBlank makes cached empty results non-authoritative: a place that
// previously resolved to nothing is asked again instead of being served from
// cache.
func WithRetryBlank(retry bool) Option {
	return func(r *Resolver) { r.retryBlank = retry }
}

// NewResolver creates a Resolver. cache may be nil, disabling caching.
func NewResolver(kb KnowledgeBase, cache store.Store, opts ...Option) *Resolver {
	r := &Resolver{kb: kb, cache: cache, climbDepth: DefaultClimbDepth}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SplitTokens splits a composite distribution token on pipe separators and
// trims the parts. A token without separators comes back as a single part.
func SplitTokens(token string) []string {
	var parts []string
	for _, p := range strings.Split(token, "|") {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// ResolveCountry resolves one place label to its sovereign-state names.
// Country-typed entities matching the label are authoritative and short-
// circuit the generic lookup. An empty result is not an error; it means the
// knowledge base has no usable entity for the label.
func (r *Resolver) ResolveCountry(ctx context.Context, place string) ([]string, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return nil, nil
	}
	key := strings.ToLower(place)

	if countries, ok := r.cacheGet(ctx, key); ok {
		return countries, nil
	}

	countries, err := r.lookup(ctx, place)
	if err != nil {
		return nil, err
	}

	r.cachePut(ctx, key, countries)
	return countries, nil
}

// ResolveAll splits a composite token, resolves each part, and merges the
// results preserving first-seen order.
func (r *Resolver) ResolveAll(ctx context.Context, token string) ([]string, error) {
	var merged []string
	seen := map[string]bool{}
	for _, part := range SplitTokens(token) {
		countries, err := r.ResolveCountry(ctx, part)
		if err != nil {
			return nil, err
		}
		for _, c := range countries {
			lc := strings.ToLower(c)
			if !seen[lc] {
				seen[lc] = true
				merged = append(merged, c)
			}
		}
	}
	return merged, nil
}

func (r *Resolver) lookup(ctx context.Context, place string) ([]string, error) {
	// Pass one: a label that names a country resolves to that country, never
	// to a homonymous place inside some other country.
	states, err := r.kb.FindByLabelAndType(ctx, place, TypeCountry)
	if err != nil {
		return nil, eris.Wrapf(err, "georesolve: country lookup %q", place)
	}
	if len(states) > 0 {
		return dedupLabels(states), nil
	}

	// Pass two: generic geographic entities, resolved through their country
	// property or a bounded climb of administrative parents.
	entities, err := r.kb.FindByLabelAndType(ctx, place, TypeGeographic)
	if err != nil {
		return nil, eris.Wrapf(err, "georesolve: geographic lookup %q", place)
	}

	var countries []string
	seen := map[string]bool{}
	for _, e := range entities {
		country, err := r.entityCountry(ctx, e)
		if err != nil {
			zap.L().Debug("entity country resolution failed",
				zap.String("place", place),
				zap.String("entity", e.ID),
				zap.Error(err),
			)
			continue
		}
		if country == "" {
			continue
		}
		lc := strings.ToLower(country)
		if !seen[lc] {
			seen[lc] = true
			countries = append(countries, country)
		}
	}
	return countries, nil
}

// entityCountry returns the entity's country, climbing administrative
// parents up to the depth bound when the entity itself carries none.
func (r *Resolver) entityCountry(ctx context.Context, e Entity) (string, error) {
	current := e
	for depth := 0; depth <= r.climbDepth; depth++ {
		country, err := r.kb.EntityCountry(ctx, current)
		if err != nil {
			return "", err
		}
		if country != "" {
			return country, nil
		}

		parent, err := r.kb.EntityParent(ctx, current)
		if err != nil {
			return "", err
		}
		if parent == nil {
			return "", nil
		}
		current = *parent
	}
	return "", nil
}

func (r *Resolver) cacheGet(ctx context.Context, key string) ([]string, bool) {
	if r.cache == nil {
		return nil, false
	}
	entry, err := r.cache.Get(ctx, cachePipeline, key)
	if err != nil {
		zap.L().Warn("geo cache read failed", zap.String("place", key), zap.Error(err))
		return nil, false
	}
	if entry == nil {
		return nil, false
	}
	if !entry.Success && r.retryBlank {
		return nil, false
	}
	var countries []string
	if err := json.Unmarshal(entry.Value, &countries); err != nil {
		return nil, false
	}
	return countries, true
}

func (r *Resolver) cachePut(ctx context.Context, key string, countries []string) {
	if r.cache == nil {
		return
	}
	if countries == nil {
		countries = []string{}
	}
	if err := store.PutJSON(ctx, r.cache, cachePipeline, key, countries, len(countries) > 0); err != nil {
		zap.L().Warn("geo cache write failed", zap.String("place", key), zap.Error(err))
	}
}

func dedupLabels(entities []Entity) []string {
	var labels []string
	seen := map[string]bool{}
	for _, e := range entities {
		lc := strings.ToLower(e.Label)
		if e.Label != "" && !seen[lc] {
			seen[lc] = true
			labels = append(labels, e.Label)
		}
	}
	return labels
}
