// Package enrich runs the record-by-record enrichment passes: name
// resolution to accepted taxon identifiers, and native-range derivation per
// taxon. Execution is strictly sequential; the shared throttle state is only
// meaningful as a single call sequence against each upstream, and every
// record's result is cached as soon as it is computed so an interrupted run
// resumes where it stopped.
package enrich

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/verdantlab/flora-cli/internal/match"
	"github.com/verdantlab/flora-cli/internal/model"
	"github.com/verdantlab/flora-cli/internal/nameparse"
	"github.com/verdantlab/flora-cli/internal/resilience"
	"github.com/verdantlab/flora-cli/internal/store"
	"github.com/verdantlab/flora-cli/internal/throttle"
)

const (
	resolvePipeline    = "resolve"
	synonymsPipeline   = "synonyms"
	vernacularPipeline = "vernacular"
)

// NameSearcher finds candidate reference records for a free-text name.
type NameSearcher interface {
	Search(ctx context.Context, name string) ([]model.ReferenceRecord, error)
}

// AcceptedResolver climbs a matched identifier to its accepted taxon.
type AcceptedResolver interface {
	ResolveAccepted(ctx context.Context, id string) (*model.AcceptedTaxon, error)
}

// LexiconSource provides the synonym list and common names behind an
// accepted identifier.
type LexiconSource interface {
	Synonyms(ctx context.Context, id string) ([]string, error)
	VernacularNames(ctx context.Context, id string) ([]model.VernacularName, error)
}

// Summary is the end-of-pass accounting reported to the user.
type Summary struct {
	Total     int
	Resolved  int
	Unmatched int
	Errors    int
	CacheHits int
}

// Resolver is the name-resolution pass.
type Resolver struct {
	search   NameSearcher
	accepted AcceptedResolver
	lexicon  LexiconSource
	matcher  *match.Matcher
	cache    store.Store
	limiter  *throttle.Controller
}

// ResolverOption configures the pass.
type ResolverOption func(*Resolver)

// WithLexicon enables synonym-list and common-name enrichment of each
// resolved record.
func WithLexicon(l LexiconSource) ResolverOption {
	return func(r *Resolver) { r.lexicon = l }
}

// NewResolver wires the resolution pass. cache may be nil, disabling
// resume-on-failure.
func NewResolver(search NameSearcher, accepted AcceptedResolver, matcher *match.Matcher, cache store.Store, limiter *throttle.Controller, opts ...ResolverOption) *Resolver {
	if matcher == nil {
		matcher = match.NewMatcher()
	}
	if limiter == nil {
		limiter = throttle.New(throttle.DefaultConfig())
	}
	r := &Resolver{
		search:   search,
		accepted: accepted,
		matcher:  matcher,
		cache:    cache,
		limiter:  limiter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run resolves every row sequentially. Per-row failures are absorbed into
// the row's result so the batch always completes full-width.
func (r *Resolver) Run(ctx context.Context, rows []model.PlantRow) ([]model.ResolutionResult, Summary) {
	summary := Summary{Total: len(rows)}
	results := make([]model.ResolutionResult, 0, len(rows))
	progress := NewReporter("resolve", len(rows), defaultProgressEvery)

	for i, row := range rows {
		if ctx.Err() != nil {
			zap.L().Warn("resolution pass interrupted", zap.Int("done", i))
			break
		}

		res, cached := r.ResolveRow(ctx, row)
		if cached {
			summary.CacheHits++
		}
		switch {
		case res.Error != "":
			summary.Errors++
		case res.Resolved():
			summary.Resolved++
		default:
			summary.Unmatched++
		}

		results = append(results, res)
		progress.Step(i + 1)
	}

	zap.L().Info("resolution pass complete",
		zap.Int("total", summary.Total),
		zap.Int("resolved", summary.Resolved),
		zap.Int("unmatched", summary.Unmatched),
		zap.Int("errors", summary.Errors),
		zap.Int("cache_hits", summary.CacheHits),
	)
	return results, summary
}

// ResolveRow resolves one input row, trying the primary name first and then
// each alternate until one reaches an identifier. The second return reports
// whether the winning result came from cache.
func (r *Resolver) ResolveRow(ctx context.Context, row model.PlantRow) (model.ResolutionResult, bool) {
	var first *model.ResolutionResult
	firstCached := false
	for _, name := range row.Candidates() {
		res, cached := r.resolveName(ctx, name)
		res.Input = row.Name
		if res.Resolved() {
			return res, cached
		}
		if first == nil {
			first = &res
			firstCached = cached
		}
	}

	if first == nil {
		return model.ResolutionResult{Input: row.Name, Method: model.MatchNone}, false
	}
	return *first, firstCached
}

// resolveName resolves a single name string: cache, candidate search, tiered
// match, synonym chain.
func (r *Resolver) resolveName(ctx context.Context, name string) (model.ResolutionResult, bool) {
	key := cacheKey(name)

	if cached, ok := r.cacheGet(ctx, key); ok {
		return *cached, true
	}

	res := model.ResolutionResult{QueryUsed: name, Method: model.MatchNone}

	r.limiter.Sleep(ctx)
	candidates, err := r.search.Search(ctx, name)
	if err != nil {
		r.signal(err)
		res.Error = err.Error()
		r.cachePut(ctx, key, res)
		return res, false
	}
	r.limiter.OnSuccess()

	ref := match.NewReference(candidates)
	m := r.matcher.Match(nameparse.Normalize(name), ref)
	if !m.Matched() {
		r.cachePut(ctx, key, res)
		return res, false
	}

	res.Method = m.Method
	res.Score = m.Score
	res.MatchedID = m.Record.ID
	res.MatchedName = m.Record.ScientificName

	accepted, err := r.accepted.ResolveAccepted(ctx, m.Record.ID)
	if err != nil {
		// The match stands; only the accepted-name fields are lost.
		r.signal(err)
		res.Error = err.Error()
	} else {
		res.AcceptedID = accepted.Record.ID
		res.AcceptedName = accepted.Record.ScientificName
		res.AcceptedStatus = accepted.Record.Status
		res.AcceptedFamily = accepted.Record.Family
		res.AcceptedHops = accepted.Hops
	}

	r.enrichLexicon(ctx, &res)

	r.cachePut(ctx, key, res)
	return res, false
}

// enrichLexicon attaches the synonym list and preferred English name behind
// the resolved identifier. Lookups go through the accepted identifier,
// falling back to the matched one when the chain climb failed. The matched
// scientific name leads the synonym list so a synonym input stays auditable.
func (r *Resolver) enrichLexicon(ctx context.Context, res *model.ResolutionResult) {
	if r.lexicon == nil {
		return
	}
	id := res.AcceptedID
	if id == "" {
		id = res.MatchedID
	}
	if id == "" {
		return
	}

	synonyms, err := r.fetchSynonyms(ctx, id)
	if err != nil {
		r.signal(err)
		res.Error = err.Error()
		return
	}
	if res.MatchedName != "" {
		synonyms = append([]string{res.MatchedName}, synonyms...)
	}
	res.Synonyms = dedupeFold(synonyms)

	vernaculars, err := r.fetchVernaculars(ctx, id)
	if err != nil {
		r.signal(err)
		res.Error = err.Error()
		return
	}
	res.EnglishName = primaryEnglishName(vernaculars)
}

// fetchSynonyms memoizes the per-identifier synonym list under its own
// pipeline; an empty list is a settled answer.
func (r *Resolver) fetchSynonyms(ctx context.Context, id string) ([]string, error) {
	key := strings.ToLower(id)
	if r.cache != nil {
		if names, ok, err := store.GetJSON[[]string](ctx, r.cache, synonymsPipeline, key); err == nil && ok {
			return *names, nil
		}
	}

	r.limiter.Sleep(ctx)
	names, err := r.lexicon.Synonyms(ctx, id)
	if err != nil {
		return nil, err
	}
	r.limiter.OnSuccess()

	if names == nil {
		names = []string{}
	}
	if r.cache != nil {
		if err := store.PutJSON(ctx, r.cache, synonymsPipeline, key, names, true); err != nil {
			zap.L().Warn("synonyms cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return names, nil
}

// fetchVernaculars memoizes the per-identifier common-name list under its
// own pipeline.
func (r *Resolver) fetchVernaculars(ctx context.Context, id string) ([]model.VernacularName, error) {
	key := strings.ToLower(id)
	if r.cache != nil {
		if names, ok, err := store.GetJSON[[]model.VernacularName](ctx, r.cache, vernacularPipeline, key); err == nil && ok {
			return *names, nil
		}
	}

	r.limiter.Sleep(ctx)
	names, err := r.lexicon.VernacularNames(ctx, id)
	if err != nil {
		return nil, err
	}
	r.limiter.OnSuccess()

	if names == nil {
		names = []model.VernacularName{}
	}
	if r.cache != nil {
		if err := store.PutJSON(ctx, r.cache, vernacularPipeline, key, names, true); err != nil {
			zap.L().Warn("vernacular cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return names, nil
}

// primaryEnglishName picks the name to surface as the common name:
// registry-preferred entries first, then language-coded English, then
// anything left; within a pool, names shorter than four characters lose,
// ties break by length then lexically.
func primaryEnglishName(vernaculars []model.VernacularName) string {
	if len(vernaculars) == 0 {
		return ""
	}

	var preferred, english, all []string
	for _, v := range vernaculars {
		all = append(all, v.Name)
		if v.Language != "" {
			english = append(english, v.Name)
		}
		if v.Preferred {
			preferred = append(preferred, v.Name)
		}
	}

	pool := preferred
	if len(pool) == 0 {
		pool = english
	}
	if len(pool) == 0 {
		pool = all
	}

	var long []string
	for _, n := range pool {
		if len(n) >= 4 {
			long = append(long, n)
		}
	}
	if len(long) > 0 {
		pool = long
	}

	best := pool[0]
	for _, n := range pool[1:] {
		if len(n) < len(best) || (len(n) == len(best) && strings.ToLower(n) < strings.ToLower(best)) {
			best = n
		}
	}
	return best
}

// dedupeFold removes case-insensitive duplicates preserving first-seen
// order.
func dedupeFold(names []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}

// signal feeds an upstream failure into the adaptive throttle.
func (r *Resolver) signal(err error) {
	if resilience.IsThrottle(err) {
		r.limiter.OnThrottle()
	} else {
		r.limiter.OnError()
	}
}

func (r *Resolver) cacheGet(ctx context.Context, key string) (*model.ResolutionResult, bool) {
	if r.cache == nil {
		return nil, false
	}
	entry, err := r.cache.Get(ctx, resolvePipeline, key)
	if err != nil {
		zap.L().Warn("resolve cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if entry == nil {
		return nil, false
	}
	var res model.ResolutionResult
	if err := json.Unmarshal(entry.Value, &res); err != nil {
		return nil, false
	}
	// A clean no-match is a settled answer; only errored entries retry.
	if entry.Success || res.Error == "" {
		return &res, true
	}
	return nil, false
}

func (r *Resolver) cachePut(ctx context.Context, key string, res model.ResolutionResult) {
	if r.cache == nil {
		return
	}
	if err := store.PutJSON(ctx, r.cache, resolvePipeline, key, res, res.Resolved()); err != nil {
		zap.L().Warn("resolve cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// cacheKey derives the cache key for a name: the normalized form, falling
// back to the lowercased raw string when normalization strips everything.
func cacheKey(name string) string {
	if clean := nameparse.Clean(name); clean != "" {
		return clean
	}
	return strings.ToLower(strings.TrimSpace(name))
}
