package match

import (
	"github.com/verdantlab/flora-cli/internal/model"
	"github.com/verdantlab/flora-cli/internal/nameparse"
)

// Default acceptance thresholds. Empirically chosen: loose enough to absorb
// author-citation noise, tight enough not to cross genus boundaries.
const (
	DefaultSpeciesThreshold = 90
	DefaultGenusThreshold   = 75
)

// Reference is an indexed reference set. Indexes are built once; lookup is
// by species key, genus bucket, or the full record list.
type Reference struct {
	records     []model.ReferenceRecord
	bySpecies   map[string]int
	byGenus     map[string][]int
	speciesKeys []string
}

// NewReference indexes reference records, computing comparison keys from each
// record's scientific and display names. Records whose scientific name
// normalizes to nothing are dropped. First record wins on species-key
// collisions.
func NewReference(records []model.ReferenceRecord) *Reference {
	r := &Reference{
		bySpecies: make(map[string]int, len(records)),
		byGenus:   make(map[string][]int),
	}

	for _, rec := range records {
		n := nameparse.Normalize(rec.ScientificName)
		if n.IsEmpty() {
			continue
		}
		rec.SpeciesKey = n.SpeciesKey
		rec.GenusKey = n.GenusKey
		rec.FullKey = n.FullKey
		rec.DisplayNorm = nameparse.Clean(rec.DisplayName)

		idx := len(r.records)
		r.records = append(r.records, rec)

		if _, dup := r.bySpecies[rec.SpeciesKey]; !dup {
			r.bySpecies[rec.SpeciesKey] = idx
			r.speciesKeys = append(r.speciesKeys, rec.SpeciesKey)
		}
		r.byGenus[rec.GenusKey] = append(r.byGenus[rec.GenusKey], idx)
	}

	return r
}

// Len returns the number of indexed records.
func (r *Reference) Len() int { return len(r.records) }

// Matcher resolves a normalized query name against a reference set.
type Matcher struct {
	sim              Similarity
	speciesThreshold int
	genusThreshold   int
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithSimilarity overrides the similarity strategy.
func WithSimilarity(s Similarity) Option {
	return func(m *Matcher) { m.sim = s }
}

// WithThresholds overrides the fuzzy acceptance thresholds.
func WithThresholds(species, genus int) Option {
	return func(m *Matcher) {
		m.speciesThreshold = species
		m.genusThreshold = genus
	}
}

// NewMatcher creates a Matcher with the weighted-ratio strategy and default
// thresholds.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{
		sim:              WeightedRatio{},
		speciesThreshold: DefaultSpeciesThreshold,
		genusThreshold:   DefaultGenusThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match runs the tiers in order and returns the first acceptable result.
//
//  1. Exact species-key lookup, score 100.
//  2. Global fuzzy match of the species key, accepted at speciesThreshold.
//  3. Genus-restricted fuzzy match scoring each candidate as the better of
//     full-key similarity and display-name similarity, accepted at
//     genusThreshold. Restricting to the query's genus here keeps a lower
//     threshold from admitting cross-genus candidates.
func (m *Matcher) Match(q model.NormalizedName, ref *Reference) model.TaxonMatch {
	if ref == nil || ref.Len() == 0 || q.IsEmpty() {
		return model.TaxonMatch{Method: model.MatchNone}
	}

	// Tier 1: exact species key.
	if idx, ok := ref.bySpecies[q.SpeciesKey]; ok && q.SpeciesKey != "" {
		return model.TaxonMatch{
			Record: ref.records[idx],
			Method: model.MatchExactSpecies,
			Score:  100,
		}
	}

	// Tier 2: global fuzzy species key.
	if q.SpeciesKey != "" {
		bestKey, bestScore := "", -1
		for _, key := range ref.speciesKeys {
			if s := m.sim.Score(q.SpeciesKey, key); s > bestScore {
				bestKey, bestScore = key, s
			}
		}
		if bestScore >= m.speciesThreshold {
			return model.TaxonMatch{
				Record: ref.records[ref.bySpecies[bestKey]],
				Method: model.MatchFuzzySpecies,
				Score:  bestScore,
			}
		}
	}

	// Tier 3: genus-restricted, two-signal max.
	if q.GenusKey != "" {
		bestIdx, bestScore := -1, -1
		for _, idx := range ref.byGenus[q.GenusKey] {
			rec := ref.records[idx]

			score := 0
			if q.FullKey != "" {
				score = m.sim.Score(q.FullKey, rec.FullKey)
			}
			if rec.DisplayNorm != "" {
				if s := m.sim.Score(q.Clean, rec.DisplayNorm); s > score {
					score = s
				}
			}
			if score > bestScore {
				bestIdx, bestScore = idx, score
			}
		}
		if bestIdx >= 0 && bestScore >= m.genusThreshold {
			return model.TaxonMatch{
				Record: ref.records[bestIdx],
				Method: model.MatchGenusFuzzy,
				Score:  bestScore,
			}
		}
	}

	return model.TaxonMatch{Method: model.MatchNone}
}
