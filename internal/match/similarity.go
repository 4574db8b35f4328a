// Package match implements tiered botanical name matching against a
// reference set: exact species-key lookup, global fuzzy matching, then
// genus-restricted fuzzy matching.
package match

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// Similarity scores how alike two normalized strings are, in [0,100].
// Implementations must be symmetric and return 100 for equal inputs.
type Similarity interface {
	Score(a, b string) int
}

// WeightedRatio is the default similarity strategy: the best of a plain
// edit-distance ratio, a token-sort ratio, and a token-set ratio. Token
// variants absorb author-citation reordering and trailing noise without
// rewarding cross-genus resemblance.
type WeightedRatio struct{}

func (WeightedRatio) Score(a, b string) int {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	best := ratio(a, b)
	if s := ratio(sortTokens(a), sortTokens(b)); s > best {
		best = s
	}
	if s := tokenSetRatio(a, b); s > best {
		best = s
	}
	return best
}

func ratio(a, b string) int {
	return int(levenshtein.Similarity(a, b, nil)*100 + 0.5)
}

func sortTokens(s string) string {
	toks := strings.Fields(s)
	sort.Strings(toks)
	return strings.Join(toks, " ")
}

// tokenSetRatio compares the shared-token core of both strings against each
// full token-sorted string and keeps the higher score. A perfect subset
// (every token of one side present in the other) scores 100.
func tokenSetRatio(a, b string) int {
	ta := strings.Fields(a)
	tb := strings.Fields(b)

	setB := make(map[string]bool, len(tb))
	for _, t := range tb {
		setB[t] = true
	}

	var common []string
	seen := make(map[string]bool, len(ta))
	for _, t := range ta {
		if setB[t] && !seen[t] {
			common = append(common, t)
			seen[t] = true
		}
	}
	if len(common) == 0 {
		return 0
	}
	sort.Strings(common)
	core := strings.Join(common, " ")

	sa := sortTokens(a)
	sb := sortTokens(b)
	if core == sa || core == sb {
		return 100
	}

	best := ratio(core, sa)
	if s := ratio(core, sb); s > best {
		best = s
	}
	return best
}
