// Package nameparse canonicalizes raw botanical name strings into the
// comparison keys used by the tiered matcher. Normalization is total: any
// input, including garbage, yields a NormalizedName with possibly empty keys.
package nameparse

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/verdantlab/flora-cli/internal/model"
)

// rankMarkers are taxonomic rank and connector tokens stripped before key
// derivation. "x" also covers the ASCII hybrid marker after glyph folding.
var rankMarkers = map[string]bool{
	"sp": true, "spp": true, "ssp": true, "subsp": true,
	"var": true, "forma": true, "f": true,
	"cv": true, "cultivar": true, "x": true,
}

var (
	cultivarRe    = regexp.MustCompile(`['"][^'"]+['"]`)
	punctuationRe = regexp.MustCompile(`[(),.;:\[\]]`)
	spaceRe       = regexp.MustCompile(`\s+`)
)

// fullKeyTokens is the number of tokens kept in FullKey.
const fullKeyTokens = 5

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldDiacritics strips combining marks so "Æsculus" and "Aesculus"-style
// author noise compares stably. Falls back to the input on transform failure.
func foldDiacritics(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		return s
	}
	return out
}

// Clean lowercases, removes quoted cultivar epithets, unifies hybrid glyphs,
// drops punctuation, and collapses whitespace. It does not strip rank markers;
// those are removed during tokenization.
func Clean(raw string) string {
	s := cultivarRe.ReplaceAllString(raw, " ")
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "×", "x") // multiplication-sign hybrid marker
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = foldDiacritics(s)
	s = punctuationRe.ReplaceAllString(s, " ")
	return spaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
}

// Tokens returns the cleaned tokens of a name with rank markers removed.
func Tokens(raw string) []string {
	cleaned := Clean(raw)
	if cleaned == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Fields(cleaned) {
		if rankMarkers[t] {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Normalize derives the canonical form and comparison keys for a raw name.
// Idempotent: normalizing an already-normalized clean form yields the same keys.
func Normalize(raw string) model.NormalizedName {
	toks := Tokens(raw)

	n := model.NormalizedName{
		Raw:   raw,
		Clean: Clean(raw),
	}
	if len(toks) == 0 {
		return n
	}

	n.GenusKey = toks[0]
	if len(toks) >= 2 {
		n.SpeciesKey = toks[0] + " " + toks[1]
	} else {
		n.SpeciesKey = toks[0]
	}

	full := toks
	if len(full) > fullKeyTokens {
		full = full[:fullKeyTokens]
	}
	n.FullKey = strings.Join(full, " ")

	return n
}
