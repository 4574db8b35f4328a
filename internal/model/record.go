package model

import "strings"

// PlantRow is one input record: the raw name plus any alternate name columns
// to try in order (canonical name first, then the verbatim input).
type PlantRow struct {
	Name       string
	Alternates []string
}

// Candidates returns the name strings to attempt, deduplicated
// case-insensitively, order preserved.
func (r PlantRow) Candidates() []string {
	all := append([]string{r.Name}, r.Alternates...)
	seen := make(map[string]bool, len(all))
	var out []string
	for _, c := range all {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		k := strings.ToLower(c)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

// ResolutionResult is the cached/output payload of one name resolution.
type ResolutionResult struct {
	Input       string      `json:"input"`
	QueryUsed   string      `json:"query_used,omitempty"`
	Method      MatchMethod `json:"method"`
	Score       int         `json:"score"`
	MatchedID   string      `json:"matched_id,omitempty"`
	MatchedName string      `json:"matched_name,omitempty"`

	AcceptedID     string `json:"accepted_id,omitempty"`
	AcceptedName   string `json:"accepted_name,omitempty"`
	AcceptedStatus string `json:"accepted_status,omitempty"`
	AcceptedFamily string `json:"accepted_family,omitempty"`
	AcceptedHops   int    `json:"accepted_hops"`

	Synonyms    []string `json:"synonyms,omitempty"`
	EnglishName string   `json:"english_name,omitempty"`

	Error string `json:"error,omitempty"`
}

// Resolved reports whether the record reached an identifier.
func (r ResolutionResult) Resolved() bool {
	return r.MatchedID != "" && r.Error == ""
}

// NativityResult is the cached/output payload of one native-range enrichment.
type NativityResult struct {
	TaxonID   string   `json:"taxon_id"`
	SourceURL string   `json:"source_url,omitempty"`
	Areas     []string `json:"areas"`
	Countries []string `json:"countries"`
	Error     string   `json:"error,omitempty"`
}

// HasCountries reports whether at least one country was attributed.
func (r NativityResult) HasCountries() bool {
	return len(r.Countries) > 0
}
