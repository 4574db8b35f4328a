package model

// MatchMethod identifies the tier that produced a match.
type MatchMethod string

const (
	MatchExactSpecies MatchMethod = "exact_species"
	MatchFuzzySpecies MatchMethod = "fuzzy_species"
	MatchGenusFuzzy   MatchMethod = "genus_restricted_fuzzy"
	MatchNone         MatchMethod = "no_match"
)

// ReferenceRecord is one candidate in a reference set: a registry record with
// its comparison keys precomputed. DisplayName is the vernacular or listing
// name, which may be empty for sparse records.
type ReferenceRecord struct {
	ID             string `json:"id"`
	ScientificName string `json:"scientific_name"`
	DisplayName    string `json:"display_name,omitempty"`

	SpeciesKey  string `json:"species_key"`
	GenusKey    string `json:"genus_key"`
	FullKey     string `json:"full_key"`
	DisplayNorm string `json:"display_norm"`
}

// TaxonMatch is the outcome of tiered matching: the winning reference record
// (zero-valued when Method is MatchNone), the tier that produced it, and a
// confidence score in [0,100]. MatchExactSpecies always carries score 100.
type TaxonMatch struct {
	Record ReferenceRecord `json:"record"`
	Method MatchMethod     `json:"method"`
	Score  int             `json:"score"`
}

// Matched reports whether any tier accepted a candidate.
func (m TaxonMatch) Matched() bool {
	return m.Method != MatchNone && m.Method != ""
}
