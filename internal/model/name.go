// Package model defines the typed records exchanged between pipeline
// components. Raw registry responses are decoded into these types at the
// client boundary; no untyped maps cross package boundaries.
package model

// NormalizedName is the canonical form of a raw botanical name string plus
// the derived comparison keys. Keys are lowercase, whitespace-collapsed, with
// hybrid and rank markers stripped.
type NormalizedName struct {
	Raw        string `json:"raw"`
	Clean      string `json:"clean"`
	SpeciesKey string `json:"species_key"` // genus + species epithet
	GenusKey   string `json:"genus_key"`   // first surviving token
	FullKey    string `json:"full_key"`    // first five surviving tokens
}

// IsEmpty reports whether normalization produced no usable tokens.
func (n NormalizedName) IsEmpty() bool {
	return n.GenusKey == ""
}
