package model

import "strings"

// TaxonRecord is a registry detail record for a single identifier, as
// returned by the taxon detail service. AcceptedID is the pointer to the
// accepted name when the record is a synonym; empty otherwise.
type TaxonRecord struct {
	ID             string `json:"id"`
	ScientificName string `json:"scientific_name,omitempty"`
	CanonicalName  string `json:"canonical_name,omitempty"`
	Status         string `json:"status,omitempty"`
	AcceptedID     string `json:"accepted_id,omitempty"`
	Family         string `json:"family,omitempty"`
}

// VernacularName is one common-name entry for a taxon. Language is a
// lowercase code and may be empty when the registry record carries none.
type VernacularName struct {
	Name      string `json:"name"`
	Language  string `json:"language,omitempty"`
	Preferred bool   `json:"preferred,omitempty"`
}

// synonymStatuses are the taxonomic statuses that carry an accepted-name
// pointer worth following.
var synonymStatuses = map[string]bool{
	"SYNONYM":             true,
	"HOMOTYPIC_SYNONYM":   true,
	"HETEROTYPIC_SYNONYM": true,
	"MISAPPLIED":          true,
	"PROPARTE_SYNONYM":    true,
}

// IsSynonymStatus reports whether a taxonomic status is synonym-like.
// Comparison is case-insensitive; an empty status is not synonym-like.
func IsSynonymStatus(status string) bool {
	return synonymStatuses[strings.ToUpper(strings.TrimSpace(status))]
}

// AcceptedTaxon is the terminal record of a synonym-chain resolution.
// Hops is 0 when the starting identifier was already accepted.
type AcceptedTaxon struct {
	Record TaxonRecord `json:"record"`
	Hops   int         `json:"hops"`
}
