// Package area expands coarse geographic units into their finest-grained
// constituents using a directed containment graph (modeled on the WGSRPD
// botanical region scheme, where level-4 units are the leaves).
package area

import "strings"

// Hierarchy is a containment graph over named geographic units. Codes are
// internal node identifiers; names are the labels used in distribution text.
type Hierarchy struct {
	nameToCode map[string]string
	codeToName map[string]string
	children   map[string][]string
	leaves     map[string]bool
}

// Graph is the serialized form of a Hierarchy.
type Graph struct {
	NameToCode map[string]string   `yaml:"name_to_code" json:"name_to_code"`
	CodeToName map[string]string   `yaml:"code_to_name" json:"code_to_name"`
	Children   map[string][]string `yaml:"children" json:"children"`
	LeafCodes  []string            `yaml:"leaf_codes" json:"leaf_codes"`
}

// New builds a Hierarchy from its serialized form. Name lookup is
// case-insensitive.
func New(g Graph) *Hierarchy {
	h := &Hierarchy{
		nameToCode: make(map[string]string, len(g.NameToCode)),
		codeToName: make(map[string]string, len(g.CodeToName)),
		children:   make(map[string][]string, len(g.Children)),
		leaves:     make(map[string]bool, len(g.LeafCodes)),
	}
	for name, code := range g.NameToCode {
		h.nameToCode[strings.ToLower(strings.TrimSpace(name))] = code
	}
	for code, name := range g.CodeToName {
		h.codeToName[code] = name
	}
	for code, kids := range g.Children {
		h.children[code] = append([]string(nil), kids...)
	}
	for _, code := range g.LeafCodes {
		h.leaves[code] = true
	}
	return h
}

// Len returns the number of named units.
func (h *Hierarchy) Len() int { return len(h.nameToCode) }

// Expand resolves areaName to its leaf-level descendant names.
//
// Unknown names return nil: the caller falls back to treating the raw token
// as a leaf itself. A leaf name returns itself as a singleton. Non-leaf
// units are expanded breadth-first; a visited set guards against cycles in
// malformed graph data. Results are deduplicated case-insensitively with
// order preserved.
func (h *Hierarchy) Expand(areaName string) []string {
	code, ok := h.nameToCode[strings.ToLower(strings.TrimSpace(areaName))]
	if !ok {
		return nil
	}

	if h.leaves[code] {
		return []string{h.displayName(code, areaName)}
	}

	var out []string
	seenName := make(map[string]bool)
	visited := map[string]bool{code: true}
	queue := []string{code}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, child := range h.children[cur] {
			if visited[child] {
				continue
			}
			visited[child] = true

			if h.leaves[child] {
				name := h.displayName(child, child)
				k := strings.ToLower(name)
				if !seenName[k] {
					seenName[k] = true
					out = append(out, name)
				}
				continue
			}
			queue = append(queue, child)
		}
	}

	return out
}

func (h *Hierarchy) displayName(code, fallback string) string {
	if name, ok := h.codeToName[code]; ok && name != "" {
		return name
	}
	return fallback
}
