// Package fetcher reads and writes plant record tables in CSV and XLSX
// form. Enrichment passes read a table, append result columns, and write the
// whole table back, so the representation is a plain in-memory grid keyed by
// header name.
package fetcher

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/verdantlab/flora-cli/internal/model"
)

// Table is one spreadsheet-like grid with a header row.
type Table struct {
	Header []string
	Rows   [][]string
}

// ColumnIndex returns the index of the named column, matched
// case-insensitively, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, h := range t.Header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// EnsureColumn returns the index of the named column, appending it (and
// padding every row) when absent.
func (t *Table) EnsureColumn(name string) int {
	if idx := t.ColumnIndex(name); idx >= 0 {
		return idx
	}
	t.Header = append(t.Header, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], "")
	}
	return len(t.Header) - 1
}

// Cell returns the cell at (row, col), tolerating ragged rows.
func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// SetCell writes the cell at (row, col), padding the row as needed.
func (t *Table) SetCell(row, col int, value string) {
	if row < 0 || row >= len(t.Rows) || col < 0 {
		return
	}
	for len(t.Rows[row]) <= col {
		t.Rows[row] = append(t.Rows[row], "")
	}
	t.Rows[row][col] = value
}

// ReadTable reads a table from path, dispatching on the file extension.
func ReadTable(path string) (*Table, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return ReadCSV(path)
	case ".xlsx":
		return ReadXLSX(path, XLSXOptions{})
	default:
		return nil, eris.Errorf("fetcher: unsupported table format %q", ext)
	}
}

// WriteTable writes a table to path, dispatching on the file extension.
func WriteTable(path string, t *Table) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return WriteCSV(path, t)
	case ".xlsx":
		return WriteXLSX(path, t)
	default:
		return eris.Errorf("fetcher: unsupported table format %q", ext)
	}
}

// PlantRows converts a table to plant rows using the given name column and
// optional alternate-name columns. The result is aligned 1:1 with the table
// rows; a blank name cell yields a zero-valued row so callers can write
// results back by index.
func PlantRows(t *Table, nameColumn string, altColumns ...string) ([]model.PlantRow, error) {
	nameIdx := t.ColumnIndex(nameColumn)
	if nameIdx < 0 {
		return nil, eris.Errorf("fetcher: name column %q not found", nameColumn)
	}

	var altIdx []int
	for _, col := range altColumns {
		if idx := t.ColumnIndex(col); idx >= 0 {
			altIdx = append(altIdx, idx)
		}
	}

	rows := make([]model.PlantRow, len(t.Rows))
	for i := range t.Rows {
		name := strings.TrimSpace(t.Cell(i, nameIdx))
		if name == "" {
			continue
		}
		rows[i].Name = name
		for _, idx := range altIdx {
			if alt := strings.TrimSpace(t.Cell(i, idx)); alt != "" {
				rows[i].Alternates = append(rows[i].Alternates, alt)
			}
		}
	}
	return rows, nil
}
