package fetcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantlab/flora-cli/internal/model"
)

func sampleTable() *Table {
	return &Table{
		Header: []string{"Plant Name", "Alternate Name", "Notes"},
		Rows: [][]string{
			{"Acalypha hispida Burm.f.", "Chenille plant", "houseplant"},
			{"Monstera deliciosa", "", ""},
			{"", "orphan alternate", ""},
		},
	}
}

func TestColumnIndex_CaseInsensitive(t *testing.T) {
	tab := sampleTable()
	assert.Equal(t, 0, tab.ColumnIndex("plant name"))
	assert.Equal(t, 2, tab.ColumnIndex(" NOTES "))
	assert.Equal(t, -1, tab.ColumnIndex("missing"))
}

func TestEnsureColumn_AppendsAndPads(t *testing.T) {
	tab := sampleTable()
	idx := tab.EnsureColumn("taxon_id")
	assert.Equal(t, 3, idx)
	for i := range tab.Rows {
		assert.Len(t, tab.Rows[i], 4, "row %d", i)
	}

	// Idempotent on existing columns.
	assert.Equal(t, idx, tab.EnsureColumn("Taxon_ID"))
	assert.Len(t, tab.Header, 4)
}

func TestSetCell_PadsRaggedRow(t *testing.T) {
	tab := &Table{Header: []string{"a", "b", "c"}, Rows: [][]string{{"x"}}}
	tab.SetCell(0, 2, "z")
	assert.Equal(t, []string{"x", "", "z"}, tab.Rows[0])
}

func TestPlantRows_AlignedWithTable(t *testing.T) {
	rows, err := PlantRows(sampleTable(), "Plant Name", "Alternate Name")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, model.PlantRow{
		Name:       "Acalypha hispida Burm.f.",
		Alternates: []string{"Chenille plant"},
	}, rows[0])
	assert.Equal(t, model.PlantRow{Name: "Monstera deliciosa"}, rows[1])
	// Blank name cells stay as zero rows so indices line up for write-back.
	assert.Equal(t, model.PlantRow{}, rows[2])
}

func TestPlantRows_MissingNameColumn(t *testing.T) {
	_, err := PlantRows(sampleTable(), "scientific_name")
	assert.Error(t, err)
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plants.csv")
	require.NoError(t, WriteCSV(path, sampleTable()))

	got, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, sampleTable().Header, got.Header)
	assert.Equal(t, sampleTable().Rows, got.Rows)
}

func TestReadCSV_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err := ReadCSV(path)
	assert.Error(t, err)
}

func TestXLSXRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plants.xlsx")
	require.NoError(t, WriteXLSX(path, sampleTable()))

	got, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, sampleTable().Header, got.Header)
	assert.Equal(t, sampleTable().Rows, got.Rows)
}

func TestReadXLSX_SheetNameNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plants.xlsx")
	require.NoError(t, WriteXLSX(path, sampleTable()))

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "Distribution"})
	assert.Error(t, err)
}

func TestReadTable_DispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "plants.csv")
	require.NoError(t, WriteTable(csvPath, sampleTable()))
	fromCSV, err := ReadTable(csvPath)
	require.NoError(t, err)

	xlsxPath := filepath.Join(dir, "plants.xlsx")
	require.NoError(t, WriteTable(xlsxPath, sampleTable()))
	fromXLSX, err := ReadTable(xlsxPath)
	require.NoError(t, err)

	assert.Equal(t, fromCSV.Rows, fromXLSX.Rows)
}

func TestReadTable_UnsupportedExtension(t *testing.T) {
	_, err := ReadTable("plants.parquet")
	assert.Error(t, err)
}
