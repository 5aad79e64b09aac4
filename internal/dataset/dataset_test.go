package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/TobiSchelling/covidboard/internal/transform"
)

const rawSheet = `дата,всего,infection rate
01.01.2021,5,"1,2"
02.01.2021,,0.8
`

func TestReadCSVKeepsText(t *testing.T) {
	tbl, err := ReadCSV("data", strings.NewReader(rawSheet))
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.Rows())
	assert.Equal(t, []string{"дата", "всего", "infection rate"}, tbl.Columns())

	cells, err := tbl.Cells("infection rate")
	require.NoError(t, err)
	assert.Equal(t, []string{"1,2", "0.8"}, cells)

	dates, err := tbl.Cells("дата")
	require.NoError(t, err)
	assert.Equal(t, "01.01.2021", dates[0])

	_, err = tbl.Cells("missing")
	assert.Error(t, err)
}

func TestReadCSVEmpty(t *testing.T) {
	_, err := ReadCSV("data", strings.NewReader(""))
	assert.Error(t, err)
}

func TestFromRecordsPadsShortRows(t *testing.T) {
	tbl, err := FromRecords("invitro", [][]string{
		{"date", "total"},
		{"15.01.2021", "10"},
		{"16.01.2021"},
	})
	require.NoError(t, err)
	cells, err := tbl.Cells("total")
	require.NoError(t, err)
	assert.Equal(t, "10", cells[0])
	assert.True(t, transform.IsMissing(cells[1]))
}

func buildSample(t *testing.T) *Table {
	t.Helper()
	tbl, err := Build("data", []Column{
		TextColumn("дата", []string{"2021-01-01", "2021-01-02"}),
		IntColumn("всего", []int64{5, 3}, transform.Int8),
		FloatColumn("infection rate", []float64{1.2, 0.8}),
	})
	require.NoError(t, err)
	return tbl
}

func TestBuildAndWriteCSV(t *testing.T) {
	tbl := buildSample(t)
	assert.Equal(t, transform.Int8, tbl.Widths["всего"])
	assert.Equal(t, "дата, всего:int8, infection rate:float32", tbl.Schema())

	var b strings.Builder
	require.NoError(t, tbl.WriteCSV(&b))
	assert.Equal(t, "дата,всего,infection rate\n2021-01-01,5,1.2\n2021-01-02,3,0.8\n", b.String())
}

func TestBuildRejectsRaggedColumns(t *testing.T) {
	_, err := Build("data", []Column{
		TextColumn("дата", []string{"2021-01-01"}),
		IntColumn("всего", []int64{1, 2}, transform.Int8),
	})
	assert.Error(t, err)
}

func TestWriteFileReplacesAtomically(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	tbl := buildSample(t)

	path, err := WriteFile(dir, tbl)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data.csv"), path)

	// a second write replaces the content and leaves no temp files behind
	_, err = WriteFile(dir, tbl)
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "data", loaded.Name)
	vals, err := loaded.Floats("infection rate")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.2, 0.8}, vals)
}

func TestWriteFileFailureKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	tbl := buildSample(t)
	path, err := WriteFile(dir, tbl)
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// a plain file where the data dir should be makes the write fail
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocked, nil, 0o644))
	_, err = WriteFile(filepath.Join(blocked, "sub"), tbl)
	assert.Error(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "covid.xlsx")
	data := buildSample(t)
	destrib, err := Build("destrib", []Column{
		TextColumn("дата", []string{"2021-01-01"}),
		IntColumn("Калининград", []int64{7}, transform.Int8),
	})
	require.NoError(t, err)

	require.NoError(t, WriteWorkbook(path, []*Table{data, destrib}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"data", "destrib"}, f.GetSheetList())

	v, err := f.GetCellValue("data", "B2")
	require.NoError(t, err)
	assert.Equal(t, "5", v)
	v, err = f.GetCellValue("destrib", "A1")
	require.NoError(t, err)
	assert.Equal(t, "дата", v)
}
