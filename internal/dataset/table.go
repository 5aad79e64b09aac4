// Package dataset wraps gota data frames with the naming and sink rules of
// covidboard: raw sheets load as text, pipeline output is built from typed
// columns, and tables are written to data/<name>.csv.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/TobiSchelling/covidboard/internal/transform"
)

var ErrEmpty = errors.New("empty table")

// Table is a named frame. Widths records the narrowed storage type of each
// numeric column of pipeline output; raw tables leave it empty.
type Table struct {
	Name   string
	Frame  dataframe.DataFrame
	Widths map[string]transform.Width
}

// ReadCSV loads a raw sheet. Every cell is kept as text so that locale
// numbers and blanks reach the pipeline untouched.
func ReadCSV(name string, r io.Reader) (*Table, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, df.Err)
	}
	if df.Ncol() == 0 {
		return nil, fmt.Errorf("reading %s: %w", name, ErrEmpty)
	}
	return &Table{Name: name, Frame: df}, nil
}

// FromRecords builds a raw text table from a header row plus data rows.
func FromRecords(name string, records [][]string) (*Table, error) {
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, fmt.Errorf("building %s: %w", name, ErrEmpty)
	}
	header := records[0]
	cols := make([]series.Series, len(header))
	for c, h := range header {
		vals := make([]string, len(records)-1)
		for r, row := range records[1:] {
			if c < len(row) {
				vals[r] = row[c]
			}
		}
		cols[c] = series.New(vals, series.String, h)
	}
	df := dataframe.New(cols...)
	if df.Err != nil {
		return nil, fmt.Errorf("building %s: %w", name, df.Err)
	}
	return &Table{Name: name, Frame: df}, nil
}

func (t *Table) Rows() int { return t.Frame.Nrow() }

func (t *Table) Columns() []string { return t.Frame.Names() }

func (t *Table) HasColumn(c string) bool {
	for _, n := range t.Frame.Names() {
		if n == c {
			return true
		}
	}
	return false
}

// Cells returns a column as raw strings.
func (t *Table) Cells(col string) ([]string, error) {
	if !t.HasColumn(col) {
		return nil, fmt.Errorf("%s: no column %q", t.Name, col)
	}
	return t.Frame.Col(col).Records(), nil
}

// Floats returns a numeric column of a loaded sink.
func (t *Table) Floats(col string) ([]float64, error) {
	if !t.HasColumn(col) {
		return nil, fmt.Errorf("%s: no column %q", t.Name, col)
	}
	cells := t.Frame.Col(col).Records()
	out := make([]float64, len(cells))
	for i, c := range cells {
		v, err := transform.ParseNumber(c)
		if err != nil {
			return nil, fmt.Errorf("%s.%s row %d: %w", t.Name, col, i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Column is one typed output column. Exactly one of Text, Ints or Floats is
// set.
type Column struct {
	Name   string
	Text   []string
	Ints   []int64
	Floats []float64
	Width  transform.Width
}

func TextColumn(name string, vals []string) Column {
	return Column{Name: name, Text: vals}
}

func IntColumn(name string, vals []int64, w transform.Width) Column {
	return Column{Name: name, Ints: vals, Width: w}
}

func FloatColumn(name string, vals []float64) Column {
	return Column{Name: name, Floats: vals, Width: transform.Float32}
}

func (c Column) len() int {
	switch {
	case c.Ints != nil:
		return len(c.Ints)
	case c.Floats != nil:
		return len(c.Floats)
	}
	return len(c.Text)
}

// Build assembles typed columns into an output table. Floats are stored in
// their shortest text form so the CSV shows "1.15" rather than "1.150000".
func Build(name string, cols []Column) (*Table, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("building %s: %w", name, ErrEmpty)
	}
	n := cols[0].len()
	list := make([]series.Series, 0, len(cols))
	widths := make(map[string]transform.Width)
	for _, c := range cols {
		if c.len() != n {
			return nil, fmt.Errorf("building %s: column %q has %d rows, want %d", name, c.Name, c.len(), n)
		}
		switch {
		case c.Ints != nil:
			ints := make([]int, len(c.Ints))
			for i, v := range c.Ints {
				ints[i] = int(v)
			}
			list = append(list, series.New(ints, series.Int, c.Name))
			widths[c.Name] = c.Width
		case c.Floats != nil:
			text := make([]string, len(c.Floats))
			for i, v := range c.Floats {
				text[i] = transform.FormatFloat(v)
			}
			list = append(list, series.New(text, series.String, c.Name))
			widths[c.Name] = c.Width
		default:
			list = append(list, series.New(c.Text, series.String, c.Name))
		}
	}
	df := dataframe.New(list...)
	if df.Err != nil {
		return nil, fmt.Errorf("building %s: %w", name, df.Err)
	}
	return &Table{Name: name, Frame: df, Widths: widths}, nil
}

// WriteCSV writes the table with a header row.
func (t *Table) WriteCSV(w io.Writer) error {
	return t.Frame.WriteCSV(w)
}

// Schema renders "name:width" pairs for logging.
func (t *Table) Schema() string {
	var b strings.Builder
	for i, n := range t.Frame.Names() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(n)
		if w, ok := t.Widths[n]; ok {
			b.WriteString(":" + w.String())
		}
	}
	return b.String()
}
