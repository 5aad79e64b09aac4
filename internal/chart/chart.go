// Package chart renders dashboard tables as PNG charts.
package chart

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/TobiSchelling/covidboard/internal/dataset"
	"github.com/TobiSchelling/covidboard/internal/transform"
)

// ErrTooFewPoints is returned for tables with fewer than two rows.
var ErrTooFewPoints = errors.New("need at least two rows to chart")

// Mark is how a series is drawn.
type Mark string

const (
	Line  Mark = "line"
	Point Mark = "point"
	Area  Mark = "area"
	Bar   Mark = "bar"
)

// ParseMark accepts the mark names used in page definitions.
func ParseMark(s string) (Mark, error) {
	switch m := Mark(s); m {
	case Line, Point, Area, Bar:
		return m, nil
	case "":
		return Line, nil
	}
	return "", fmt.Errorf("unknown mark %q", s)
}

// Params describe one chart.
type Params struct {
	Title   string
	Mark    Mark
	Columns []string
	Width   int
	Height  int
	// Last limits bar charts to the final rows of the table.
	Last int
}

var palette = []drawing.Color{
	gochart.ColorBlue,
	gochart.ColorRed,
	gochart.ColorGreen,
	gochart.ColorOrange,
	gochart.ColorCyan,
	gochart.ColorAlternateGray,
}

func color(i int) drawing.Color { return palette[i%len(palette)] }

func style(m Mark, c drawing.Color) gochart.Style {
	switch m {
	case Point:
		return gochart.Style{StrokeWidth: 0, StrokeColor: drawing.ColorTransparent, DotWidth: 4, DotColor: c}
	case Area:
		return gochart.Style{StrokeWidth: 1, StrokeColor: c, FillColor: c.WithAlpha(64)}
	}
	return gochart.Style{StrokeWidth: 2, StrokeColor: c}
}

func dateFormatter(v interface{}) string {
	switch x := v.(type) {
	case time.Time:
		return x.Format("02.01.06")
	case float64:
		return time.Unix(0, int64(x)).UTC().Format("02.01.06")
	}
	return ""
}

// Render draws the named columns of t against its date column.
func Render(w io.Writer, t *dataset.Table, dateCol string, p Params) error {
	if len(p.Columns) == 0 {
		return fmt.Errorf("%s: no columns to chart", p.Title)
	}
	if t.Rows() < 2 {
		return ErrTooFewPoints
	}
	if p.Width == 0 {
		p.Width = 900
	}
	if p.Height == 0 {
		p.Height = 400
	}
	if p.Mark == Bar {
		return renderBars(w, t, dateCol, p)
	}

	cells, err := t.Cells(dateCol)
	if err != nil {
		return err
	}
	dates := make([]time.Time, len(cells))
	for i, c := range cells {
		if dates[i], err = transform.ParseDate(c); err != nil {
			return fmt.Errorf("%s row %d: %w", dateCol, i+1, err)
		}
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	series := make([]gochart.Series, 0, len(p.Columns))
	for i, name := range p.Columns {
		ys, err := t.Floats(name)
		if err != nil {
			return err
		}
		for _, y := range ys {
			lo, hi = math.Min(lo, y), math.Max(hi, y)
		}
		series = append(series, gochart.TimeSeries{
			Name:    name,
			XValues: dates,
			YValues: ys,
			Style:   style(p.Mark, color(i)),
		})
	}

	graph := gochart.Chart{
		Title:      p.Title,
		Width:      p.Width,
		Height:     p.Height,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      gochart.XAxis{ValueFormatter: dateFormatter},
		Series:     series,
	}
	// a flat line has a zero-height range, which go-chart rejects
	if lo == hi {
		graph.YAxis.Range = &gochart.ContinuousRange{Min: lo - 1, Max: hi + 1}
	}
	graph.Elements = []gochart.Renderable{gochart.Legend(&graph)}
	return graph.Render(gochart.PNG, w)
}

func renderBars(w io.Writer, t *dataset.Table, dateCol string, p Params) error {
	labels, err := t.Cells(dateCol)
	if err != nil {
		return err
	}
	ys, err := t.Floats(p.Columns[0])
	if err != nil {
		return err
	}
	from := 0
	if p.Last > 0 && p.Last < len(ys) {
		from = len(ys) - p.Last
	}

	bars := make([]gochart.Value, 0, len(ys)-from)
	for i := from; i < len(ys); i++ {
		bars = append(bars, gochart.Value{Value: ys[i], Label: labels[i]})
	}
	graph := gochart.BarChart{
		Title:      p.Title,
		Width:      p.Width,
		Height:     p.Height,
		Background: gochart.Style{Padding: gochart.Box{Top: 40}},
		BarWidth:   max(4, p.Width/(3*len(bars))),
		Bars:       bars,
	}
	return graph.Render(gochart.PNG, w)
}
