package transform

import (
	"math"
	"sort"
	"time"
)

// Wide is a pivoted table: one row per date, one column per key.
type Wide struct {
	Dates   []time.Time
	Keys    []string
	Columns map[string][]float64
}

// Pivot reshapes long (date, key, value) rows into a Wide table. Dates and
// keys come out sorted; combinations never reported are NaN. When the same
// (date, key) pair appears twice the later row wins.
func Pivot(dates []time.Time, keys []string, values []float64) *Wide {
	rowOf := make(map[int64]int)
	keySet := make(map[string]bool)
	w := &Wide{}
	for i, d := range dates {
		if _, ok := rowOf[d.Unix()]; !ok {
			rowOf[d.Unix()] = 0
			w.Dates = append(w.Dates, d)
		}
		keySet[keys[i]] = true
	}

	sort.Slice(w.Dates, func(a, b int) bool { return w.Dates[a].Before(w.Dates[b]) })
	for i, d := range w.Dates {
		rowOf[d.Unix()] = i
	}
	for k := range keySet {
		w.Keys = append(w.Keys, k)
	}
	sort.Strings(w.Keys)

	w.Columns = make(map[string][]float64, len(w.Keys))
	for _, k := range w.Keys {
		col := make([]float64, len(w.Dates))
		for i := range col {
			col[i] = math.NaN()
		}
		w.Columns[k] = col
	}
	for i, d := range dates {
		w.Columns[keys[i]][rowOf[d.Unix()]] = values[i]
	}
	return w
}

// Seed sets every column to zero on date, inserting the row if needed.
func (w *Wide) Seed(date time.Time) {
	i := sort.Search(len(w.Dates), func(i int) bool { return !w.Dates[i].Before(date) })
	if i == len(w.Dates) || !w.Dates[i].Equal(date) {
		w.Dates = append(w.Dates, time.Time{})
		copy(w.Dates[i+1:], w.Dates[i:])
		w.Dates[i] = date
		for _, k := range w.Keys {
			col := append(w.Columns[k], 0)
			copy(col[i+1:], col[i:])
			w.Columns[k] = col
		}
	}
	for _, k := range w.Keys {
		w.Columns[k][i] = 0
	}
}

// Daily turns cumulative columns into daily increments: gaps are filled from
// the previous report before differencing, and the first row is zero.
func (w *Wide) Daily() {
	for _, k := range w.Keys {
		w.Columns[k] = ForwardFill(Diff(ForwardFill(w.Columns[k], math.NaN())), 0)
	}
}

// Fill forward-fills every column, seeding leading gaps with zero.
func (w *Wide) Fill() {
	for _, k := range w.Keys {
		w.Columns[k] = ForwardFill(w.Columns[k], 0)
	}
}
