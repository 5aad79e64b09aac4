package pipeline

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/covidboard/internal/config"
	"github.com/TobiSchelling/covidboard/internal/dataset"
	"github.com/TobiSchelling/covidboard/internal/transform"
)

// frame is the working copy of one table while it is being processed.
type frame struct {
	table    string
	dateCol  string
	dates    []time.Time
	dateText []string
	rows     int

	order  []string
	nums   map[string][]float64
	ints   map[string][]int64 // exact values of integer columns
	source map[string]bool // numeric columns read from the sheet
	exempt map[string]bool // narrowed to float instead of int
	rates  map[string][]float64
}

func newFrame(table, dateCol string) *frame {
	return &frame{
		table:   table,
		dateCol: dateCol,
		nums:    make(map[string][]float64),
		ints:    make(map[string][]int64),
		source:  make(map[string]bool),
		exempt:  make(map[string]bool),
		rates:   make(map[string][]float64),
	}
}

func (f *frame) col(name string) ([]float64, error) {
	vals, ok := f.nums[name]
	if !ok {
		return nil, schemaMismatch(f.table, name)
	}
	return vals, nil
}

func (f *frame) set(name string, vals []float64, exempt bool) {
	if _, ok := f.nums[name]; !ok {
		f.order = append(f.order, name)
	}
	f.nums[name] = vals
	delete(f.ints, name)
	if exempt {
		f.exempt[name] = true
	}
}

// setInts stores an integer column. The float copy feeds ratios and rates.
func (f *frame) setInts(name string, vals []int64) {
	floats := make([]float64, len(vals))
	for i, v := range vals {
		floats[i] = float64(v)
	}
	f.set(name, floats, false)
	f.ints[name] = vals
}

// exact returns the integer columns for names, or false when any of them
// only has float values.
func (f *frame) exact(names ...string) ([][]int64, bool) {
	out := make([][]int64, len(names))
	for i, n := range names {
		vals, ok := f.ints[n]
		if !ok {
			return nil, false
		}
		out[i] = vals
	}
	return out, true
}

func (f *frame) sourceColumns() []string {
	var out []string
	for _, n := range f.order {
		if f.source[n] {
			out = append(out, n)
		}
	}
	return out
}

func nameSet(names ...[]string) map[string]bool {
	m := make(map[string]bool)
	for _, list := range names {
		for _, n := range list {
			m[n] = true
		}
	}
	return m
}

// Process cleans one raw table and derives its metrics. The steps run in a
// fixed order: blanks become zero, locale numbers are repaired, rows are
// sorted by date, cumulative and ratio columns are derived, text columns are
// dropped and the rest is narrowed.
func Process(spec config.Table, raw *dataset.Table) (*dataset.Table, error) {
	var (
		f   *frame
		err error
	)
	if spec.Pivot != nil {
		f, err = loadPivot(spec, raw)
	} else {
		f, err = load(spec, raw)
	}
	if err != nil {
		return nil, err
	}

	if err := f.derive(spec); err != nil {
		return nil, err
	}
	return f.build(spec)
}

func checkColumns(table string, have map[string]bool, cols ...string) error {
	for _, c := range cols {
		if !have[c] {
			return schemaMismatch(table, c)
		}
	}
	return nil
}

func parseDates(table, col string, cells []string) ([]time.Time, error) {
	dates := make([]time.Time, len(cells))
	for i, c := range cells {
		d, err := transform.ParseDate(c)
		if err != nil {
			return nil, &ValueError{Table: table, Column: col, Row: i + 1, Value: c, Kind: ErrMalformedValue, Err: err}
		}
		dates[i] = d
	}
	return dates, nil
}

func cellError(table, col string, err error) error {
	var cell *transform.CellError
	if !errors.As(err, &cell) {
		return &TableError{Table: table, Column: col, Kind: ErrMalformedValue, Err: err}
	}
	if errors.Is(cell.Err, transform.ErrOutOfRange) {
		return &TableError{Table: table, Column: col, Kind: ErrOverflow, Err: cell}
	}
	return &ValueError{Table: table, Column: col, Row: cell.Row + 1, Value: cell.Value, Kind: ErrMalformedValue, Err: cell.Err}
}

func load(spec config.Table, raw *dataset.Table) (*frame, error) {
	names := raw.Columns()
	have := nameSet(names)
	if err := checkColumns(spec.Name, have, spec.DateColumn); err != nil {
		return nil, err
	}
	if err := checkColumns(spec.Name, have, spec.Drop...); err != nil {
		return nil, err
	}
	if err := checkColumns(spec.Name, have, spec.LocaleColumns...); err != nil {
		return nil, err
	}

	drop := nameSet(spec.Drop)
	floats := nameSet(spec.FloatColumns, spec.LocaleColumns)
	f := newFrame(spec.Name, spec.DateColumn)
	f.rows = raw.Rows()

	for _, name := range names {
		cells, err := raw.Cells(name)
		if err != nil {
			return nil, err
		}
		switch {
		case name == spec.DateColumn:
			if spec.DateAsText {
				f.dateText = cells
				continue
			}
			if f.dates, err = parseDates(spec.Name, name, cells); err != nil {
				return nil, err
			}
		case drop[name]:
			// text columns never reach arithmetic or narrowing
		case floats[name]:
			vals, err := transform.ParseNumbers(cells)
			if err != nil {
				return nil, cellError(spec.Name, name, err)
			}
			f.set(name, vals, false)
			f.source[name] = true
		default:
			vals, err := transform.ParseInts(cells)
			if err != nil {
				return nil, cellError(spec.Name, name, err)
			}
			f.setInts(name, vals)
			f.source[name] = true
		}
	}

	if f.dates != nil {
		idx := transform.SortIndex(f.dates)
		f.dates = transform.Permute(f.dates, idx)
		for _, name := range f.order {
			f.nums[name] = transform.Permute(f.nums[name], idx)
		}
		for name, vals := range f.ints {
			f.ints[name] = transform.Permute(vals, idx)
		}
	}
	return f, nil
}

// loadPivot turns a long (date, key, value) sheet into one column per key.
// Values are cumulative reports, so gaps are forward-filled rather than
// zeroed before optional differencing.
func loadPivot(spec config.Table, raw *dataset.Table) (*frame, error) {
	p := spec.Pivot
	have := nameSet(raw.Columns())
	if err := checkColumns(spec.Name, have, append([]string{spec.DateColumn, p.Key, p.Value}, p.Ignore...)...); err != nil {
		return nil, err
	}

	dateCells, _ := raw.Cells(spec.DateColumn)
	keyCells, _ := raw.Cells(p.Key)
	valueCells, _ := raw.Cells(p.Value)

	var (
		dates  []time.Time
		keys   []string
		values []float64
	)
	for i := range dateCells {
		if transform.IsMissing(keyCells[i]) {
			zap.S().Debugf("%s: row %d has no %s, skipped", spec.Name, i+1, p.Key)
			continue
		}
		d, err := transform.ParseDate(dateCells[i])
		if err != nil {
			return nil, &ValueError{Table: spec.Name, Column: spec.DateColumn, Row: i + 1, Value: dateCells[i], Kind: ErrMalformedValue, Err: err}
		}
		v, err := transform.ParseOptional(valueCells[i])
		if err != nil {
			return nil, &ValueError{Table: spec.Name, Column: p.Value, Row: i + 1, Value: valueCells[i], Kind: ErrMalformedValue, Err: err}
		}
		dates = append(dates, d)
		keys = append(keys, keyCells[i])
		values = append(values, v)
	}

	wide := transform.Pivot(dates, keys, values)
	if p.SeedDate != "" {
		seed, err := transform.ParseDate(p.SeedDate)
		if err != nil {
			return nil, &TableError{Table: spec.Name, Column: "seed_date", Kind: ErrMalformedValue, Err: err}
		}
		wide.Seed(seed)
	}
	if p.Diff {
		wide.Daily()
	} else {
		wide.Fill()
	}

	f := newFrame(spec.Name, spec.DateColumn)
	f.dates = wide.Dates
	f.rows = len(wide.Dates)
	for _, k := range wide.Keys {
		f.set(k, wide.Columns[k], false)
		f.source[k] = true
	}
	return f, nil
}

func (f *frame) derive(spec config.Table) error {
	for _, c := range spec.Cumulative {
		src, err := f.col(c.Source)
		if err != nil {
			return err
		}
		if exact, ok := f.ints[c.Source]; ok {
			sum, err := transform.CumSumInts(exact)
			if err != nil {
				return cellError(f.table, c.Target, err)
			}
			f.setInts(c.Target, sum)
			continue
		}
		f.set(c.Target, transform.CumSum(src), false)
	}

	if a := spec.Active; a != nil {
		cases, err := f.col(a.Cases)
		if err != nil {
			return err
		}
		discharges, err := f.col(a.Discharges)
		if err != nil {
			return err
		}
		deaths, err := f.col(a.Deaths)
		if err != nil {
			return err
		}
		if cols, ok := f.exact(a.Cases, a.Discharges, a.Deaths); ok {
			active, err := transform.ActiveInts(cols[0], cols[1], cols[2])
			if err != nil {
				return cellError(f.table, a.Target, err)
			}
			f.setInts(a.Target, active)
		} else {
			f.set(a.Target, transform.Active(cases, discharges, deaths), false)
		}
	}

	for _, s := range spec.Scaled {
		src, err := f.col(s.Source)
		if err != nil {
			return err
		}
		f.set(s.Target, transform.Scale(src, s.Divisor), true)
	}

	if rs := spec.RegionSum; rs != nil {
		names := transform.MatchingColumns(f.sourceColumns(), rs.Pattern)
		if exact, ok := f.exact(names...); ok {
			sum, err := transform.SumInts(f.rows, exact...)
			if err != nil {
				return cellError(f.table, rs.Target, err)
			}
			f.setInts(rs.Target, sum)
		} else {
			cols := make([][]float64, len(names))
			for i, n := range names {
				cols[i] = f.nums[n]
			}
			f.set(rs.Target, transform.Sum(f.rows, cols...), false)
		}
	}

	for _, ir := range spec.InfectionRate {
		src, err := f.col(ir.Source)
		if err != nil {
			return err
		}
		rate := transform.InfectionRate(src, ir.Window)
		f.rates[ir.Target] = rate
		f.set(ir.Target, transform.ForwardFill(rate, 0), true)
	}

	if sh := spec.Share; sh != nil {
		num, err := f.col(sh.Numerator)
		if err != nil {
			return err
		}
		den, err := f.col(sh.Denominator)
		if err != nil {
			return err
		}
		f.set(sh.Target, transform.ForwardFill(transform.Ratio(num, den, sh.Scale), 0), true)
	}

	if st := spec.Streak; st != nil {
		rates, ok := f.rates[st.Source]
		if !ok {
			var err error
			if rates, err = f.col(st.Source); err != nil {
				return err
			}
		}
		f.set(st.Target, transform.SignStreak(rates), true)
	}
	return nil
}

func (f *frame) build(spec config.Table) (*dataset.Table, error) {
	for _, c := range spec.FloatColumns {
		if _, ok := f.nums[c]; !ok {
			return nil, schemaMismatch(f.table, c)
		}
	}
	floats := nameSet(spec.FloatColumns, spec.LocaleColumns)

	cols := make([]dataset.Column, 0, len(f.order)+1)
	if f.dateText != nil {
		cols = append(cols, dataset.TextColumn(f.dateCol, f.dateText))
	} else {
		text := make([]string, len(f.dates))
		for i, d := range f.dates {
			text[i] = transform.FormatDate(d)
		}
		cols = append(cols, dataset.TextColumn(f.dateCol, text))
	}

	for _, name := range f.order {
		vals := f.nums[name]
		if floats[name] || f.exempt[name] {
			cols = append(cols, dataset.FloatColumn(name, transform.NarrowFloats(vals)))
			continue
		}
		if exact, ok := f.ints[name]; ok {
			cols = append(cols, dataset.IntColumn(name, exact, transform.WidthOf(exact)))
			continue
		}
		ints, width, err := transform.NarrowInts(vals)
		if err != nil {
			return nil, cellError(f.table, name, err)
		}
		cols = append(cols, dataset.IntColumn(name, ints, width))
	}
	return dataset.Build(f.table, cols)
}

// lastDate is the date of the final row of an output table.
func lastDate(t *dataset.Table, dateCol string) string {
	cells, err := t.Cells(dateCol)
	if err != nil || len(cells) == 0 {
		return ""
	}
	return cells[len(cells)-1]
}
