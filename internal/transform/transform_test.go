package transform

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMissing(t *testing.T) {
	for _, s := range []string{"", "  ", "NaN", "nan", "NA", "null"} {
		assert.True(t, IsMissing(s), "%q should be missing", s)
	}
	for _, s := range []string{"0", "1,5", "-"} {
		assert.False(t, IsMissing(s), "%q should not be missing", s)
	}
}

func TestRepairDecimal(t *testing.T) {
	cases := map[string]string{
		"1,25":        "1.25",
		"1.25":        "1.25",
		" 12 345,5 ":  "12345.5",
		"12\u00a0345": "12345",
		"7":           "7",
	}
	for in, want := range cases {
		got := RepairDecimal(in)
		assert.Equal(t, want, got, "repair(%q)", in)
		assert.Equal(t, got, RepairDecimal(got), "repair should be idempotent for %q", in)
	}
}

func TestParseNumber(t *testing.T) {
	v, err := ParseNumber("1,5")
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	v, err = ParseNumber("")
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	_, err = ParseNumber("abc")
	assert.ErrorIs(t, err, ErrNotNumber)
}

func TestParseNumbersLocatesBadCell(t *testing.T) {
	_, err := ParseNumbers([]string{"1", "2", "x,y"})
	var cell *CellError
	require.True(t, errors.As(err, &cell))
	assert.Equal(t, 2, cell.Row)
	assert.Equal(t, "x,y", cell.Value)
	assert.ErrorIs(t, err, ErrNotNumber)
}

func TestParseOptional(t *testing.T) {
	v, err := ParseOptional(" ")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v))
}

func TestParseDateDayFirst(t *testing.T) {
	d, err := ParseDate("01.02.2021")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2020-05-19")
	require.NoError(t, err)
	assert.Equal(t, "2020-05-19", FormatDate(d))

	_, err = ParseDate("")
	assert.ErrorIs(t, err, ErrBadDate)
	_, err = ParseDate("not a date")
	assert.ErrorIs(t, err, ErrBadDate)
}

func TestSortIndexStable(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2021, 1, day, 0, 0, 0, 0, time.UTC) }
	idx := SortIndex([]time.Time{d(3), d(1), d(2), d(1)})
	assert.Equal(t, []int{1, 3, 2, 0}, idx)
	assert.Equal(t, []string{"b", "d", "c", "a"}, Permute([]string{"a", "b", "c", "d"}, idx))
}

func TestCumSumNonDecreasing(t *testing.T) {
	daily := []float64{5, 3, 0, 7, 1}
	cum := CumSum(daily)
	assert.Equal(t, []float64{5, 8, 8, 15, 16}, cum)
	for i := 1; i < len(cum); i++ {
		assert.GreaterOrEqual(t, cum[i], cum[i-1])
	}
}

func TestActiveIdentity(t *testing.T) {
	cases := CumSum([]float64{10, 5, 2})
	discharges := CumSum([]float64{0, 8, 9})
	deaths := CumSum([]float64{0, 1, 0})
	active := Active(cases, discharges, deaths)
	for i := range active {
		assert.Equal(t, cases[i]-discharges[i]-deaths[i], active[i])
	}
	// 17 - 17 - 1: inconsistent sources may go negative
	assert.Equal(t, -1.0, active[2])
}

func TestScaleAndSum(t *testing.T) {
	assert.Equal(t, []float64{1.5, 0}, Scale([]float64{15, 0}, 10))
	assert.Equal(t, []float64{4, 6}, Sum(2, []float64{1, 2}, []float64{3, 4}))
	assert.Equal(t, []float64{0, 0, 0}, Sum(3))
}

func TestMatchingColumns(t *testing.T) {
	names := []string{"дата", "Калининград", "Гурьевский городской округ", "Светлогорский городской округ"}
	assert.Equal(t,
		[]string{"Гурьевский городской округ", "Светлогорский городской округ"},
		MatchingColumns(names, "округ"))
}

func TestRatioZeroDenominator(t *testing.T) {
	r := Ratio([]float64{1, 2}, []float64{4, 0}, 100)
	assert.Equal(t, 25.0, r[0])
	assert.True(t, math.IsNaN(r[1]))
}

func TestInfectionRate(t *testing.T) {
	daily := []float64{1, 1, 2, 2, 4, 2}
	ir := InfectionRate(daily, 2)
	assert.True(t, math.IsNaN(ir[0]))
	assert.True(t, math.IsNaN(ir[2]))
	assert.Equal(t, 2.0, ir[3]) // (2+2)/(1+1)
	assert.Equal(t, 2.0, ir[4]) // (2+4)/(1+2)
	assert.Equal(t, 1.5, ir[5]) // (4+2)/(2+2)

	zeros := InfectionRate([]float64{0, 0, 3, 3}, 2)
	assert.True(t, math.IsNaN(zeros[3]), "empty prior window is undefined")
}

func TestForwardFill(t *testing.T) {
	nan := math.NaN()
	assert.Equal(t, []float64{0, 1, 1, 2}, ForwardFill([]float64{nan, 1, nan, 2}, 0))
}

func TestSignStreakForwardFill(t *testing.T) {
	out := SignStreak([]float64{1.2, math.NaN(), 0.5})
	assert.Equal(t, out[0], out[1], "undefined day repeats the previous ratio")
	assert.Equal(t, 1.0, out[2])
}

func TestSignStreakRounding(t *testing.T) {
	out := SignStreak([]float64{0.5, 0.9, 0.8, 1.1})
	assert.Equal(t, []float64{0, 0, 0, 0.33}, out)
}

func TestDiff(t *testing.T) {
	d := Diff([]float64{1, 4, 9})
	assert.True(t, math.IsNaN(d[0]))
	assert.Equal(t, []float64{3, 5}, d[1:])
}

func TestIntWidth(t *testing.T) {
	assert.Equal(t, Int8, IntWidth(0, 127))
	assert.Equal(t, Int16, IntWidth(0, 128))
	assert.Equal(t, Int16, IntWidth(-32768, 0))
	assert.Equal(t, Int32, IntWidth(0, 1<<20))
	assert.Equal(t, Int64, IntWidth(0, 1<<40))
}

func TestNarrowIntsLossless(t *testing.T) {
	in := []float64{0, 300, -5, 1 << 40}
	out, width, err := NarrowInts(in)
	require.NoError(t, err)
	assert.Equal(t, Int64, width)
	for i := range in {
		assert.Equal(t, in[i], float64(out[i]))
	}

	exact, err := ParseInts([]string{"9007199254740993", "9223372036854775807", "-9223372036854775808", ""})
	require.NoError(t, err)
	assert.Equal(t, []int64{9007199254740993, math.MaxInt64, math.MinInt64, 0}, exact)
	assert.Equal(t, Int64, WidthOf(exact))
	assert.Equal(t, Int16, WidthOf([]int64{-5, 300}))
}

func TestParseIntsErrors(t *testing.T) {
	_, err := ParseInts([]string{"1", "9223372036854775808"})
	assert.ErrorIs(t, err, ErrOutOfRange)
	var cell *CellError
	require.True(t, errors.As(err, &cell))
	assert.Equal(t, 1, cell.Row)

	_, err = ParseInts([]string{"1,5"})
	assert.ErrorIs(t, err, ErrFractional)
	_, err = ParseInts([]string{"пять"})
	assert.ErrorIs(t, err, ErrNotNumber)

	v, err := ParseInt("1 204")
	require.NoError(t, err)
	assert.Equal(t, int64(1204), v)
}

func TestCumSumIntsOverflow(t *testing.T) {
	out, err := CumSumInts([]int64{9007199254740993, 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{9007199254740993, 9007199254740994}, out)

	_, err = CumSumInts([]int64{math.MaxInt64, 1})
	assert.ErrorIs(t, err, ErrOutOfRange)
	var cell *CellError
	require.True(t, errors.As(err, &cell))
	assert.Equal(t, 1, cell.Row)
}

func TestActiveAndSumInts(t *testing.T) {
	active, err := ActiveInts([]int64{10, math.MaxInt64}, []int64{3, 0}, []int64{1, 0})
	require.NoError(t, err)
	assert.Equal(t, []int64{6, math.MaxInt64}, active)

	_, err = ActiveInts([]int64{math.MinInt64}, []int64{1}, []int64{0})
	assert.ErrorIs(t, err, ErrOutOfRange)

	sum, err := SumInts(2, []int64{1, 2}, []int64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 6}, sum)
	_, err = SumInts(1, []int64{math.MaxInt64}, []int64{1})
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestNarrowIntsErrors(t *testing.T) {
	_, _, err := NarrowInts([]float64{1, 2.5})
	assert.ErrorIs(t, err, ErrFractional)

	_, _, err = NarrowInts([]float64{1e20})
	assert.ErrorIs(t, err, ErrOutOfRange)
	var cell *CellError
	require.True(t, errors.As(err, &cell))
	assert.Equal(t, 0, cell.Row)
}

func TestNarrowFloats(t *testing.T) {
	out := NarrowFloats([]float64{1.154, 0.125, math.NaN(), 2})
	assert.Equal(t, []float64{1.15, 0.13, 0, 2}, out)
	assert.Equal(t, "1.15", FormatFloat(out[0]))
	assert.Equal(t, "2", FormatFloat(out[3]))
}

func TestPivotDaily(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2020, 5, day, 0, 0, 0, 0, time.UTC) }
	w := Pivot(
		[]time.Time{d(21), d(20), d(21), d(22)},
		[]string{"b", "a", "a", "b"},
		[]float64{4, 1, 3, 6},
	)
	assert.Equal(t, []string{"a", "b"}, w.Keys)
	require.Len(t, w.Dates, 3)

	w.Seed(d(19))
	require.Len(t, w.Dates, 4)
	assert.Equal(t, d(19), w.Dates[0])

	w.Daily()
	assert.Equal(t, []float64{0, 1, 2, 0}, w.Columns["a"])
	assert.Equal(t, []float64{0, 0, 4, 2}, w.Columns["b"])
}
