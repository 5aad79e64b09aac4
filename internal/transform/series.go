package transform

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SortIndex returns the permutation that orders dates ascending. Equal dates
// keep their input order.
func SortIndex(dates []time.Time) []int {
	idx := make([]int, len(dates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return dates[idx[a]].Before(dates[idx[b]])
	})
	return idx
}

// Permute reorders xs by idx.
func Permute[T any](xs []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = xs[j]
	}
	return out
}

// CumSum is the running total of xs.
func CumSum(xs []float64) []float64 {
	out := make([]float64, len(xs))
	var total float64
	for i, x := range xs {
		total += x
		out[i] = total
	}
	return out
}

// addInt adds with an int64 overflow check.
func addInt(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

func overflowAt(row int, a, b int64) error {
	return &CellError{Row: row, Value: strconv.FormatInt(a, 10) + "+" + strconv.FormatInt(b, 10), Err: ErrOutOfRange}
}

// CumSumInts is CumSum over exact integers.
func CumSumInts(xs []int64) ([]int64, error) {
	out := make([]int64, len(xs))
	var total int64
	for i, x := range xs {
		next, ok := addInt(total, x)
		if !ok {
			return nil, overflowAt(i, total, x)
		}
		total = next
		out[i] = total
	}
	return out, nil
}

// ActiveInts is Active over exact integers.
func ActiveInts(cases, discharges, deaths []int64) ([]int64, error) {
	out := make([]int64, len(cases))
	for i := range cases {
		// -MinInt64 does not fit in int64
		if discharges[i] == math.MinInt64 || deaths[i] == math.MinInt64 {
			return nil, &CellError{Row: i, Value: strconv.FormatInt(math.MinInt64, 10), Err: ErrOutOfRange}
		}
		v, ok := addInt(cases[i], -discharges[i])
		if !ok {
			return nil, overflowAt(i, cases[i], -discharges[i])
		}
		w, ok := addInt(v, -deaths[i])
		if !ok {
			return nil, overflowAt(i, v, -deaths[i])
		}
		out[i] = w
	}
	return out, nil
}

// SumInts is Sum over exact integers.
func SumInts(n int, cols ...[]int64) ([]int64, error) {
	out := make([]int64, n)
	for _, c := range cols {
		for i := range out {
			v, ok := addInt(out[i], c[i])
			if !ok {
				return nil, overflowAt(i, out[i], c[i])
			}
			out[i] = v
		}
	}
	return out, nil
}

// Active is cases - discharges - deaths, row by row. Negative results are
// kept as they are.
func Active(cases, discharges, deaths []float64) []float64 {
	out := make([]float64, len(cases))
	for i := range cases {
		out[i] = cases[i] - discharges[i] - deaths[i]
	}
	return out
}

// Scale divides every value by divisor.
func Scale(xs []float64, divisor float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x / divisor
	}
	return out
}

// Sum adds columns element-wise. With no columns it returns n zeros.
func Sum(n int, cols ...[]float64) []float64 {
	out := make([]float64, n)
	for _, c := range cols {
		for i := range out {
			out[i] += c[i]
		}
	}
	return out
}

// MatchingColumns returns the names containing pattern, in input order.
func MatchingColumns(names []string, pattern string) []string {
	var out []string
	for _, n := range names {
		if strings.Contains(n, pattern) {
			out = append(out, n)
		}
	}
	return out
}

// Ratio divides num by den and multiplies by scale. A zero denominator
// yields NaN.
func Ratio(num, den []float64, scale float64) []float64 {
	out := make([]float64, len(num))
	for i := range num {
		if den[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = num[i] * scale / den[i]
	}
	return out
}

// InfectionRate is the sum of the last window days divided by the sum of the
// window days before them. Rows without two full windows, or with an empty
// prior window, are NaN.
func InfectionRate(daily []float64, window int) []float64 {
	out := make([]float64, len(daily))
	prefix := make([]float64, len(daily)+1)
	for i, x := range daily {
		prefix[i+1] = prefix[i] + x
	}
	for i := range daily {
		if i+1 < 2*window {
			out[i] = math.NaN()
			continue
		}
		recent := prefix[i+1] - prefix[i+1-window]
		prior := prefix[i+1-window] - prefix[i+1-2*window]
		if prior == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = recent / prior
	}
	return out
}

// ForwardFill replaces NaN with the last defined value. Leading NaNs become
// seed.
func ForwardFill(xs []float64, seed float64) []float64 {
	out := make([]float64, len(xs))
	last := seed
	for i, x := range xs {
		if math.IsNaN(x) {
			out[i] = last
			continue
		}
		out[i] = x
		last = x
	}
	return out
}

// SignStreak is the running ratio of days with rate >= 1 to days with
// rate < 1. Days with an undefined rate, and days before the first rate < 1,
// repeat the previous value (zero at the start). Results are rounded to two
// decimals.
func SignStreak(rates []float64) []float64 {
	out := make([]float64, len(rates))
	var above, below float64
	prev := 0.0
	for i, r := range rates {
		if !math.IsNaN(r) {
			if r >= 1 {
				above++
			} else {
				below++
			}
			if below > 0 {
				prev = Round2(above / below)
			}
		}
		out[i] = prev
	}
	return out
}

// Diff is the first difference of xs; the first element is NaN.
func Diff(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = xs[i] - xs[i-1]
	}
	return out
}
