// Package transform holds the column-level operations of the metric
// pipeline. Every function works on plain slices and returns new slices; the
// callers decide which columns feed which transform.
package transform

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/shopspring/decimal"
)

var (
	ErrNotNumber  = errors.New("not a number")
	ErrFractional = errors.New("fractional value in integer column")
	ErrOutOfRange = errors.New("value out of integer range")
	ErrBadDate    = errors.New("unrecognised date")
)

// CellError locates a single bad value. Row is zero-based.
type CellError struct {
	Row   int
	Value string
	Err   error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("row %d: %q: %v", e.Row, e.Value, e.Err)
}

func (e *CellError) Unwrap() error { return e.Err }

var missingMarkers = map[string]bool{
	"":      true,
	"nan":   true,
	"na":    true,
	"n/a":   true,
	"null":  true,
	"<nil>": true,
}

// IsMissing reports whether a raw cell means "no report".
func IsMissing(s string) bool {
	return missingMarkers[strings.ToLower(strings.TrimSpace(s))]
}

// RepairDecimal rewrites a spreadsheet-locale number into decimal-point form:
// thousands separators (spaces, NBSP) are stripped and a decimal comma becomes
// a point. Applying it twice gives the same result as applying it once.
func RepairDecimal(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\t':
			return -1
		case ',':
			return '.'
		}
		return r
	}, s)
	return s
}

// ParseNumber turns a raw cell into a float. Missing cells are zero.
func ParseNumber(s string) (float64, error) {
	if IsMissing(s) {
		return 0, nil
	}
	d, err := decimal.NewFromString(RepairDecimal(s))
	if err != nil {
		return 0, ErrNotNumber
	}
	return d.InexactFloat64(), nil
}

// ParseNumbers parses a whole column, reporting the first bad cell.
func ParseNumbers(cells []string) ([]float64, error) {
	out := make([]float64, len(cells))
	for i, c := range cells {
		v, err := ParseNumber(c)
		if err != nil {
			return nil, &CellError{Row: i, Value: c, Err: err}
		}
		out[i] = v
	}
	return out, nil
}

// ParseInt reads a raw cell as an exact integer. Missing cells are zero.
func ParseInt(s string) (int64, error) {
	if IsMissing(s) {
		return 0, nil
	}
	d, err := decimal.NewFromString(RepairDecimal(s))
	if err != nil {
		return 0, ErrNotNumber
	}
	if !d.IsInteger() {
		return 0, ErrFractional
	}
	n := d.BigInt()
	if !n.IsInt64() {
		return 0, ErrOutOfRange
	}
	return n.Int64(), nil
}

// ParseInts is ParseInt over a whole column.
func ParseInts(cells []string) ([]int64, error) {
	out := make([]int64, len(cells))
	for i, c := range cells {
		v, err := ParseInt(c)
		if err != nil {
			return nil, &CellError{Row: i, Value: c, Err: err}
		}
		out[i] = v
	}
	return out, nil
}

// ParseOptional is ParseNumber with missing cells kept as NaN, for columns
// that get forward-filled instead of zeroed.
func ParseOptional(s string) (float64, error) {
	if IsMissing(s) {
		return math.NaN(), nil
	}
	return ParseNumber(s)
}

var dayFirstLayouts = []string{
	"02.01.2006",
	"2.1.2006",
	"02.01.06",
	"02/01/2006",
	"2/1/2006",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
}

// ParseDate parses a sheet date. Numeric dates are read day first
// ("01.02.2021" is 1 February); anything else falls back to dateparse.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrBadDate
	}
	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, ErrBadDate
	}
	return t, nil
}

// Round2 rounds half away from zero to two decimal places. NaN and Inf pass
// through.
func Round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}
