package transform

import (
	"math"
)

// Width is the storage type chosen for a numeric column.
type Width int

const (
	Int8 Width = iota + 1
	Int16
	Int32
	Int64
	Float32
)

func (w Width) String() string {
	switch w {
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	}
	return "unknown"
}

// IsInt reports whether w is one of the integer widths.
func (w Width) IsInt() bool { return w >= Int8 && w <= Int64 }

// IntWidth returns the smallest integer width that holds both lo and hi.
func IntWidth(lo, hi int64) Width {
	switch {
	case lo >= math.MinInt8 && hi <= math.MaxInt8:
		return Int8
	case lo >= math.MinInt16 && hi <= math.MaxInt16:
		return Int16
	case lo >= math.MinInt32 && hi <= math.MaxInt32:
		return Int32
	}
	return Int64
}

// WidthOf picks the smallest integer width for a column.
func WidthOf(xs []int64) Width {
	if len(xs) == 0 {
		return Int8
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	return IntWidth(lo, hi)
}

// 2^63 is exactly representable as a float64; int64 covers [-2^63, 2^63).
const twoTo63 = float64(1 << 63)

// NarrowInts converts a float column to integers and picks its width. Every
// value must be a whole number inside the int64 range. Floats are exact only
// up to 2^53; columns read from a sheet go through ParseInts instead.
func NarrowInts(xs []float64) ([]int64, Width, error) {
	out := make([]int64, len(xs))
	for i, x := range xs {
		switch {
		case math.IsNaN(x):
			return nil, 0, &CellError{Row: i, Value: "NaN", Err: ErrNotNumber}
		case math.IsInf(x, 0), x < -twoTo63, x >= twoTo63:
			return nil, 0, &CellError{Row: i, Value: formatFloat(x), Err: ErrOutOfRange}
		case x != math.Trunc(x):
			return nil, 0, &CellError{Row: i, Value: formatFloat(x), Err: ErrFractional}
		}
		out[i] = int64(x)
	}
	return out, WidthOf(out), nil
}

// NarrowFloats reduces each value to float32 precision and rounds to two
// decimals. NaN becomes zero.
func NarrowFloats(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		out[i] = Round2(float64(float32(x)))
	}
	return out
}
