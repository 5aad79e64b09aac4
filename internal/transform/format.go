package transform

import (
	"strconv"
	"time"
)

// DateLayout is how dates are written to the sinks.
const DateLayout = "2006-01-02"

// FormatDate renders a date for output.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// FormatFloat renders a narrowed float in its shortest form ("1.15", "3").
func FormatFloat(x float64) string { return formatFloat(x) }

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
