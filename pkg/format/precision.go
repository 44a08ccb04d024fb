// Package format renders chart values for display. Every function returns a
// string for any input, including NaN and infinities.
package format

import (
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// maxGrouped is the largest magnitude NumberFormatter renders with
// thousands separators.
const maxGrouped = 1e15

// maxPrecision is the most fractional digits NumberFormatter groups.
const maxPrecision = 9

// PrecisionFormatter renders value with exactly precision fractional digits.
// Non-zero values too small to show at that precision render as a bound,
// "<0.01" or ">-0.01" for precision 2. Negative precision is treated as 0.
func PrecisionFormatter(value float64, precision int) string {
	if s, ok := special(value); ok {
		return s
	}
	if precision < 0 {
		precision = 0
	}
	if value == 0 {
		return strconv.FormatFloat(0, 'f', precision, 64)
	}

	threshold := math.Pow10(-precision)
	if math.Abs(value) < threshold {
		bound := strconv.FormatFloat(threshold, 'f', precision, 64)
		if value < 0 {
			return ">-" + bound
		}
		return "<" + bound
	}
	return strconv.FormatFloat(value, 'f', precision, 64)
}

// NumberFormatter renders value with precision fractional digits and
// thousands separators, as shown in chart headers and tooltips.
func NumberFormatter(value float64, precision int) string {
	if s, ok := special(value); ok {
		return s
	}
	if precision < 0 {
		precision = 0
	}
	if math.Abs(value) >= maxGrouped || precision > maxPrecision {
		return strconv.FormatFloat(value, 'f', precision, 64)
	}

	out := humanize.FormatFloat("#,###."+strings.Repeat("#", precision), value)
	if strings.Trim(out, "-0.,") == "" {
		// -0.001 rounds to zero; drop the sign.
		out = strings.TrimPrefix(out, "-")
	}
	return out
}

func special(value float64) (string, bool) {
	switch {
	case math.IsNaN(value):
		return "NaN", true
	case math.IsInf(value, 1):
		return "∞", true
	case math.IsInf(value, -1):
		return "-∞", true
	}
	return "", false
}
