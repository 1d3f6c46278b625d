package format

import (
	"math"
	"strconv"
	"strings"

	"github.com/iwvelando/goalseek/pkg/constants"
)

// Value renders v according to its kind: amounts as currency, ratios to five
// decimals, anything else in the shortest exact form with grouped thousands.
func Value(kind string, v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	switch kind {
	case constants.KindAmount:
		return Currency(v)
	case constants.KindRatio:
		return strconv.FormatFloat(v, 'f', 5, 64)
	default:
		return Number(v)
	}
}

// Number groups the integer part of v in thousands and keeps the shortest
// decimal representation of the fraction (e.g., "-12,345.678").
func Number(v float64) string {
	s := strconv.FormatFloat(math.Abs(v), 'f', -1, 64)
	intPart, frac, hasFrac := strings.Cut(s, ".")
	out := group(intPart)
	if hasFrac {
		out += "." + frac
	}
	if v < 0 {
		return "-" + out
	}
	return out
}

// Change renders the signed difference to - from in the kind's format.
func Change(kind string, from, to float64) string {
	d := to - from
	if d > 0 {
		return "+" + Value(kind, d)
	}
	return Value(kind, d)
}

func group(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var builder strings.Builder
	for i, digit := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			builder.WriteByte(',')
		}
		builder.WriteRune(digit)
	}
	return builder.String()
}
