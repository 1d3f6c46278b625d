// Package mathutil provides common mathematical utility functions.
package mathutil

import "math"

// Steps returns the number of whole precision steps in val. A non-positive step
// leaves the value untouched and reports ok=false.
func Steps(val, step float64) (int64, bool) {
	if step <= 0 || math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, false
	}
	return int64(math.Round(val / step)), true
}

// RoundTo rounds val to the nearest multiple of step. Decimal fractions such as
// 1e-5 divide by the reciprocal so the result is the closest float64 to the
// decimal value.
func RoundTo(val, step float64) float64 {
	n, ok := Steps(val, step)
	if !ok {
		return val
	}
	if step < 1 {
		inv := math.Round(1 / step)
		if math.Abs(inv*step-1) < 1e-12 {
			return float64(n) / inv
		}
	}
	return float64(n) * step
}

// Clamp limits val to the inclusive interval [lo, hi].
func Clamp(val, lo, hi float64) float64 {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

// WithinTolerance checks if two values are within a specified tolerance
func WithinTolerance(val1, val2, tolerance float64) bool {
	return math.Abs(val1-val2) <= tolerance
}

// Sign returns -1, 0 or 1 according to the sign of val.
func Sign(val float64) float64 {
	switch {
	case val > 0:
		return 1
	case val < 0:
		return -1
	default:
		return 0
	}
}

// DefaultStep derives a resolution for a parameter spanning span units, digits
// orders of magnitude below the span and never coarser than 1.
func DefaultStep(span float64, digits int) float64 {
	if span <= 0 {
		return 1
	}
	exp := math.Floor(math.Log10(span)) - float64(digits)
	return math.Min(1, math.Pow(10, exp))
}
