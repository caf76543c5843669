// Package mathutil provides the shared bounding and rounding helpers used by
// every calculator. All range enforcement in the rating pipeline goes through
// Clamp so the stated bounds hold uniformly.
package mathutil

import "math"

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 bounds v to [0, 1].
func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

// ClampScore bounds v to the standard 0-100 subscore range.
func ClampScore(v float64) float64 {
	return Clamp(v, 0, 100)
}

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}

// IsFiniteNumber reports whether v is a well-formed number (not NaN or Inf).
func IsFiniteNumber(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SafeDiv divides a by b, returning fallback when b is zero or non-finite.
func SafeDiv(a, b, fallback float64) float64 {
	if b == 0 || !IsFiniteNumber(b) || !IsFiniteNumber(a) {
		return fallback
	}
	return a / b
}

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the population standard deviation of xs.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}
