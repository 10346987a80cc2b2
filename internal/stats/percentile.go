// Package stats reduces a segment's price samples to robust summary statistics.
package stats

import (
	"math"
	"slices"
)

// Percentile returns the p-th percentile (0 ≤ p ≤ 1) of an ascending-sorted
// slice using linear interpolation between the order statistics at
// floor((n-1)·p) and ceil((n-1)·p). It returns 0 for an empty slice.
func Percentile[T ~int64 | ~float64](sorted []T, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return float64(sorted[0])
	}
	if p >= 1 {
		return float64(sorted[n-1])
	}

	idx := float64(n-1) * p
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return float64(sorted[lo])
	}
	frac := idx - float64(lo)
	return float64(sorted[lo]) + frac*float64(sorted[hi]-sorted[lo])
}

// sortedCopy returns an ascending copy of values; the input is not modified.
func sortedCopy[T ~int64 | ~float64](values []T) []T {
	out := slices.Clone(values)
	slices.Sort(out)
	return out
}

func round(v float64) int64 {
	return int64(math.Round(v))
}
