package stats

import "math"

const (
	// MinPruneSamples is the smallest sample that is trimmed at all.
	MinPruneSamples = 6
	// IQRFence is the Tukey fence multiplier for the first stage.
	IQRFence = 1.5
	// MADFence is the number of MADs from the median kept by the second stage.
	MADFence = 5.0
)

// Prune returns an ascending-sorted copy of cents with outliers removed in two
// stages: an IQR fence, then a MAD band around the median of the survivors.
//
// Samples shorter than MinPruneSamples are returned sorted but otherwise
// untouched. A non-empty input never yields an empty result: if the MAD stage
// removes everything the IQR result is returned, and if the IQR stage removes
// everything the sorted input is returned.
func Prune(cents []int64) []int64 {
	sorted := sortedCopy(cents)
	if len(sorted) < MinPruneSamples {
		return sorted
	}

	stage1 := iqrTrim(sorted)
	if len(stage1) == 0 {
		return sorted
	}
	if len(stage1) < MinPruneSamples {
		return stage1
	}

	stage2 := madTrim(stage1)
	if len(stage2) == 0 {
		return stage1
	}
	return stage2
}

func iqrTrim(sorted []int64) []int64 {
	q1 := Percentile(sorted, 0.25)
	q3 := Percentile(sorted, 0.75)
	iqr := q3 - q1
	lo, hi := q1-IQRFence*iqr, q3+IQRFence*iqr

	out := make([]int64, 0, len(sorted))
	for _, v := range sorted {
		f := float64(v)
		if f >= lo && f <= hi {
			out = append(out, v)
		}
	}
	return out
}

func madTrim(sorted []int64) []int64 {
	median := Percentile(sorted, 0.5)
	mad := MAD(sorted, median)
	if mad == 0 {
		mad = 1
	}
	band := MADFence * mad

	out := make([]int64, 0, len(sorted))
	for _, v := range sorted {
		if math.Abs(float64(v)-median) <= band {
			out = append(out, v)
		}
	}
	return out
}

// MAD returns the median absolute deviation of values around median.
func MAD(values []int64, median float64) float64 {
	if len(values) == 0 {
		return 0
	}
	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(float64(v) - median)
	}
	return Percentile(sortedCopy(dev), 0.5)
}
