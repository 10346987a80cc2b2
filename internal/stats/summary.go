package stats

import (
	"github.com/sells-group/comps-cli/internal/model"
)

// Summarize computes the canonical summary of an ascending-sorted sample.
// It returns nil for an empty sample. Callers holding unsorted data should
// pass it through Prune or sort it first.
func Summarize(sorted []int64) *model.Summary {
	n := len(sorted)
	if n == 0 {
		return nil
	}

	return &model.Summary{
		SampleCount: n,
		Min:         sorted[0],
		P10:         round(Percentile(sorted, 0.10)),
		P25:         round(Percentile(sorted, 0.25)),
		Median:      round(Percentile(sorted, 0.50)),
		P75:         round(Percentile(sorted, 0.75)),
		P90:         round(Percentile(sorted, 0.90)),
		Max:         sorted[n-1],
		Avg:         mean(sorted),
	}
}

// Reduce prunes cents and summarizes the survivors.
func Reduce(cents []int64) *model.Summary {
	return Summarize(Prune(cents))
}

// mean accumulates in float64 so large samples cannot overflow.
func mean(values []int64) int64 {
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return round(sum / float64(len(values)))
}
