package model

import "time"

// Segment is a condition bucket that is aggregated separately.
type Segment string

const (
	SegmentRaw    Segment = "raw"
	SegmentGraded Segment = "graded"
	SegmentAll    Segment = "all"
)

// ParseSegment returns the Segment named s, or false if s is not a segment.
func ParseSegment(s string) (Segment, bool) {
	switch Segment(s) {
	case SegmentRaw, SegmentGraded, SegmentAll:
		return Segment(s), true
	default:
		return "", false
	}
}

// Summary is the canonical statistics shape for one segment. All values are
// in minor currency units.
type Summary struct {
	SampleCount int   `json:"sample_count" yaml:"sample_count"`
	Min         int64 `json:"min" yaml:"min"`
	P10         int64 `json:"p10" yaml:"p10"`
	P25         int64 `json:"p25" yaml:"p25"`
	Median      int64 `json:"median" yaml:"median"`
	P75         int64 `json:"p75" yaml:"p75"`
	P90         int64 `json:"p90" yaml:"p90"`
	Max         int64 `json:"max" yaml:"max"`
	Avg         int64 `json:"avg" yaml:"avg"`
}

// Quantiles is the three-point view of a Summary.
type Quantiles struct {
	Low    int64 `json:"low"`
	Median int64 `json:"median"`
	High   int64 `json:"high"`
}

// QuantileMinSamples is the sample count from which the tail percentiles are
// used for Low/High instead of the extremes.
const QuantileMinSamples = 10

// Quantiles derives the three-point profile. Small samples use min/max since
// p10/p90 are unstable below QuantileMinSamples.
func (s Summary) Quantiles() Quantiles {
	if s.SampleCount >= QuantileMinSamples {
		return Quantiles{Low: s.P10, Median: s.Median, High: s.P90}
	}
	return Quantiles{Low: s.Min, Median: s.Median, High: s.Max}
}

// PriceStat is the persisted aggregate for one (item, category, segment) key.
// A nil Summary is a zero-sample heartbeat.
type PriceStat struct {
	ItemID     string    `json:"item_id"`
	Category   string    `json:"category"`
	Segment    Segment   `json:"segment"`
	Summary    *Summary  `json:"summary,omitempty"`
	Currency   string    `json:"currency"`
	CapturedAt time.Time `json:"captured_at"`
	SampleURL  string    `json:"sample_url,omitempty"`
	Method     string    `json:"method,omitempty"`
}

// SampleCount returns the number of samples behind the stat.
func (p PriceStat) SampleCount() int {
	if p.Summary == nil {
		return 0
	}
	return p.Summary.SampleCount
}
