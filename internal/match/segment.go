package match

import "github.com/sells-group/comps-cli/internal/model"

// Segments is the result of classifying one item's listing batch.
type Segments struct {
	Raw    []int64
	Graded []int64

	// Best-scoring accepted listing URL per segment, for sample_url.
	RawSampleURL    string
	GradedSampleURL string

	Stopword  int
	Presale   int
	BelowGate int
	Unpriced  int
}

// Accepted returns the number of listings that passed the gate.
func (s Segments) Accepted() int {
	return len(s.Raw) + len(s.Graded)
}

// Rejected returns the number of listings that were dropped.
func (s Segments) Rejected() int {
	return s.Stopword + s.Presale + s.BelowGate + s.Unpriced
}

// All returns the union of raw and graded samples (unsorted).
func (s Segments) All() []int64 {
	out := make([]int64, 0, s.Accepted())
	out = append(out, s.Raw...)
	return append(out, s.Graded...)
}

// Cents returns the samples for seg.
func (s Segments) Cents(seg model.Segment) []int64 {
	switch seg {
	case model.SegmentRaw:
		return s.Raw
	case model.SegmentGraded:
		return s.Graded
	default:
		return s.All()
	}
}

// SampleURL returns the representative listing URL for seg.
func (s Segments) SampleURL(seg model.Segment) string {
	switch seg {
	case model.SegmentRaw:
		return s.RawSampleURL
	case model.SegmentGraded:
		return s.GradedSampleURL
	default:
		if s.RawSampleURL != "" {
			return s.RawSampleURL
		}
		return s.GradedSampleURL
	}
}

// Segment scores every listing for item and buckets the accepted prices into
// raw and graded. Listings with a reject reason, a score below gate, or no
// positive price are dropped. Output order follows input order.
func Segment(scorer *Scorer, item model.CatalogItem, listings []model.Listing, gate int) Segments {
	m := scorer.ForItem(item)

	var out Segments
	var bestRaw, bestGraded = -1, -1
	for _, l := range listings {
		sl := m.Score(l.Title)
		switch {
		case sl.RejectReason == model.RejectStopword:
			out.Stopword++
			continue
		case sl.RejectReason == model.RejectPresale:
			out.Presale++
			continue
		case sl.Score < gate:
			out.BelowGate++
			continue
		case l.TotalPriceMinor <= 0:
			out.Unpriced++
			continue
		}

		if sl.Graded {
			out.Graded = append(out.Graded, l.TotalPriceMinor)
			if l.URL != "" && sl.Score > bestGraded {
				bestGraded = sl.Score
				out.GradedSampleURL = l.URL
			}
			continue
		}
		out.Raw = append(out.Raw, l.TotalPriceMinor)
		if l.URL != "" && sl.Score > bestRaw {
			bestRaw = sl.Score
			out.RawSampleURL = l.URL
		}
	}
	return out
}
