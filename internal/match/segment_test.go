package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/comps-cli/internal/model"
	"github.com/sells-group/comps-cli/internal/stats"
)

func TestSegment_EndToEnd(t *testing.T) {
	t.Parallel()

	listings := []model.Listing{
		{Title: "1999 Base Set Charizard #4 PSA 9", TotalPriceMinor: 250000, URL: "https://example.test/a"},
		{Title: "Charizard #4 Base Set NM", TotalPriceMinor: 8000, URL: "https://example.test/b"},
		{Title: "Lot of 10 Pokemon cards", TotalPriceMinor: 500},
	}

	segs := Segment(NewScorer(nil), charizard, listings, DefaultScoreGate)

	assert.Equal(t, 1, segs.Stopword)
	assert.Equal(t, []int64{250000}, segs.Graded)
	assert.Equal(t, []int64{8000}, segs.Raw)
	assert.Equal(t, "https://example.test/a", segs.SampleURL(model.SegmentGraded))
	assert.Equal(t, "https://example.test/b", segs.SampleURL(model.SegmentRaw))

	graded := stats.Reduce(segs.Graded)
	require.NotNil(t, graded)
	assert.Equal(t, 1, graded.SampleCount)
	assert.Equal(t, int64(250000), graded.Median)

	raw := stats.Reduce(segs.Raw)
	require.NotNil(t, raw)
	assert.Equal(t, 1, raw.SampleCount)
	assert.Equal(t, int64(8000), raw.Median)
}

func TestSegment_GateAndCounters(t *testing.T) {
	t.Parallel()

	listings := []model.Listing{
		{Title: "Charizard holo", TotalPriceMinor: 9000},        // 30, below gate
		{Title: "Charizard #4 preorder", TotalPriceMinor: 9000}, // presale
		{Title: "Charizard #4", TotalPriceMinor: 0},             // unpriced
		{Title: "Charizard #4", TotalPriceMinor: 7000},          // 65
	}

	segs := Segment(NewScorer(nil), charizard, listings, DefaultScoreGate)
	assert.Equal(t, 1, segs.BelowGate)
	assert.Equal(t, 1, segs.Presale)
	assert.Equal(t, 1, segs.Unpriced)
	assert.Equal(t, 3, segs.Rejected())
	assert.Equal(t, 1, segs.Accepted())
	assert.Equal(t, []int64{7000}, segs.Raw)
	assert.Empty(t, segs.Graded)
}

func TestSegment_Deterministic(t *testing.T) {
	t.Parallel()

	listings := []model.Listing{
		{Title: "Charizard #4 Base Set", TotalPriceMinor: 1},
		{Title: "Charizard #4 Base Set CGC 8.5", TotalPriceMinor: 2},
		{Title: "Charizard #4 Base Set", TotalPriceMinor: 3},
	}
	s := NewScorer(nil)
	a := Segment(s, charizard, listings, 60)
	b := Segment(s, charizard, listings, 60)
	assert.Equal(t, a, b)
	assert.Equal(t, []int64{1, 3}, a.Raw)
	assert.Equal(t, []int64{2}, a.Graded)
}

func TestSegments_CentsAndAll(t *testing.T) {
	t.Parallel()

	s := Segments{Raw: []int64{1, 2}, Graded: []int64{3}, GradedSampleURL: "g"}
	assert.Equal(t, []int64{1, 2}, s.Cents(model.SegmentRaw))
	assert.Equal(t, []int64{3}, s.Cents(model.SegmentGraded))
	assert.ElementsMatch(t, []int64{1, 2, 3}, s.Cents(model.SegmentAll))
	assert.Equal(t, "g", s.SampleURL(model.SegmentAll))
}
