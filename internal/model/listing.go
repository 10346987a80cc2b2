package model

// RejectReason explains why a listing was hard-rejected before scoring.
type RejectReason string

const (
	RejectNone     RejectReason = ""
	RejectStopword RejectReason = "stopword"
	RejectPresale  RejectReason = "presale"
)

// Listing is one marketplace result as returned by a listing source.
// Listings are never persisted individually.
type Listing struct {
	Title           string `json:"title"`
	TotalPriceMinor int64  `json:"total_price_minor"` // price plus shipping, minor currency units
	URL             string `json:"url,omitempty"`
}

// ScoredListing is a Listing annotated by the relevance scorer.
type ScoredListing struct {
	Listing
	Score        int          `json:"score"`
	Graded       bool         `json:"graded"`
	RejectReason RejectReason `json:"reject_reason,omitempty"`
}

// Rejected reports whether the listing was hard-rejected.
func (s ScoredListing) Rejected() bool {
	return s.RejectReason != RejectNone
}
