// Package listing defines how marketplace listings are fetched page by page,
// and ships a configurable HTTP source for JSON and HTML search endpoints.
package listing

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/comps-cli/internal/model"
	"github.com/sells-group/comps-cli/internal/resilience"
)

// Pagination is how a source pages through results.
type Pagination string

// Pagination modes. Offset and page sources end on a short page; cursor
// sources end when no next cursor is returned.
const (
	PaginationOffset Pagination = "offset"
	PaginationPage   Pagination = "page"
	PaginationCursor Pagination = "cursor"
)

// ParsePagination validates a configured pagination mode.
func ParsePagination(s string) (Pagination, error) {
	switch p := Pagination(s); p {
	case PaginationOffset, PaginationPage, PaginationCursor:
		return p, nil
	case "":
		return PaginationOffset, nil
	default:
		return "", eris.Errorf("listing: unknown pagination %q", s)
	}
}

// PageRequest asks a source for one page of results.
type PageRequest struct {
	Query  string
	Limit  int
	Offset int    // offset mode, 0-based
	Page   int    // page mode, 1-based
	Cursor string // cursor mode, empty for the first page
}

// Page is one page of results. Raw is how many results the upstream page
// held before unusable rows were dropped; zero means len(Listings).
type Page struct {
	Listings   []model.Listing
	NextCursor string
	Raw        int
}

// Returned is the upstream result count of the page.
func (p *Page) Returned() int {
	if p.Raw > len(p.Listings) {
		return p.Raw
	}
	return len(p.Listings)
}

// Source is an external listing fetcher.
type Source interface {
	Name() string
	Host() string
	Pagination() Pagination
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}

// FetchError is a failed page fetch. StatusCode is zero for transport errors.
type FetchError struct {
	Host       string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("listing: %s returned http %d", e.Host, e.StatusCode)
	}
	return fmt.Sprintf("listing: fetch from %s: %v", e.Host, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the fetch is worth another attempt: 408, 429,
// 5xx and transient transport errors.
func (e *FetchError) Retryable() bool {
	if e.StatusCode != 0 {
		return resilience.IsTransientHTTPStatus(e.StatusCode)
	}
	return resilience.IsTransient(e.Err)
}

// RateLimited reports whether the host answered 429.
func (e *FetchError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsRetryable classifies any error returned from a Source.
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	return resilience.IsTransient(err)
}

// IsRateLimited reports whether err carries a 429.
func IsRateLimited(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.RateLimited()
}
