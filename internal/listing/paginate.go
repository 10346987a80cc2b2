package listing

import (
	"context"

	"github.com/sells-group/comps-cli/internal/model"
)

// PageFunc fetches one page; callers wrap Source.FetchPage with rate
// limiting and retry.
type PageFunc func(ctx context.Context, req PageRequest) (*Page, error)

// Paginate walks pages until the source signals the end or maxResults
// listings have been collected. A maxResults of zero means no cap. Short
// pages and offsets are judged by the upstream count, so rows a source
// could not parse neither end paging nor shift the offset.
func Paginate(ctx context.Context, mode Pagination, query string, pageSize, maxResults int, fetch PageFunc) ([]model.Listing, error) {
	if pageSize <= 0 {
		pageSize = 50
	}

	var (
		out  []model.Listing
		req  = PageRequest{Query: query, Limit: pageSize, Page: 1}
		seen = map[string]bool{}
	)
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		page, err := fetch(ctx, req)
		if err != nil {
			return out, err
		}
		if page == nil || page.Returned() == 0 {
			return out, nil
		}
		out = append(out, page.Listings...)
		if maxResults > 0 && len(out) >= maxResults {
			return out[:maxResults], nil
		}

		switch mode {
		case PaginationCursor:
			if page.NextCursor == "" || seen[page.NextCursor] {
				return out, nil
			}
			seen[page.NextCursor] = true
			req.Cursor = page.NextCursor
		default:
			n := page.Returned()
			if n < pageSize {
				return out, nil
			}
			req.Offset += n
			req.Page++
		}
	}
}
