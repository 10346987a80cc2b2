package listing

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/comps-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const searchJSON = `{
	"results": [
		{"title": "Charizard PSA 10 Base Set 4/102", "price": {"value": 2500.00}, "href": "https://m.test/1"},
		{"title": "Charizard Base Set 4/102 holo", "price": {"value": "$80.00"}, "href": "https://m.test/2"},
		{"title": "", "price": {"value": 1}},
		{"title": "Make an offer", "price": {"value": null}}
	],
	"next": "abc"
}`

func jsonConfig(baseURL string) HTTPConfig {
	return HTTPConfig{
		BaseURL:        baseURL + "/search",
		Format:         FormatJSON,
		Pagination:     PaginationOffset,
		OffsetParam:    "offset",
		LimitParam:     "limit",
		ItemsPath:      "results",
		TitlePath:      "title",
		PricePath:      "price.value",
		URLPath:        "href",
		NextCursorPath: "next",
	}
}

func TestHTTPSource_JSON(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		assert.Equal(t, "comps-cli/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchJSON))
	}))
	defer srv.Close()

	cfg := jsonConfig(srv.URL)
	cfg.Headers = map[string]string{"X-Api-Key": "secret"}
	src, err := NewHTTPSource(cfg)
	require.NoError(t, err)

	page, err := src.FetchPage(context.Background(), PageRequest{Query: "pokemon Base Set Charizard #4", Limit: 50, Offset: 100})
	require.NoError(t, err)

	assert.Equal(t, []string{"pokemon Base Set Charizard #4"}, gotQuery["q"])
	assert.Equal(t, []string{"100"}, gotQuery["offset"])
	assert.Equal(t, []string{"50"}, gotQuery["limit"])

	assert.Equal(t, []model.Listing{
		{Title: "Charizard PSA 10 Base Set 4/102", TotalPriceMinor: 250000, URL: "https://m.test/1"},
		{Title: "Charizard Base Set 4/102 holo", TotalPriceMinor: 8000, URL: "https://m.test/2"},
	}, page.Listings)
	assert.Equal(t, "abc", page.NextCursor)
	assert.Equal(t, 4, page.Raw)
	assert.Equal(t, PaginationOffset, src.Pagination())
	assert.Equal(t, src.Host(), src.Name())
}

func TestHTTPSource_PaginatePastUnparseableRow(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offsets = append(offsets, r.URL.Query().Get("offset"))
		switch r.URL.Query().Get("offset") {
		case "0":
			_, _ = w.Write([]byte(`{"results": [
				{"title": "A1", "price": {"value": 1}},
				{"title": "A2", "price": {"value": null}},
				{"title": "A3", "price": {"value": 3}},
				{"title": "A4", "price": {"value": 4}}
			]}`))
		default:
			_, _ = w.Write([]byte(`{"results": [
				{"title": "B1", "price": {"value": 5}},
				{"title": "B2", "price": {"value": 6}}
			]}`))
		}
	}))
	defer srv.Close()

	src, err := NewHTTPSource(jsonConfig(srv.URL))
	require.NoError(t, err)
	got, err := Paginate(context.Background(), src.Pagination(), "x", 4, 0, src.FetchPage)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "4"}, offsets)
	assert.Len(t, got, 5)
}

func TestHTTPSource_DecodesGzipAndBrotli(t *testing.T) {
	for _, enc := range []string{"gzip", "br"} {
		t.Run(enc, func(t *testing.T) {
			var buf bytes.Buffer
			switch enc {
			case "gzip":
				zw := gzip.NewWriter(&buf)
				_, _ = zw.Write([]byte(searchJSON))
				require.NoError(t, zw.Close())
			case "br":
				bw := brotli.NewWriter(&buf)
				_, _ = bw.Write([]byte(searchJSON))
				require.NoError(t, bw.Close())
			}

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Contains(t, r.Header.Get("Accept-Encoding"), enc)
				w.Header().Set("Content-Encoding", enc)
				_, _ = w.Write(buf.Bytes())
			}))
			defer srv.Close()

			src, err := NewHTTPSource(jsonConfig(srv.URL))
			require.NoError(t, err)
			page, err := src.FetchPage(context.Background(), PageRequest{Query: "x"})
			require.NoError(t, err)
			assert.Len(t, page.Listings, 2)
		})
	}
}

func TestHTTPSource_StatusErrors(t *testing.T) {
	for _, tc := range []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))

		src, err := NewHTTPSource(jsonConfig(srv.URL))
		require.NoError(t, err)
		_, err = src.FetchPage(context.Background(), PageRequest{Query: "x"})
		srv.Close()

		var fe *FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, tc.status, fe.StatusCode)
		assert.Equal(t, tc.retryable, IsRetryable(err), "status %d", tc.status)
	}
}

func TestHTTPSource_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	src, err := NewHTTPSource(jsonConfig(srv.URL))
	require.NoError(t, err)
	_, err = src.FetchPage(context.Background(), PageRequest{Query: "x"})
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

const searchHTML = `<html><body>
<ul class="results">
  <li class="item">
    <a class="link" href="/itm/1"><h3 class="title">Charizard  Base Set
      4/102</h3></a>
    <span class="price">$80.00</span>
  </li>
  <li class="item">
    <a class="link" href="https://other.test/itm/2"><h3 class="title">Charizard PSA 9</h3></a>
    <span class="price">$1,250.00</span>
  </li>
  <li class="item"><h3 class="title">No price</h3></li>
</ul>
<a class="next" href="/search?q=x&amp;page=2">Next</a>
</body></html>`

func TestHTTPSource_HTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(searchHTML))
	}))
	defer srv.Close()

	src, err := NewHTTPSource(HTTPConfig{
		Name:          "html-market",
		BaseURL:       srv.URL + "/search",
		Format:        FormatHTML,
		Pagination:    PaginationCursor,
		ItemSelector:  "li.item",
		TitleSelector: ".title",
		PriceSelector: ".price",
		LinkSelector:  "a.link",
		NextSelector:  "a.next",
	})
	require.NoError(t, err)

	page, err := src.FetchPage(context.Background(), PageRequest{Query: "x"})
	require.NoError(t, err)
	assert.Equal(t, []model.Listing{
		{Title: "Charizard Base Set 4/102", TotalPriceMinor: 8000, URL: srv.URL + "/itm/1"},
		{Title: "Charizard PSA 9", TotalPriceMinor: 125000, URL: "https://other.test/itm/2"},
	}, page.Listings)
	assert.Equal(t, 3, page.Raw)
	assert.Equal(t, srv.URL+"/search?q=x&page=2", page.NextCursor)
	assert.Equal(t, "html-market", src.Name())

	// An absolute cursor is fetched as-is.
	assert.Equal(t, page.NextCursor, src.pageURL(PageRequest{Query: "x", Cursor: page.NextCursor}))
}

func TestHTTPSource_PageURL(t *testing.T) {
	src, err := NewHTTPSource(HTTPConfig{
		BaseURL:     "https://api.market.test/v1/search?site=us",
		Pagination:  PaginationPage,
		QueryParam:  "keywords",
		PageParam:   "page",
		TitlePath:   "t",
		PricePath:   "p",
		CursorParam: "cursor",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://api.market.test/v1/search?keywords=a+b&page=3&site=us",
		src.pageURL(PageRequest{Query: "a b", Page: 3}))
	assert.Equal(t, "api.market.test", src.Host())
}

func TestNewHTTPSource_Validation(t *testing.T) {
	_, err := NewHTTPSource(HTTPConfig{BaseURL: "not a url"})
	assert.Error(t, err)
	_, err = NewHTTPSource(HTTPConfig{BaseURL: "https://x.test", Format: FormatJSON})
	assert.Error(t, err)
	_, err = NewHTTPSource(HTTPConfig{BaseURL: "https://x.test", Format: FormatHTML, ItemSelector: "li"})
	assert.Error(t, err)
	_, err = NewHTTPSource(HTTPConfig{BaseURL: "https://x.test", Format: "xml"})
	assert.Error(t, err)
}
