package listing

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/comps-cli/internal/model"
)

// Response formats understood by HTTPSource.
const (
	FormatJSON = "json"
	FormatHTML = "html"
)

const maxBodyBytes = 16 << 20

// HTTPConfig configures a generic search endpoint. JSON responses are read
// with gjson paths relative to each item; HTML responses with CSS selectors
// relative to each item node.
type HTTPConfig struct {
	Name       string
	BaseURL    string
	Format     string
	Pagination Pagination

	QueryParam  string
	PageParam   string
	OffsetParam string
	LimitParam  string
	CursorParam string

	ItemsPath      string
	TitlePath      string
	PricePath      string
	URLPath        string
	NextCursorPath string

	ItemSelector  string
	TitleSelector string
	PriceSelector string
	LinkSelector  string
	NextSelector  string

	PriceUnit PriceUnit
	UserAgent string
	Timeout   time.Duration
	Headers   map[string]string
}

// HTTPSource implements Source over net/http.
type HTTPSource struct {
	cfg    HTTPConfig
	base   *url.URL
	client *http.Client
}

// NewHTTPSource validates cfg and builds a source.
func NewHTTPSource(cfg HTTPConfig) (*HTTPSource, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Host == "" {
		return nil, eris.Errorf("listing: invalid base_url %q", cfg.BaseURL)
	}

	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	switch cfg.Format {
	case FormatJSON:
		if cfg.TitlePath == "" || cfg.PricePath == "" {
			return nil, eris.New("listing: json source needs title_path and price_path")
		}
	case FormatHTML:
		if cfg.ItemSelector == "" || cfg.TitleSelector == "" || cfg.PriceSelector == "" {
			return nil, eris.New("listing: html source needs item, title and price selectors")
		}
	default:
		return nil, eris.Errorf("listing: unknown format %q", cfg.Format)
	}

	if cfg.Pagination == "" {
		cfg.Pagination = PaginationOffset
	}
	if cfg.Name == "" {
		cfg.Name = base.Host
	}
	if cfg.QueryParam == "" {
		cfg.QueryParam = "q"
	}
	if cfg.PriceUnit == "" {
		cfg.PriceUnit = UnitMajor
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "comps-cli/1.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPSource{
		cfg:  cfg,
		base: base,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}, nil
}

// Name implements Source.
func (s *HTTPSource) Name() string { return s.cfg.Name }

// Host implements Source.
func (s *HTTPSource) Host() string { return s.base.Host }

// Pagination implements Source.
func (s *HTTPSource) Pagination() Pagination { return s.cfg.Pagination }

// FetchPage implements Source. Non-200 responses and transport failures
// come back as *FetchError.
func (s *HTTPSource) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	target := s.pageURL(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, eris.Wrap(err, "listing: create request")
	}
	httpReq.Header.Set("User-Agent", s.cfg.UserAgent)
	httpReq.Header.Set("Accept-Encoding", "gzip, br")
	if s.cfg.Format == FormatJSON {
		httpReq.Header.Set("Accept", "application/json")
	} else {
		httpReq.Header.Set("Accept", "text/html,application/xhtml+xml")
	}
	for k, v := range s.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &FetchError{Host: s.Host(), Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{
			Host:       s.Host(),
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("unexpected status %d from %s", resp.StatusCode, target),
		}
	}

	reader, err := decodeBody(resp)
	if err != nil {
		return nil, &FetchError{Host: s.Host(), Err: err}
	}
	body, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Host: s.Host(), Err: err}
	}

	if s.cfg.Format == FormatHTML {
		return s.parseHTML(body, resp.Request.URL)
	}
	return s.parseJSON(body)
}

// pageURL builds the request URL. A cursor that is itself an absolute URL
// (an HTML "next" link) is fetched as-is.
func (s *HTTPSource) pageURL(req PageRequest) string {
	if req.Cursor != "" && (strings.HasPrefix(req.Cursor, "http://") || strings.HasPrefix(req.Cursor, "https://")) {
		return req.Cursor
	}

	u := *s.base
	q := u.Query()
	q.Set(s.cfg.QueryParam, req.Query)
	if s.cfg.LimitParam != "" && req.Limit > 0 {
		q.Set(s.cfg.LimitParam, strconv.Itoa(req.Limit))
	}
	switch s.cfg.Pagination {
	case PaginationOffset:
		if s.cfg.OffsetParam != "" {
			q.Set(s.cfg.OffsetParam, strconv.Itoa(req.Offset))
		}
	case PaginationPage:
		if s.cfg.PageParam != "" {
			q.Set(s.cfg.PageParam, strconv.Itoa(max(req.Page, 1)))
		}
	case PaginationCursor:
		if s.cfg.CursorParam != "" && req.Cursor != "" {
			q.Set(s.cfg.CursorParam, req.Cursor)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// decodeBody unwraps gzip and brotli content encodings.
func decodeBody(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "listing: gzip reader")
		}
		return zr, nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

func (s *HTTPSource) parseJSON(body []byte) (*Page, error) {
	if !gjson.ValidBytes(body) {
		return nil, eris.Errorf("listing: %s returned invalid json", s.Host())
	}

	items := gjson.ParseBytes(body)
	if s.cfg.ItemsPath != "" {
		items = gjson.GetBytes(body, s.cfg.ItemsPath)
	}

	page := &Page{}
	skipped := 0
	items.ForEach(func(_, item gjson.Result) bool {
		page.Raw++
		title := strings.TrimSpace(item.Get(s.cfg.TitlePath).String())
		price, ok := s.jsonPrice(item.Get(s.cfg.PricePath))
		if title == "" || !ok {
			skipped++
			return true
		}
		l := model.Listing{Title: title, TotalPriceMinor: price}
		if s.cfg.URLPath != "" {
			l.URL = item.Get(s.cfg.URLPath).String()
		}
		page.Listings = append(page.Listings, l)
		return true
	})
	if s.cfg.NextCursorPath != "" {
		page.NextCursor = gjson.GetBytes(body, s.cfg.NextCursorPath).String()
	}
	if skipped > 0 {
		zap.L().Debug("listing: skipped unparseable results",
			zap.String("source", s.Name()),
			zap.Int("skipped", skipped),
		)
	}
	return page, nil
}

func (s *HTTPSource) jsonPrice(v gjson.Result) (int64, bool) {
	switch v.Type {
	case gjson.Number:
		if s.cfg.PriceUnit == UnitMinor {
			return v.Int(), true
		}
		return MajorToMinor(v.Float()), true
	case gjson.String:
		cents, err := ParseMinorUnits(v.String(), s.cfg.PriceUnit)
		return cents, err == nil
	default:
		return 0, false
	}
}

func (s *HTTPSource) parseHTML(body []byte, pageURL *url.URL) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "listing: parse html")
	}

	page := &Page{}
	doc.Find(s.cfg.ItemSelector).Each(func(_ int, sel *goquery.Selection) {
		page.Raw++
		title := strings.Join(strings.Fields(sel.Find(s.cfg.TitleSelector).First().Text()), " ")
		if title == "" {
			return
		}
		price, err := ParseMinorUnits(sel.Find(s.cfg.PriceSelector).First().Text(), s.cfg.PriceUnit)
		if err != nil {
			return
		}
		l := model.Listing{Title: title, TotalPriceMinor: price}
		if s.cfg.LinkSelector != "" {
			if href, ok := sel.Find(s.cfg.LinkSelector).First().Attr("href"); ok {
				l.URL = resolveRef(pageURL, href)
			}
		}
		page.Listings = append(page.Listings, l)
	})

	if s.cfg.NextSelector != "" {
		if href, ok := doc.Find(s.cfg.NextSelector).First().Attr("href"); ok && href != "" {
			page.NextCursor = resolveRef(pageURL, href)
		}
	}
	return page, nil
}

func resolveRef(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
