package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/comps-cli/internal/listing"
	"github.com/sells-group/comps-cli/internal/match"
	"github.com/sells-group/comps-cli/internal/model"
	"github.com/sells-group/comps-cli/internal/resilience"
	"github.com/sells-group/comps-cli/internal/stats"
)

// ItemResult is the outcome of one item's pipeline.
type ItemResult struct {
	Item     model.CatalogItem
	State    model.ItemState
	Query    string
	Fetched  int
	Segments match.Segments
	Stats    []model.PriceStat
	Written  []model.Segment
	Rows     int64
	Duration time.Duration
	Err      error
}

// ProcessItem runs one item through
// pending → fetching → scoring → aggregating → persisted | skipped | failed.
// Errors end the item in StateFailed; they are returned in the result.
func (o *Orchestrator) ProcessItem(ctx context.Context, item model.CatalogItem) (res ItemResult) {
	start := time.Now()
	res = ItemResult{Item: item, State: model.StatePending}

	defer func() {
		res.Duration = time.Since(start)
		o.logItem(res)
	}()

	fail := func(err error) ItemResult {
		res.State = model.StateFailed
		res.Err = err
		return res
	}

	res.State = model.StateFetching
	res.Query = o.deps.Queries.Build(item)
	if res.Query == "" {
		return fail(eris.Errorf("pipeline: item %s has no searchable attributes", item.ID))
	}
	listings, err := o.fetch(ctx, res.Query)
	res.Fetched = len(listings)
	if err != nil {
		return fail(eris.Wrapf(err, "pipeline: fetch listings for %s", item.ID))
	}

	res.State = model.StateScoring
	res.Segments = match.Segment(o.deps.Scorer, item, listings, o.opts.ScoreGate)

	res.State = model.StateAggregating
	captured := o.now()
	priced := 0
	for _, seg := range o.opts.Segments {
		summary := stats.Reduce(res.Segments.Cents(seg))
		if summary == nil && o.opts.EmptyPolicy != EmptyHeartbeat {
			continue
		}
		if summary != nil {
			priced++
		}
		res.Stats = append(res.Stats, model.PriceStat{
			ItemID:     item.ID,
			Category:   item.Category,
			Segment:    seg,
			Summary:    summary,
			Currency:   o.opts.Currency,
			CapturedAt: captured,
			SampleURL:  res.Segments.SampleURL(seg),
			Method:     o.opts.Method,
		})
	}
	if len(res.Stats) == 0 {
		res.State = model.StateSkipped
		return res
	}

	for _, stat := range res.Stats {
		n, err := resilience.Do(ctx, o.opts.PersistPolicy, func(ctx context.Context) (int64, error) {
			return o.deps.Writer.Write(ctx, o.opts.Table, stat)
		})
		if err != nil {
			return fail(eris.Wrapf(err, "pipeline: persist %s/%s", item.ID, stat.Segment))
		}
		res.Rows += n
		res.Written = append(res.Written, stat.Segment)
	}

	if priced == 0 {
		res.State = model.StateSkipped
		return res
	}
	res.State = model.StatePersisted
	return res
}

// fetch collects listings for query across pages. Each page waits on the
// host limiter and is retried under the fetch policy; a 429 slows the host
// down for every worker.
func (o *Orchestrator) fetch(ctx context.Context, query string) ([]model.Listing, error) {
	src := o.deps.Source
	host := src.Host()

	page := func(ctx context.Context, req listing.PageRequest) (*listing.Page, error) {
		return resilience.Do(ctx, o.opts.FetchPolicy, func(ctx context.Context) (*listing.Page, error) {
			if err := o.deps.Limiter.Wait(ctx, host); err != nil {
				return nil, err
			}
			p, err := src.FetchPage(ctx, req)
			switch {
			case listing.IsRateLimited(err):
				o.deps.Limiter.Backoff(host)
			case err == nil:
				o.deps.Limiter.Recover(host)
			}
			return p, err
		})
	}

	return listing.Paginate(ctx, src.Pagination(), query, o.opts.PageSize, o.opts.MaxResults, page)
}

func (o *Orchestrator) logItem(res ItemResult) {
	fields := []zap.Field{
		zap.String("item_id", res.Item.ID),
		zap.String("category", res.Item.Category),
		zap.String("state", string(res.State)),
		zap.String("query", res.Query),
		zap.Int("fetched", res.Fetched),
		zap.Int("raw", len(res.Segments.Raw)),
		zap.Int("graded", len(res.Segments.Graded)),
		zap.Int("stopword", res.Segments.Stopword),
		zap.Int("presale", res.Segments.Presale),
		zap.Int("below_gate", res.Segments.BelowGate),
		zap.Int64("rows", res.Rows),
		zap.Duration("duration", res.Duration),
	}
	switch res.State {
	case model.StateFailed:
		zap.L().Warn("pipeline: item missing", append(fields, zap.Error(res.Err))...)
	case model.StateSkipped:
		zap.L().Info("pipeline: item skipped, no samples", fields...)
	default:
		zap.L().Info("pipeline: item persisted", fields...)
	}
}
