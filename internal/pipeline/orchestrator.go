// Package pipeline runs catalog items through fetch, scoring, aggregation
// and persistence under a bounded worker pool.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/comps-cli/internal/db"
	"github.com/sells-group/comps-cli/internal/listing"
	"github.com/sells-group/comps-cli/internal/match"
	"github.com/sells-group/comps-cli/internal/model"
	"github.com/sells-group/comps-cli/internal/persist"
	"github.com/sells-group/comps-cli/internal/ratelimit"
	"github.com/sells-group/comps-cli/internal/resilience"
	"github.com/sells-group/comps-cli/internal/runlog"
)

// EmptyPolicy decides what happens to a segment with no surviving samples.
type EmptyPolicy string

// Empty-sample policies.
const (
	EmptySkip      EmptyPolicy = "skip"
	EmptyHeartbeat EmptyPolicy = "heartbeat"
)

// Writer persists one stat. *persist.Persister satisfies it.
type Writer interface {
	Write(ctx context.Context, table string, stat model.PriceStat) (int64, error)
}

// Options tune a run.
type Options struct {
	Table         string
	Workers       int
	ScoreGate     int
	PageSize      int
	MaxResults    int
	Currency      string
	Method        string
	Segments      []model.Segment
	EmptyPolicy   EmptyPolicy
	ItemTimeout   time.Duration
	FetchPolicy   resilience.Policy
	PersistPolicy resilience.Policy

	// OnItem, when set, receives every item result as it completes.
	OnItem func(ItemResult)
}

// Deps are the collaborators an Orchestrator composes.
type Deps struct {
	Source  listing.Source
	Limiter *ratelimit.HostLimiter
	Queries *match.QueryBuilder
	Scorer  *match.Scorer
	Writer  Writer
}

// RunStats are the aggregate counters of one run. Processed counts items
// that reached a terminal state; Missing counts those that produced no
// price row (skipped or failed); Failed is the error subset of Missing.
type RunStats struct {
	Processed   int64         `json:"processed"`
	Saved       int64         `json:"saved"`
	Missing     int64         `json:"missing"`
	Failed      int64         `json:"failed"`
	Rows        int64         `json:"rows"`
	Unscheduled int64         `json:"unscheduled"`
	Duration    time.Duration `json:"duration"`
}

// Counters converts the stats to ledger counters.
func (s RunStats) Counters() runlog.Counters {
	return runlog.Counters{
		Processed: s.Processed,
		Saved:     s.Saved,
		Missing:   s.Missing,
		Failed:    s.Failed,
		Rows:      s.Rows,
	}
}

// Orchestrator composes the per-item pipeline.
type Orchestrator struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New creates an Orchestrator, filling unset options with defaults.
func New(deps Deps, opts Options) *Orchestrator {
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewHostLimiter(0)
	}
	if deps.Queries == nil {
		deps.Queries = match.NewQueryBuilder(nil)
	}
	if deps.Scorer == nil {
		deps.Scorer = match.NewScorer(nil)
	}
	return &Orchestrator{deps: deps, opts: withDefaults(opts), now: func() time.Time { return time.Now().UTC() }}
}

func withDefaults(o Options) Options {
	if o.Table == "" {
		o.Table = "price_stats"
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.ScoreGate <= 0 {
		o.ScoreGate = match.DefaultScoreGate
	}
	if o.PageSize <= 0 {
		o.PageSize = 50
	}
	if o.MaxResults < 0 {
		o.MaxResults = 0
	}
	if o.Currency == "" {
		o.Currency = "USD"
	}
	if o.Method == "" {
		o.Method = persist.DefaultMethod
	}
	if len(o.Segments) == 0 {
		o.Segments = []model.Segment{model.SegmentRaw, model.SegmentGraded, model.SegmentAll}
	}
	if o.EmptyPolicy == "" {
		o.EmptyPolicy = EmptySkip
	}
	if o.ItemTimeout <= 0 {
		o.ItemTimeout = 2 * time.Minute
	}
	if o.FetchPolicy.MaxAttempts == 0 {
		o.FetchPolicy = resilience.DefaultPolicy()
	}
	if o.PersistPolicy.MaxAttempts == 0 {
		o.PersistPolicy = resilience.PersistPolicy()
	}
	o.FetchPolicy = o.FetchPolicy.WithRetryable(listing.IsRetryable).WithLogger("listing", "fetch_page")
	o.PersistPolicy = o.PersistPolicy.WithRetryable(db.IsTransient).WithLogger("persist", "write")
	return o
}

// Run processes items with at most Workers in flight. A cancelled ctx stops
// scheduling; items already running finish on a detached context bounded by
// ItemTimeout. Item failures are counted, never returned; the error is
// ctx's when the run was interrupted.
func (o *Orchestrator) Run(ctx context.Context, items []model.CatalogItem) (*RunStats, error) {
	start := time.Now()
	log := zap.L().With(zap.String("source", o.deps.Source.Name()), zap.String("table", o.opts.Table))
	log.Info("pipeline: starting run",
		zap.Int("items", len(items)),
		zap.Int("workers", o.opts.Workers),
	)

	var processed, saved, missing, failed, rows, unscheduled atomic.Int64

	var g errgroup.Group
	g.SetLimit(o.opts.Workers)

	for i, item := range items {
		if ctx.Err() != nil {
			unscheduled.Add(int64(len(items) - i))
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				unscheduled.Add(1)
				return nil
			}

			itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.ItemTimeout)
			defer cancel()

			res := o.ProcessItem(itemCtx, item)
			processed.Add(1)
			rows.Add(res.Rows)
			switch res.State {
			case model.StatePersisted:
				saved.Add(1)
			case model.StateFailed:
				missing.Add(1)
				failed.Add(1)
			default:
				missing.Add(1)
			}
			if o.opts.OnItem != nil {
				o.opts.OnItem(res)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := &RunStats{
		Processed:   processed.Load(),
		Saved:       saved.Load(),
		Missing:     missing.Load(),
		Failed:      failed.Load(),
		Rows:        rows.Load(),
		Unscheduled: unscheduled.Load(),
		Duration:    time.Since(start),
	}
	log.Info("pipeline: run complete",
		zap.Int64("processed", stats.Processed),
		zap.Int64("saved", stats.Saved),
		zap.Int64("missing", stats.Missing),
		zap.Int64("failed", stats.Failed),
		zap.Int64("rows", stats.Rows),
		zap.Int64("unscheduled", stats.Unscheduled),
		zap.Duration("duration", stats.Duration),
	)
	return stats, ctx.Err()
}
