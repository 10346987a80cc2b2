package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/comps-cli/internal/catalog"
	"github.com/sells-group/comps-cli/internal/config"
	"github.com/sells-group/comps-cli/internal/db"
	"github.com/sells-group/comps-cli/internal/listing"
	"github.com/sells-group/comps-cli/internal/match"
	"github.com/sells-group/comps-cli/internal/persist"
	"github.com/sells-group/comps-cli/internal/pipeline"
	"github.com/sells-group/comps-cli/internal/ratelimit"
	"github.com/sells-group/comps-cli/internal/resilience"
	"github.com/sells-group/comps-cli/internal/runlog"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh price statistics for catalog items",
	Long: `Loads catalog items, searches the configured marketplace for each one,
filters listings by relevance, aggregates raw/graded/all price statistics and
writes one row per item and segment into the destination table.

Only one sync runs at a time per lock file. Use --schedule with a cron
expression to keep running until interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		applySyncFlags(cmd, cfg)
		if err := cfg.Validate("sync"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		lock := flock.New(cfg.Sync.LockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return eris.Wrapf(err, "sync: acquire lock %s", cfg.Sync.LockPath)
		}
		if !locked {
			return eris.Errorf("sync: another sync holds %s", cfg.Sync.LockPath)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				zap.L().Warn("sync: release lock", zap.Error(err))
			}
		}()

		conn, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
			if _, err := db.Migrate(ctx, conn); err != nil {
				return eris.Wrap(err, "sync: migrate")
			}
		}

		src, err := buildSource(cfg)
		if err != nil {
			return err
		}
		runner, err := newSyncRunner(conn, cfg, src)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		checker := newChecker(conn, cfg.Monitoring)
		once := func(ctx context.Context) error {
			stats, err := runner.Run(ctx)
			if stats != nil {
				fmt.Fprintln(out, formatRunStats(stats))
			}
			if cfg.Monitoring.WebhookURL != "" {
				if _, _, cerr := checker.Check(context.WithoutCancel(ctx)); cerr != nil {
					zap.L().Warn("sync: health check", zap.Error(cerr))
				}
			}
			return err
		}

		if cfg.Sync.Schedule == "" {
			return once(ctx)
		}
		return runScheduled(ctx, cfg.Sync.Schedule, once)
	},
}

func init() {
	registerSyncFlags(syncCmd)
	rootCmd.AddCommand(syncCmd)
}

func registerSyncFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("category", "", "only sync items in this category")
	f.Int("limit", 0, "maximum number of catalog items (0 = all)")
	f.Int("workers", 0, "concurrent items (overrides sync.workers)")
	f.String("table", "", "destination table (overrides sync.table)")
	f.String("schedule", "", "cron expression; run repeatedly until interrupted")
	f.Bool("migrate", false, "apply migrations before syncing")
}

// applySyncFlags overlays explicitly set flags on the sync config.
func applySyncFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("category") {
		c.Sync.Category, _ = f.GetString("category")
	}
	if f.Changed("limit") {
		c.Sync.Limit, _ = f.GetInt("limit")
	}
	if f.Changed("workers") {
		c.Sync.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("table") {
		c.Sync.Table, _ = f.GetString("table")
	}
	if f.Changed("schedule") {
		c.Sync.Schedule, _ = f.GetString("schedule")
	}
}

func buildSource(c *config.Config) (listing.Source, error) {
	hc, err := c.Source.HTTPConfig()
	if err != nil {
		return nil, err
	}
	return listing.NewHTTPSource(hc)
}

// syncRunner performs one ledgered sync run.
type syncRunner struct {
	catalog *catalog.Store
	ledger  *runlog.Ledger
	orch    *pipeline.Orchestrator
	sync    config.SyncConfig
}

func newSyncRunner(conn db.Conn, c *config.Config, src listing.Source) (*syncRunner, error) {
	segments, err := c.Sync.SegmentList()
	if err != nil {
		return nil, err
	}

	writer := persist.New(conn, persist.NewProfileCache(), persist.Options{IDColumn: c.Sync.IDColumn})
	orch := pipeline.New(pipeline.Deps{
		Source:  src,
		Limiter: ratelimit.NewHostLimiter(c.Sync.HostDelay()),
		Queries: match.NewQueryBuilder(c.Templates),
		Scorer:  match.NewScorer(c.Stopwords),
		Writer:  writer,
	}, pipeline.Options{
		Table:         c.Sync.Table,
		Workers:       c.Sync.Workers,
		ScoreGate:     c.Sync.ScoreGate,
		PageSize:      c.Sync.PageSize,
		MaxResults:    c.Sync.MaxResults,
		Currency:      c.Sync.Currency,
		Segments:      segments,
		EmptyPolicy:   pipeline.EmptyPolicy(c.Sync.EmptyPolicy),
		ItemTimeout:   c.Sync.ItemTimeout(),
		FetchPolicy:   c.Retry.Fetch.Policy(resilience.DefaultPolicy()),
		PersistPolicy: c.Retry.Persist.Policy(resilience.PersistPolicy()),
	})

	return &syncRunner{
		catalog: catalog.NewStore(conn, c.Sync.CatalogTable),
		ledger:  runlog.NewLedger(conn),
		orch:    orch,
		sync:    c.Sync,
	}, nil
}

// Run loads the catalog, runs the orchestrator and records the outcome in
// the ledger. An interrupted run is recorded as such and returns ctx's error.
func (r *syncRunner) Run(ctx context.Context) (*pipeline.RunStats, error) {
	log := zap.L().With(zap.String("command", "sync"), zap.String("category", r.sync.Category))

	runID, err := r.ledger.Start(ctx, r.sync.Category, r.sync.Table)
	if err != nil {
		return nil, eris.Wrap(err, "sync: start run")
	}
	log = log.With(zap.String("run_id", runID))

	// Ledger updates must land even when the run was interrupted.
	finishCtx := context.WithoutCancel(ctx)

	items, err := r.catalog.List(ctx, catalog.Filter{Category: r.sync.Category, Limit: r.sync.Limit})
	if err != nil {
		if ferr := r.ledger.Fail(finishCtx, runID, runlog.Counters{}, err.Error()); ferr != nil {
			log.Error("sync: record failed run", zap.Error(ferr))
		}
		return nil, eris.Wrap(err, "sync: load catalog")
	}
	log.Info("sync: loaded catalog", zap.Int("items", len(items)))

	stats, runErr := r.orch.Run(ctx, items)

	status, errMsg := runlog.StatusComplete, ""
	if runErr != nil {
		status, errMsg = runlog.StatusInterrupted, runErr.Error()
	}
	if err := r.ledger.Complete(finishCtx, runID, status, stats.Counters(), errMsg); err != nil {
		log.Error("sync: record run", zap.Error(err))
	}
	if runErr != nil {
		return stats, eris.Wrap(runErr, "sync: interrupted")
	}
	return stats, nil
}

// runScheduled invokes run on every cron tick until ctx is done. Ticks that
// arrive while a run is still active are skipped.
func runScheduled(ctx context.Context, spec string, run func(context.Context) error) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		if err := run(ctx); err != nil {
			zap.L().Error("sync: scheduled run", zap.Error(err))
		}
	})
	if err != nil {
		return eris.Wrapf(err, "sync: parse schedule %q", spec)
	}

	c.Start()
	zap.L().Info("sync: scheduled", zap.String("schedule", spec))
	<-ctx.Done()
	<-c.Stop().Done()
	zap.L().Info("sync: scheduler stopped")
	return nil
}

func formatRunStats(s *pipeline.RunStats) string {
	headers := []string{"Processed", "Saved", "Missing", "Failed", "Rows", "Unscheduled", "Duration"}
	row := []string{
		strconv.FormatInt(s.Processed, 10),
		strconv.FormatInt(s.Saved, 10),
		strconv.FormatInt(s.Missing, 10),
		strconv.FormatInt(s.Failed, 10),
		strconv.FormatInt(s.Rows, 10),
		strconv.FormatInt(s.Unscheduled, 10),
		s.Duration.Round(time.Millisecond).String(),
	}
	aligns := make([]columnAlignment, len(headers))
	for i := range aligns {
		aligns[i] = alignRight
	}
	return renderTable(headers, [][]string{row}, aligns)
}

