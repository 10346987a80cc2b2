package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/comps-cli/internal/config"
	"github.com/sells-group/comps-cli/internal/db"
	"github.com/sells-group/comps-cli/internal/pipeline"
	"github.com/sells-group/comps-cli/internal/runlog"
)

const charizardResults = `{"items": [
	{"title": "1999 Base Set Charizard #4 PSA 9", "price": 2500.00, "url": "https://m.test/graded"},
	{"title": "Charizard #4 Base Set NM", "price": "$80.00", "url": "https://m.test/raw"},
	{"title": "Lot of 10 Pokemon cards", "price": 5.00}
]}`

func syncTestConfig(baseURL string) *config.Config {
	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.Sync = config.SyncConfig{
		Workers:         2,
		ScoreGate:       50,
		PageSize:        50,
		Currency:        "USD",
		Table:           "price_stats",
		CatalogTable:    "catalog_items",
		Segments:        []string{"raw", "graded", "all"},
		EmptyPolicy:     "skip",
		ItemTimeoutSecs: 10,
	}
	c.Source = config.SourceConfig{
		BaseURL:   baseURL + "/search",
		Format:    "json",
		ItemsPath: "items",
		TitlePath: "title",
		PricePath: "price",
		URLPath:   "url",
	}
	c.Retry.Fetch = config.RetryPolicyConfig{MaxAttempts: 2, InitialBackoffMs: 1, MaxBackoffMs: 2}
	c.Retry.Persist = config.RetryPolicyConfig{MaxAttempts: 2, InitialBackoffMs: 1, MaxBackoffMs: 2}
	return c
}

func seededDB(t *testing.T) db.Conn {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "comps.db"))
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	_, err = db.Migrate(ctx, conn)
	require.NoError(t, err)

	for _, stmt := range []string{
		`INSERT INTO catalog_items (id, category, name, set_name, number) VALUES ('base1-4', 'pokemon', 'Charizard', 'Base Set', '4')`,
		`INSERT INTO catalog_items (id, category, name, set_name, number) VALUES ('base1-2', 'pokemon', 'Blastoise', 'Base Set', '2')`,
	} {
		_, err := conn.Exec(ctx, stmt)
		require.NoError(t, err)
	}
	return conn
}

func marketServer(t *testing.T, onRequest func()) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if onRequest != nil {
			onRequest()
		}
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Query().Get("q"), "Charizard") {
			_, _ = w.Write([]byte(charizardResults))
			return
		}
		_, _ = w.Write([]byte(`{"items": []}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRunner(t *testing.T, conn db.Conn, c *config.Config) *syncRunner {
	t.Helper()
	src, err := buildSource(c)
	require.NoError(t, err)
	runner, err := newSyncRunner(conn, c, src)
	require.NoError(t, err)
	return runner
}

func TestSyncRunner_EndToEnd(t *testing.T) {
	ctx := context.Background()
	conn := seededDB(t)
	srv := marketServer(t, nil)

	stats, err := newTestRunner(t, conn, syncTestConfig(srv.URL)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Processed)
	assert.Equal(t, int64(1), stats.Saved)
	assert.Equal(t, int64(1), stats.Missing)
	assert.Equal(t, int64(0), stats.Failed)
	assert.Equal(t, int64(3), stats.Rows)

	rows, err := conn.Query(ctx, `SELECT segment, median, sample_count, currency FROM price_stats WHERE card_id = ? ORDER BY segment`, "base1-4")
	require.NoError(t, err)
	type row struct {
		segment  string
		median   int64
		count    int
		currency string
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.segment, &r.median, &r.count, &r.currency))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())
	rows.Close()

	require.Len(t, got, 3)
	assert.Equal(t, "all", got[0].segment)
	assert.Equal(t, 2, got[0].count)
	assert.Equal(t, row{"graded", 250000, 1, "USD"}, got[1])
	assert.Equal(t, row{"raw", 8000, 1, "USD"}, got[2])

	entries, err := runlog.NewLedger(conn).List(ctx, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, runlog.StatusComplete, entries[0].Status)
	assert.Equal(t, runlog.Counters{Processed: 2, Saved: 1, Missing: 1, Rows: 3}, entries[0].Counters)
}

func TestSyncRunner_RerunKeepsOneRowPerSegment(t *testing.T) {
	ctx := context.Background()
	conn := seededDB(t)
	srv := marketServer(t, nil)
	runner := newTestRunner(t, conn, syncTestConfig(srv.URL))

	for range 2 {
		_, err := runner.Run(ctx)
		require.NoError(t, err)
	}

	var n int
	require.NoError(t, conn.QueryRow(ctx, `SELECT COUNT(*) FROM price_stats`).Scan(&n))
	assert.Equal(t, 3, n)

	entries, err := runlog.NewLedger(conn).List(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSyncRunner_CategoryAndLimit(t *testing.T) {
	conn := seededDB(t)
	srv := marketServer(t, nil)
	c := syncTestConfig(srv.URL)
	c.Sync.Category = "magic"

	stats, err := newTestRunner(t, conn, c).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Processed)

	c.Sync.Category = ""
	c.Sync.Limit = 1
	stats, err = newTestRunner(t, conn, c).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Processed)
}

func TestSyncRunner_InterruptedRunIsRecorded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := seededDB(t)
	srv := marketServer(t, cancel)
	c := syncTestConfig(srv.URL)
	c.Sync.Workers = 1

	stats, err := newTestRunner(t, conn, c).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1), stats.Processed)
	assert.Equal(t, int64(1), stats.Unscheduled)

	entries, err := runlog.NewLedger(conn).List(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, runlog.StatusInterrupted, entries[0].Status)
	assert.NotNil(t, entries[0].CompletedAt)
	assert.Contains(t, entries[0].Error, "context canceled")
}

func TestSyncRunner_MissingCatalogFailsRun(t *testing.T) {
	ctx := context.Background()
	conn := seededDB(t)
	srv := marketServer(t, nil)
	c := syncTestConfig(srv.URL)
	c.Sync.CatalogTable = "no_such_catalog"

	_, err := newTestRunner(t, conn, c).Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync: load catalog")

	entries, err := runlog.NewLedger(conn).List(ctx, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, runlog.StatusFailed, entries[0].Status)
}

func TestNewSyncRunner_BadSegment(t *testing.T) {
	c := syncTestConfig("https://market.example.test")
	c.Sync.Segments = []string{"sealed"}
	_, err := newSyncRunner(nil, c, nil)
	assert.Error(t, err)
}

func TestBuildSource_Invalid(t *testing.T) {
	c := syncTestConfig("https://market.example.test")
	c.Source.Pagination = "scroll"
	_, err := buildSource(c)
	assert.Error(t, err)

	c = syncTestConfig("https://market.example.test")
	c.Source.TitlePath = ""
	_, err = buildSource(c)
	assert.Error(t, err)
}

func TestApplySyncFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "sync"}
	registerSyncFlags(cmd)
	require.NoError(t, cmd.Flags().Set("category", "magic"))
	require.NoError(t, cmd.Flags().Set("workers", "9"))

	c := &config.Config{}
	c.Sync.Table = "price_stats"
	c.Sync.Limit = 5
	applySyncFlags(cmd, c)

	assert.Equal(t, "magic", c.Sync.Category)
	assert.Equal(t, 9, c.Sync.Workers)
	assert.Equal(t, "price_stats", c.Sync.Table)
	assert.Equal(t, 5, c.Sync.Limit)
}

func TestRunScheduled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	var runs atomic.Int32
	err := runScheduled(ctx, "@every 1s", func(context.Context) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, runs.Load(), int32(1))
}

func TestRunScheduled_InvalidSpec(t *testing.T) {
	err := runScheduled(context.Background(), "every tuesday", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse schedule")
}

func TestFormatRunStats(t *testing.T) {
	out := formatRunStats(&pipeline.RunStats{Processed: 12, Saved: 9, Missing: 3, Failed: 1, Rows: 27, Duration: 1500 * time.Millisecond})
	assert.Contains(t, out, "Processed")
	assert.Contains(t, out, "27")
	assert.Contains(t, out, "1.5s")
}
