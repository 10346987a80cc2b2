// Package runlog records one ledger row per sync run.
package runlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/comps-cli/internal/db"
)

// Status of a run.
type Status string

// Run statuses.
const (
	StatusRunning     Status = "running"
	StatusComplete    Status = "complete"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
)

// Counters are the per-run outcome totals.
type Counters struct {
	Processed int64 `json:"processed" yaml:"processed"`
	Saved     int64 `json:"saved" yaml:"saved"`
	Missing   int64 `json:"missing" yaml:"missing"`
	Failed    int64 `json:"failed" yaml:"failed"`
	Rows      int64 `json:"rows" yaml:"rows"`
}

// Entry is one row of the sync_runs table.
type Entry struct {
	ID          string     `json:"id"`
	Category    string     `json:"category,omitempty"`
	Table       string     `json:"table"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Counters
	Error string `json:"error,omitempty"`
}

// Duration is how long the run took, or has taken so far.
func (e Entry) Duration() time.Duration {
	if e.CompletedAt == nil {
		return time.Since(e.StartedAt)
	}
	return e.CompletedAt.Sub(e.StartedAt)
}

// Ledger provides read/write access to the sync_runs table.
type Ledger struct {
	conn db.Conn
	now  func() time.Time
}

// NewLedger creates a Ledger backed by conn.
func NewLedger(conn db.Conn) *Ledger {
	return &Ledger{conn: conn, now: func() time.Time { return time.Now().UTC() }}
}

// Start records the beginning of a run and returns its id.
func (l *Ledger) Start(ctx context.Context, category, table string) (string, error) {
	id := uuid.NewString()
	d := l.conn.Dialect()
	_, err := l.conn.Exec(ctx,
		fmt.Sprintf(`INSERT INTO sync_runs (id, category, dest_table, status, started_at) VALUES (%s, %s, %s, %s, %s)`,
			d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4), d.Placeholder(5)),
		id, category, table, string(StatusRunning), l.now(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "runlog: start run for %s", table)
	}
	return id, nil
}

// Complete marks a run finished with the given status and counters.
// errMsg is stored when non-empty.
func (l *Ledger) Complete(ctx context.Context, id string, status Status, c Counters, errMsg string) error {
	d := l.conn.Dialect()
	var errVal any
	if errMsg != "" {
		errVal = errMsg
	}
	_, err := l.conn.Exec(ctx,
		fmt.Sprintf(`UPDATE sync_runs
		 SET status = %s, completed_at = %s, processed = %s, saved = %s, missing = %s, failed = %s, rows_written = %s, error = %s
		 WHERE id = %s`,
			d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4), d.Placeholder(5),
			d.Placeholder(6), d.Placeholder(7), d.Placeholder(8), d.Placeholder(9)),
		string(status), l.now(), c.Processed, c.Saved, c.Missing, c.Failed, c.Rows, errVal, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %s", id)
	}
	return nil
}

// Fail marks a run failed.
func (l *Ledger) Fail(ctx context.Context, id string, c Counters, errMsg string) error {
	return l.Complete(ctx, id, StatusFailed, c, errMsg)
}

// List returns the most recent runs first. A non-positive limit means 20.
func (l *Ledger) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.conn.Query(ctx,
		`SELECT id, category, dest_table, status, started_at, completed_at,
		        processed, saved, missing, failed, rows_written, error
		 FROM sync_runs ORDER BY started_at DESC LIMIT `+l.conn.Dialect().Placeholder(1),
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e           Entry
			status      string
			completedAt *time.Time
			errStr      *string
		)
		if err := rows.Scan(&e.ID, &e.Category, &e.Table, &status, &e.StartedAt, &completedAt,
			&e.Processed, &e.Saved, &e.Missing, &e.Failed, &e.Rows, &errStr); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		e.Status = Status(status)
		e.CompletedAt = completedAt
		if errStr != nil {
			e.Error = *errStr
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "runlog: list runs iterate")
}
