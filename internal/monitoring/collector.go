// Package monitoring evaluates recent sync runs against health thresholds
// and delivers alerts to a webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/comps-cli/internal/runlog"
)

// collectLimit bounds how many ledger rows one snapshot reads.
const collectLimit = 1000

// Snapshot is a point-in-time view of sync health.
type Snapshot struct {
	// Runs started within the lookback window, by status.
	Runs        int `json:"runs"`
	Complete    int `json:"complete"`
	Interrupted int `json:"interrupted"`
	Failed      int `json:"failed"`
	Running     int `json:"running"`

	// Item counters summed over the window.
	Processed    int64   `json:"processed"`
	Saved        int64   `json:"saved"`
	Missing      int64   `json:"missing"`
	ItemFailures int64   `json:"item_failures"`
	Rows         int64   `json:"rows"`
	MissingRate  float64 `json:"missing_rate"`

	// LastSuccess is the start of the newest complete run, in or out of the window.
	LastSuccess *time.Time `json:"last_success,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister abstracts the ledger read the collector needs.
type RunLister interface {
	List(ctx context.Context, limit int) ([]runlog.Entry, error)
}

// Collector gathers snapshots from the run ledger.
type Collector struct {
	ledger RunLister
	now    func() time.Time
}

// NewCollector creates a collector over ledger.
func NewCollector(ledger RunLister) *Collector {
	return &Collector{ledger: ledger, now: func() time.Time { return time.Now().UTC() }}
}

// Collect summarizes runs started within the last lookbackHours.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now()
	snap := &Snapshot{LookbackHours: lookbackHours, CollectedAt: now}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	entries, err := c.ledger.List(ctx, collectLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, e := range entries {
		if e.Status == runlog.StatusComplete && snap.LastSuccess == nil {
			started := e.StartedAt
			snap.LastSuccess = &started
		}
		if e.StartedAt.Before(cutoff) {
			continue
		}

		snap.Runs++
		switch e.Status {
		case runlog.StatusComplete:
			snap.Complete++
		case runlog.StatusInterrupted:
			snap.Interrupted++
		case runlog.StatusFailed:
			snap.Failed++
		case runlog.StatusRunning:
			snap.Running++
		}
		snap.Processed += e.Processed
		snap.Saved += e.Saved
		snap.Missing += e.Missing
		snap.ItemFailures += e.Failed
		snap.Rows += e.Rows
	}

	if snap.Processed > 0 {
		snap.MissingRate = float64(snap.Missing) / float64(snap.Processed)
	}
	return snap, nil
}
