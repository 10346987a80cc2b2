package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/comps-cli/internal/runlog"
)

func TestFormatRuns(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	done := started.Add(95 * time.Second)

	var buf bytes.Buffer
	formatRuns(&buf, []runlog.Entry{
		{
			ID: "3f0c6f1e-0000-4000-8000-000000000001", Category: "pokemon", Table: "price_stats",
			Status: runlog.StatusComplete, StartedAt: started, CompletedAt: &done,
			Counters: runlog.Counters{Processed: 10, Saved: 7, Missing: 3, Failed: 1, Rows: 21},
		},
		{
			ID: "short", Table: "price_stats", Status: runlog.StatusInterrupted, StartedAt: started,
			CompletedAt: &done, Error: strings.Repeat("x", 100),
		},
	})

	out := buf.String()
	assert.Contains(t, out, "3f0c6f1e")
	assert.NotContains(t, out, "3f0c6f1e-0000")
	assert.Contains(t, out, "pokemon")
	assert.Contains(t, out, "1m35s")
	assert.Contains(t, out, "21")
	assert.Contains(t, out, "interrupted")
	assert.Contains(t, out, "*")
	assert.Contains(t, out, strings.Repeat("x", 57)+"...")
}

func TestTruncateAndShortID(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))
	assert.Equal(t, "12345678", shortID("123456789"))
	assert.Equal(t, "1234", shortID("1234"))
}
