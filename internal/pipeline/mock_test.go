package pipeline

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/comps-cli/internal/listing"
	"github.com/sells-group/comps-cli/internal/model"
)

// --- Source Mock ---

type mockSource struct {
	mock.Mock
	host string
	mode listing.Pagination
}

func newMockSource() *mockSource {
	return &mockSource{host: "market.example.test", mode: listing.PaginationOffset}
}

func (m *mockSource) Name() string                   { return "mock" }
func (m *mockSource) Host() string                   { return m.host }
func (m *mockSource) Pagination() listing.Pagination { return m.mode }

func (m *mockSource) FetchPage(ctx context.Context, req listing.PageRequest) (*listing.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*listing.Page), args.Error(1)
}

// --- Writer Mock ---

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) Write(ctx context.Context, table string, stat model.PriceStat) (int64, error) {
	args := m.Called(ctx, table, stat)
	return args.Get(0).(int64), args.Error(1)
}

// recordingWriter keeps the latest stat per key, like a keyed table.
type recordingWriter struct {
	mu    sync.Mutex
	rows  map[string]model.PriceStat
	calls int
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{rows: make(map[string]model.PriceStat)}
}

func (w *recordingWriter) Write(_ context.Context, _ string, stat model.PriceStat) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	w.rows[stat.ItemID+"/"+stat.Category+"/"+string(stat.Segment)] = stat
	return 1, nil
}

func (w *recordingWriter) get(id, category string, seg model.Segment) (model.PriceStat, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.rows[id+"/"+category+"/"+string(seg)]
	return s, ok
}
