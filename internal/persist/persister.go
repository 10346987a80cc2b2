package persist

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/comps-cli/internal/db"
	"github.com/sells-group/comps-cli/internal/model"
)

// DefaultMethod labels how a stat was computed.
const DefaultMethod = "iqr_mad"

// valueColumnOrder lists every value column the persister knows how to fill.
var valueColumnOrder = []string{
	"low", "median", "high",
	"min", "p10", "p25", "p75", "p90", "max", "avg",
	"sample_count", "currency", "sample_url", "method", "basis", "captured_at",
}

// Persister writes exactly one current row per (item, category, segment).
type Persister struct {
	conn  db.Conn
	cache *ProfileCache
	opts  Options
	now   func() time.Time
}

// New creates a Persister. A nil cache gets a private one.
func New(conn db.Conn, cache *ProfileCache, opts Options) *Persister {
	if cache == nil {
		cache = NewProfileCache()
	}
	return &Persister{
		conn:  conn,
		cache: cache,
		opts:  opts,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Profile returns the (cached) profile of table.
func (p *Persister) Profile(ctx context.Context, table string) (*TableProfile, error) {
	return p.cache.Load(ctx, p.conn, table, p.opts)
}

// Write replaces the snapshot for stat's key in table and returns the number
// of rows affected. Tables with a usable unique set get one atomic upsert;
// others get an UPDATE followed by an INSERT when nothing matched.
func (p *Persister) Write(ctx context.Context, table string, stat model.PriceStat) (int64, error) {
	prof, err := p.Profile(ctx, table)
	if err != nil {
		return 0, err
	}

	keys, values, err := p.assignments(prof, stat)
	if err != nil {
		return 0, err
	}
	d := p.conn.Dialect()

	if prof.HasUnique {
		st, err := db.UpsertStatement(d, table, keys, values)
		if err != nil {
			return 0, eris.Wrapf(err, "persist: build upsert for %s", table)
		}
		n, err := p.conn.Exec(ctx, st.SQL, st.Args...)
		if err != nil {
			return 0, eris.Wrapf(err, "persist: upsert %s/%s into %s", stat.ItemID, stat.Segment, table)
		}
		return n, nil
	}

	// Two writers may both miss the UPDATE and both INSERT; without a unique
	// set the table cannot arbitrate, and the next run's UPDATE converges.
	st, err := db.UpdateStatement(d, table, keys, values)
	if err != nil {
		return 0, eris.Wrapf(err, "persist: build update for %s", table)
	}
	n, err := p.conn.Exec(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, eris.Wrapf(err, "persist: update %s/%s in %s", stat.ItemID, stat.Segment, table)
	}
	if n > 0 {
		return n, nil
	}

	st, err = db.InsertStatement(d, table, append(keys, values...))
	if err != nil {
		return 0, eris.Wrapf(err, "persist: build insert for %s", table)
	}
	n, err = p.conn.Exec(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, eris.Wrapf(err, "persist: insert %s/%s into %s", stat.ItemID, stat.Segment, table)
	}
	return n, nil
}

// assignments maps a stat onto the profile's key and value columns.
func (p *Persister) assignments(prof *TableProfile, stat model.PriceStat) ([]db.Assignment, []db.Assignment, error) {
	id, err := idValue(prof, stat.ItemID)
	if err != nil {
		return nil, nil, err
	}

	identity := func(col string) (any, bool) {
		switch col {
		case prof.IDColumn:
			return id, true
		case prof.CategoryColumn:
			return stat.Category, true
		case prof.SegmentColumn:
			return string(stat.Segment), true
		}
		return nil, false
	}

	keys := make([]db.Assignment, 0, len(prof.KeyColumns))
	for _, col := range prof.KeyColumns {
		v, ok := identity(col)
		if !ok {
			return nil, nil, wrapMismatch("table %s: cannot fill key column %q", prof.Table, col)
		}
		keys = append(keys, db.Assignment{Column: col, Value: v})
	}

	var values []db.Assignment
	for _, col := range []string{prof.CategoryColumn, prof.SegmentColumn} {
		if col != "" && !slices.Contains(prof.KeyColumns, col) {
			v, _ := identity(col)
			values = append(values, db.Assignment{Column: col, Value: v})
		}
	}

	captured := stat.CapturedAt
	if captured.IsZero() {
		captured = p.now()
	}
	for _, col := range prof.ValueColumns {
		c, _ := prof.Column(col)
		values = append(values, db.Assignment{Column: col, Value: columnValue(c, stat, captured)})
	}
	for _, col := range prof.TouchColumns {
		values = append(values, db.Assignment{Column: col, Value: captured})
	}
	return keys, values, nil
}

// columnValue returns the value written to a known value column. Missing
// numbers (a heartbeat) are NULL, or zero when the column is NOT NULL.
func columnValue(c Column, stat model.PriceStat, captured time.Time) any {
	s := stat.Summary
	num := func(pick func(*model.Summary) int64) any {
		if s == nil {
			if c.Nullable {
				return nil
			}
			return int64(0)
		}
		return pick(s)
	}
	text := func(v string) any {
		if v == "" && c.Nullable {
			return nil
		}
		return v
	}

	switch c.Name {
	case "low":
		return num(func(s *model.Summary) int64 { return s.Quantiles().Low })
	case "median":
		return num(func(s *model.Summary) int64 { return s.Median })
	case "high":
		return num(func(s *model.Summary) int64 { return s.Quantiles().High })
	case "min":
		return num(func(s *model.Summary) int64 { return s.Min })
	case "p10":
		return num(func(s *model.Summary) int64 { return s.P10 })
	case "p25":
		return num(func(s *model.Summary) int64 { return s.P25 })
	case "p75":
		return num(func(s *model.Summary) int64 { return s.P75 })
	case "p90":
		return num(func(s *model.Summary) int64 { return s.P90 })
	case "max":
		return num(func(s *model.Summary) int64 { return s.Max })
	case "avg":
		return num(func(s *model.Summary) int64 { return s.Avg })
	case "sample_count":
		return stat.SampleCount()
	case "currency":
		if stat.Currency == "" {
			return "USD"
		}
		return strings.ToUpper(stat.Currency)
	case "sample_url":
		return text(stat.SampleURL)
	case "method", "basis":
		if stat.Method == "" {
			return DefaultMethod
		}
		return stat.Method
	case "captured_at":
		return captured
	}
	return nil
}

// idValue coerces the catalog's string id to the id column's type.
func idValue(prof *TableProfile, id string) (any, error) {
	c, _ := prof.Column(prof.IDColumn)
	if !isIntegerType(c.DataType) {
		return id, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "persist: item id %q is not an integer for %s.%s", id, prof.Table, prof.IDColumn)
	}
	return n, nil
}
