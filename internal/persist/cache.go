package persist

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/comps-cli/internal/db"
)

type cacheEntry struct {
	profile *TableProfile
	err     error
}

// ProfileCache holds table profiles for the life of the process. Schema
// mismatches are cached too, so they are logged once per table.
// Concurrent misses for the same table may both introspect; the last
// result wins and both are equivalent.
type ProfileCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewProfileCache creates an empty cache.
func NewProfileCache() *ProfileCache {
	return &ProfileCache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached profile for table, if one resolved successfully.
func (c *ProfileCache) Get(table string) (*TableProfile, bool) {
	e, ok := c.lookup(table)
	return e.profile, ok && e.err == nil
}

func (c *ProfileCache) lookup(table string) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[table]
	return e, ok
}

// Load returns the profile for table, introspecting on a miss. Errors other
// than ErrSchemaMismatch are not cached.
func (c *ProfileCache) Load(ctx context.Context, conn db.Conn, table string, opts Options) (*TableProfile, error) {
	if e, ok := c.lookup(table); ok {
		return e.profile, e.err
	}

	p, err := Introspect(ctx, conn, table, opts)
	if err != nil && !errors.Is(err, ErrSchemaMismatch) {
		return nil, err
	}
	if err != nil {
		zap.L().Error("persist: destination table cannot be written",
			zap.String("table", table),
			zap.Error(err),
		)
	} else {
		zap.L().Info("persist: resolved table profile",
			zap.String("table", table),
			zap.Strings("key_columns", p.KeyColumns),
			zap.Bool("has_unique", p.HasUnique),
			zap.Strings("value_columns", p.ValueColumns),
		)
	}

	c.mu.Lock()
	c.entries[table] = cacheEntry{profile: p, err: err}
	c.mu.Unlock()
	return p, err
}

// Invalidate drops the cached entry for table.
func (c *ProfileCache) Invalidate(table string) {
	c.mu.Lock()
	delete(c.entries, table)
	c.mu.Unlock()
}
