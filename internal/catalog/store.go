// Package catalog reads the collectible items whose prices are synced.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/comps-cli/internal/db"
	"github.com/sells-group/comps-cli/internal/model"
)

// DefaultTable holds catalog items when no table is configured.
const DefaultTable = "catalog_items"

// Filter narrows which items are listed.
type Filter struct {
	Category string   `json:"category,omitempty"`
	IDs      []string `json:"ids,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	Offset   int      `json:"offset,omitempty"`
}

// Store is a read-only catalog repository.
type Store struct {
	conn  db.Conn
	table string
}

// NewStore creates a Store over table (DefaultTable when empty).
func NewStore(conn db.Conn, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{conn: conn, table: table}
}

// List returns matching items ordered by id. A zero Limit returns all.
func (s *Store) List(ctx context.Context, f Filter) ([]model.CatalogItem, error) {
	d := s.conn.Dialect()
	query := fmt.Sprintf(
		`SELECT id, category, name, set_name, number, year, player, team, sport FROM %s WHERE 1 = 1`,
		db.QuoteTable(s.table),
	)
	var args []any
	mark := func(v any) string {
		args = append(args, v)
		return d.Placeholder(len(args))
	}

	if f.Category != "" {
		query += ` AND lower(category) = lower(` + mark(f.Category) + `)`
	}
	if len(f.IDs) > 0 {
		marks := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			marks[i] = mark(id)
		}
		query += ` AND id IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY id`
	if f.Limit > 0 {
		query += ` LIMIT ` + mark(f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET ` + mark(f.Offset)
		}
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list items")
	}
	defer rows.Close()

	var items []model.CatalogItem
	for rows.Next() {
		var (
			it   model.CatalogItem
			year *int64
		)
		if err := rows.Scan(&it.ID, &it.Category, &it.Name, &it.SetName, &it.Number, &year, &it.Player, &it.Team, &it.Sport); err != nil {
			return nil, eris.Wrap(err, "catalog: scan item")
		}
		if year != nil {
			it.Year = int(*year)
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "catalog: list items iterate")
}
