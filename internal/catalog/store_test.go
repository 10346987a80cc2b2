package catalog

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/comps-cli/internal/db"
	"github.com/sells-group/comps-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	_, err = db.Migrate(ctx, conn)
	require.NoError(t, err)

	for _, stmt := range []string{
		`INSERT INTO catalog_items (id, category, name, set_name, number) VALUES ('base1-4', 'pokemon', 'Charizard', 'Base Set', '4')`,
		`INSERT INTO catalog_items (id, category, name, set_name, number) VALUES ('base1-2', 'Pokemon', 'Blastoise', 'Base Set', '2')`,
		`INSERT INTO catalog_items (id, category, set_name, number, year, player, team, sport) VALUES ('topps-52-311', 'baseball', 'Topps', '311', 1952, 'Mickey Mantle', 'Yankees', 'baseball')`,
	} {
		_, err := conn.Exec(ctx, stmt)
		require.NoError(t, err)
	}
	return NewStore(conn, "")
}

func TestList_FilterByCategory(t *testing.T) {
	s := seededStore(t)
	items, err := s.List(context.Background(), Filter{Category: "POKEMON"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "base1-2", items[0].ID)
	assert.Equal(t, "base1-4", items[1].ID)
	assert.Equal(t, 0, items[1].Year)
}

func TestList_AllFieldsAndLimit(t *testing.T) {
	s := seededStore(t)

	items, err := s.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, model.CatalogItem{
		ID: "topps-52-311", Category: "baseball", SetName: "Topps", Number: "311",
		Year: 1952, Player: "Mickey Mantle", Team: "Yankees", Sport: "baseball",
	}, items[2])

	items, err = s.List(context.Background(), Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "base1-4", items[0].ID)
}

func TestList_ByIDs(t *testing.T) {
	s := seededStore(t)
	items, err := s.List(context.Background(), Filter{IDs: []string{"base1-4", "topps-52-311", "missing"}})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestList_PostgresQuery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	year := int64(1952)
	mock.ExpectQuery(regexp.QuoteMeta(
		`FROM "cards" WHERE 1 = 1 AND lower(category) = lower($1) ORDER BY id LIMIT $2`)).
		WithArgs("baseball", 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "category", "name", "set_name", "number", "year", "player", "team", "sport"}).
			AddRow("t1", "baseball", "", "Topps", "311", &year, "Mickey Mantle", "Yankees", "baseball"))

	items, err := NewStore(db.NewPGConn(mock), "cards").List(context.Background(), Filter{Category: "baseball", Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1952, items[0].Year)
	assert.NoError(t, mock.ExpectationsWereMet())
}
