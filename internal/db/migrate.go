package db

import (
	"context"
	"embed"
	"io/fs"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

const migrationLockKey = 7311520

// MigrationNames returns the embedded migration files for a dialect in
// application order.
func MigrationNames(d Dialect) ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, migrationDir(d))
	if err != nil {
		return nil, eris.Wrap(err, "db: read migration dir")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func migrationDir(d Dialect) string {
	return "migrations/" + string(d)
}

// Migrate applies pending embedded migrations in lexicographic order and
// returns how many were applied. On Postgres an advisory lock serialises
// concurrent runs.
func Migrate(ctx context.Context, conn Conn) (int, error) {
	log := zap.L().With(zap.String("component", "db.migrate"))
	d := conn.Dialect()

	if d == Postgres {
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
			return 0, eris.Wrap(err, "db: acquire migration advisory lock")
		}
		defer func() {
			if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockKey); err != nil {
				log.Warn("db: failed to release migration advisory lock", zap.Error(err))
			}
		}()
	}

	if err := ensureMigrationTable(ctx, conn); err != nil {
		return 0, err
	}

	names, err := MigrationNames(d)
	if err != nil {
		return 0, err
	}

	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, name := range names {
		if applied[name] {
			continue
		}

		data, err := migrationFS.ReadFile(migrationDir(d) + "/" + name)
		if err != nil {
			return count, eris.Wrapf(err, "db: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))

		if _, err := conn.Exec(ctx, string(data)); err != nil {
			return count, eris.Wrapf(err, "db: apply migration %s", name)
		}

		if _, err := conn.Exec(ctx,
			"INSERT INTO schema_migrations (filename) VALUES ("+d.Placeholder(1)+")",
			name,
		); err != nil {
			return count, eris.Wrapf(err, "db: record migration %s", name)
		}
		count++
	}

	return count, nil
}

func ensureMigrationTable(ctx context.Context, conn Conn) error {
	sql := `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := conn.Exec(ctx, sql); err != nil {
		return eris.Wrap(err, "db: ensure migration table")
	}
	return nil
}

func appliedMigrations(ctx context.Context, conn Conn) (map[string]bool, error) {
	rows, err := conn.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "db: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "db: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
