// Package db provides the connection abstraction shared by the persister, the
// catalog reader and the run ledger, over Postgres (pgx) and SQLite (modernc).
package db

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL flavour behind a Conn.
type Dialect string

// Supported dialects.
const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", eris.Errorf("db: unsupported driver %q", driver)
	}
}

// Placeholder returns the bind marker for the n-th (1-based) argument.
// SQLite uses anonymous markers, so callers must append arguments in the
// order their markers appear in the statement.
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Pool is the subset of *pgxpool.Pool used here. pgxmock.PgxPoolIface
// satisfies it, which is how the Postgres paths are tested.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Rows iterates a result set. pgx.Rows satisfies it directly.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Row is a single-row result.
type Row interface {
	Scan(dest ...any) error
}

// Conn is a dialect-aware handle used by every store in the module.
type Conn interface {
	Dialect() Dialect
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Close()
}

// Open connects to the configured store and verifies it is reachable.
func Open(ctx context.Context, driver, dsn string) (Conn, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, eris.New("db: database_url is required")
	}

	switch dialect {
	case Postgres:
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, eris.Wrap(err, "db: connect to postgres")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, eris.Wrap(err, "db: ping postgres")
		}
		return NewPGConn(pool), nil
	default:
		return OpenSQLite(ctx, dsn)
	}
}

// PGConn adapts a pgx pool to Conn.
type PGConn struct {
	pool Pool
}

// NewPGConn wraps a pool (or a pgxmock pool in tests).
func NewPGConn(pool Pool) *PGConn {
	return &PGConn{pool: pool}
}

// Dialect implements Conn.
func (c *PGConn) Dialect() Dialect { return Postgres }

// Exec implements Conn and returns the affected row count.
func (c *PGConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Query implements Conn.
func (c *PGConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return c.pool.Query(ctx, query, args...)
}

// QueryRow implements Conn.
func (c *PGConn) QueryRow(ctx context.Context, query string, args ...any) Row {
	return c.pool.QueryRow(ctx, query, args...)
}

// Close releases the underlying pool when it supports closing.
func (c *PGConn) Close() {
	if cl, ok := c.pool.(interface{ Close() }); ok {
		cl.Close()
	}
}

// SQLiteConn adapts a database/sql handle opened with modernc.org/sqlite.
type SQLiteConn struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database and configures WAL mode. The handle is
// limited to one connection so pragmas and in-memory databases behave.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteConn, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "db: open sqlite")
	}
	sdb.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sdb.ExecContext(ctx, pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "db: sqlite exec %s", pragma)
		}
	}
	return &SQLiteConn{db: sdb}, nil
}

// Dialect implements Conn.
func (c *SQLiteConn) Dialect() Dialect { return SQLite }

// Exec implements Conn and returns the affected row count.
func (c *SQLiteConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "db: sqlite rows affected")
	}
	return n, nil
}

// Query implements Conn.
func (c *SQLiteConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqliteRows{rows}, nil
}

// QueryRow implements Conn.
func (c *SQLiteConn) QueryRow(ctx context.Context, query string, args ...any) Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// Close implements Conn.
func (c *SQLiteConn) Close() {
	_ = c.db.Close()
}

type sqliteRows struct {
	*sql.Rows
}

func (r sqliteRows) Close() {
	_ = r.Rows.Close()
}
