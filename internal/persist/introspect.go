package persist

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/comps-cli/internal/db"
)

const pgColumnsQuery = `SELECT column_name, data_type, is_nullable = 'YES'
FROM information_schema.columns
WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2
ORDER BY ordinal_position`

const pgUniqueQuery = `SELECT ic.relname, i.indisprimary, array_agg(a.attname::text ORDER BY k.ord)
FROM pg_index i
JOIN pg_class ic ON ic.oid = i.indexrelid
JOIN LATERAL unnest(i.indkey) WITH ORDINALITY AS k(attnum, ord) ON true
JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = k.attnum
WHERE i.indrelid = to_regclass($1)
  AND (i.indisunique OR i.indisprimary)
  AND i.indpred IS NULL AND i.indexprs IS NULL
GROUP BY ic.relname, i.indisprimary, i.indexrelid
ORDER BY i.indisprimary DESC, i.indexrelid`

const sqliteColumnsQuery = `SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`

const sqliteUniqueQuery = `SELECT il.name, il.origin, ii.name
FROM pragma_index_list(?) AS il
JOIN pragma_index_info(il.name) AS ii
WHERE il."unique" = 1 AND il.partial = 0
ORDER BY il.seq, ii.seqno`

// Introspect reads the column list and unique sets of table and resolves
// the id, category, segment and key columns. A table the persister cannot
// write to yields an error wrapping ErrSchemaMismatch.
func Introspect(ctx context.Context, conn db.Conn, table string, opts Options) (*TableProfile, error) {
	p := &TableProfile{Table: table}
	var err error
	switch conn.Dialect() {
	case db.Postgres:
		err = introspectPostgres(ctx, conn, p)
	default:
		err = introspectSQLite(ctx, conn, p)
	}
	if err != nil {
		return nil, err
	}
	if err := p.resolve(opts); err != nil {
		return nil, err
	}
	return p, nil
}

func introspectPostgres(ctx context.Context, conn db.Conn, p *TableProfile) error {
	schema, name := "", p.Table
	if parts := strings.SplitN(p.Table, ".", 2); len(parts) == 2 {
		schema, name = parts[0], parts[1]
	}

	rows, err := conn.Query(ctx, pgColumnsQuery, schema, name)
	if err != nil {
		return eris.Wrapf(err, "persist: query columns of %s", p.Table)
	}
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable); err != nil {
			rows.Close()
			return eris.Wrapf(err, "persist: scan column of %s", p.Table)
		}
		p.Columns = append(p.Columns, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return eris.Wrapf(err, "persist: iterate columns of %s", p.Table)
	}
	if len(p.Columns) == 0 {
		return nil
	}

	rows, err = conn.Query(ctx, pgUniqueQuery, db.QuoteTable(p.Table))
	if err != nil {
		return eris.Wrapf(err, "persist: query unique indexes of %s", p.Table)
	}
	defer rows.Close()
	for rows.Next() {
		var set UniqueSet
		if err := rows.Scan(&set.Name, &set.Primary, &set.Columns); err != nil {
			return eris.Wrapf(err, "persist: scan unique index of %s", p.Table)
		}
		p.UniqueSets = append(p.UniqueSets, set)
	}
	return eris.Wrapf(rows.Err(), "persist: iterate unique indexes of %s", p.Table)
}

func introspectSQLite(ctx context.Context, conn db.Conn, p *TableProfile) error {
	name := strings.TrimPrefix(p.Table, "main.")

	type pkCol struct {
		name string
		pos  int
	}
	var pk []pkCol

	rows, err := conn.Query(ctx, sqliteColumnsQuery, name)
	if err != nil {
		return eris.Wrapf(err, "persist: query columns of %s", p.Table)
	}
	for rows.Next() {
		var (
			c       Column
			notNull bool
			pkPos   int
		)
		if err := rows.Scan(&c.Name, &c.DataType, &notNull, &pkPos); err != nil {
			rows.Close()
			return eris.Wrapf(err, "persist: scan column of %s", p.Table)
		}
		c.Nullable = !notNull && pkPos == 0
		p.Columns = append(p.Columns, c)
		if pkPos > 0 {
			pk = append(pk, pkCol{c.Name, pkPos})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return eris.Wrapf(err, "persist: iterate columns of %s", p.Table)
	}
	if len(p.Columns) == 0 {
		return nil
	}

	// The primary key comes from table_info; a rowid alias has no index.
	if len(pk) > 0 {
		cols := make([]string, len(pk))
		for _, c := range pk {
			cols[c.pos-1] = c.name
		}
		p.UniqueSets = append(p.UniqueSets, UniqueSet{Name: "primary", Primary: true, Columns: cols})
	}

	rows, err = conn.Query(ctx, sqliteUniqueQuery, name)
	if err != nil {
		return eris.Wrapf(err, "persist: query unique indexes of %s", p.Table)
	}
	defer rows.Close()

	var (
		current  *UniqueSet
		skip     bool
		finished []UniqueSet
	)
	flush := func() {
		if current != nil && !skip {
			finished = append(finished, *current)
		}
	}
	for rows.Next() {
		var (
			index, origin string
			col           sql.NullString
		)
		if err := rows.Scan(&index, &origin, &col); err != nil {
			return eris.Wrapf(err, "persist: scan unique index of %s", p.Table)
		}
		if current == nil || current.Name != index {
			flush()
			current = &UniqueSet{Name: index}
			// The autoindex behind a PRIMARY KEY duplicates the set above.
			skip = origin == "pk"
		}
		if !col.Valid {
			skip = true
			continue
		}
		current.Columns = append(current.Columns, col.String)
	}
	if err := rows.Err(); err != nil {
		return eris.Wrapf(err, "persist: iterate unique indexes of %s", p.Table)
	}
	flush()
	p.UniqueSets = append(p.UniqueSets, finished...)
	return nil
}

func wrapMismatch(format string, args ...any) error {
	return eris.Wrapf(ErrSchemaMismatch, format, args...)
}
