package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Assignment binds a value to a column.
type Assignment struct {
	Column string
	Value  any
}

// Statement is SQL text with its arguments in placeholder order.
type Statement struct {
	SQL  string
	Args []any
}

// UpsertStatement builds a single-row INSERT ... ON CONFLICT (keys) DO UPDATE.
// Both Postgres and SQLite (3.24+) accept the same shape.
func UpsertStatement(d Dialect, table string, keys, values []Assignment) (Statement, error) {
	if len(keys) == 0 {
		return Statement{}, eris.New("db: upsert: no conflict keys specified")
	}
	all := append(append([]Assignment{}, keys...), values...)
	cols, marks, args := columnsAndMarks(d, all, 0)

	var setClauses []string
	for _, v := range values {
		q := Quote(v.Column)
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
	}

	action := "DO NOTHING"
	if len(setClauses) > 0 {
		action = "DO UPDATE SET " + strings.Join(setClauses, ", ")
	}

	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		sanitizeTable(table),
		cols,
		marks,
		quoteAndJoin(columnNames(keys)),
		action,
	)
	return Statement{SQL: sql, Args: args}, nil
}

// UpdateStatement builds UPDATE table SET values WHERE keys.
func UpdateStatement(d Dialect, table string, keys, values []Assignment) (Statement, error) {
	if len(keys) == 0 {
		return Statement{}, eris.New("db: update: no key columns specified")
	}
	if len(values) == 0 {
		return Statement{}, eris.New("db: update: no value columns specified")
	}

	args := make([]any, 0, len(keys)+len(values))
	sets := make([]string, len(values))
	for i, v := range values {
		args = append(args, v.Value)
		sets[i] = fmt.Sprintf("%s = %s", Quote(v.Column), d.Placeholder(len(args)))
	}
	conds := make([]string, len(keys))
	for i, k := range keys {
		args = append(args, k.Value)
		conds[i] = fmt.Sprintf("%s = %s", Quote(k.Column), d.Placeholder(len(args)))
	}

	sql := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s",
		sanitizeTable(table),
		strings.Join(sets, ", "),
		strings.Join(conds, " AND "),
	)
	return Statement{SQL: sql, Args: args}, nil
}

// InsertStatement builds a plain single-row INSERT.
func InsertStatement(d Dialect, table string, assignments []Assignment) (Statement, error) {
	if len(assignments) == 0 {
		return Statement{}, eris.New("db: insert: no columns specified")
	}
	cols, marks, args := columnsAndMarks(d, assignments, 0)
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", sanitizeTable(table), cols, marks)
	return Statement{SQL: sql, Args: args}, nil
}

func columnsAndMarks(d Dialect, as []Assignment, offset int) (string, string, []any) {
	marks := make([]string, len(as))
	args := make([]any, len(as))
	for i, a := range as {
		marks[i] = d.Placeholder(offset + i + 1)
		args[i] = a.Value
	}
	return quoteAndJoin(columnNames(as)), strings.Join(marks, ", "), args
}

func columnNames(as []Assignment) []string {
	names := make([]string, len(as))
	for i, a := range as {
		names[i] = a.Column
	}
	return names
}

// Quote quotes a single column identifier.
func Quote(col string) string {
	return pgx.Identifier{col}.Sanitize()
}

// QuoteTable quotes a possibly schema-qualified table name.
func QuoteTable(table string) string {
	return sanitizeTable(table)
}

// sanitizeTable handles schema-qualified table names like "public.price_stats".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
