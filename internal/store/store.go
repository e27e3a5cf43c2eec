// Package store is the tracker's SQLite row store. It offers just enough
// surface for the snapshot engine: live column introspection, full-table
// reads, and a transaction with clear and insert-or-upsert.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	apperrors "github.com/interntrack/interntrack/internal/errors"
	"github.com/interntrack/interntrack/internal/schema"
	"github.com/interntrack/interntrack/pkg/types"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Reader is the read side of the store.
type Reader interface {
	// TableColumns returns the live column names of a table in declaration
	// order. A table that does not exist yields an empty list.
	TableColumns(ctx context.Context, table string) ([]string, error)

	// SelectAll returns every row of a canonical table.
	SelectAll(ctx context.Context, table string) ([]types.Row, error)
}

// Tx is a unit of work against the store. Statements that fail inside a Tx
// are rolled back individually; the Tx stays usable.
type Tx interface {
	TableColumns(ctx context.Context, table string) ([]string, error)

	// DeleteAll removes every row of a canonical table.
	DeleteAll(ctx context.Context, table string) error

	// Insert writes one row. When conflictKey is non-empty and present in
	// cols, a row whose key already exists is updated in place.
	Insert(ctx context.Context, table string, cols []string, vals []interface{}, conflictKey string) error
}

// Store is a Reader that can run transactions.
type Store interface {
	Reader

	// WithTx runs fn in a single transaction. The transaction commits only
	// if fn returns nil; any error rolls it back and is returned.
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// DB implements Store on a SQLite database file.
type DB struct {
	db   *sqlx.DB
	path string
}

// Open connects to the SQLite database at path and creates any missing
// canonical tables.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sqlx.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	// Single writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to ping database: %w", err)
	}

	s := &DB{db: db, path: path}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the canonical tables if they do not exist.
func (s *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema.AllSchemaSQL() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: failed to create schema: %w", err)
		}
	}
	return nil
}

// Path returns the database file path.
func (s *DB) Path() string {
	return s.path
}

// Close closes the database.
func (s *DB) Close() error {
	return s.db.Close()
}

// TableColumns implements Reader.
func (s *DB) TableColumns(ctx context.Context, table string) ([]string, error) {
	return tableColumns(ctx, s.db, table)
}

// SelectAll implements Reader.
func (s *DB) SelectAll(ctx context.Context, table string) ([]types.Row, error) {
	if _, ok := schema.Lookup(table); !ok {
		return nil, unknownTable(table)
	}
	rows, err := s.db.QueryxContext(ctx, "SELECT * FROM "+schema.QuoteIdent(table))
	if err != nil {
		return nil, apperrors.NewStoreError(apperrors.CodeQueryFailed, "select from "+table, err)
	}
	defer rows.Close()

	out := []types.Row{}
	for rows.Next() {
		m := make(map[string]interface{})
		if err := rows.MapScan(m); err != nil {
			return nil, apperrors.NewStoreError(apperrors.CodeQueryFailed, "scan "+table, err)
		}
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				m[k] = string(b)
			}
		}
		out = append(out, types.Row(m))
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError(apperrors.CodeQueryFailed, "iterate "+table, err)
	}
	return out, nil
}

// Count returns the number of rows in a canonical table.
func (s *DB) Count(ctx context.Context, table string) (int, error) {
	if _, ok := schema.Lookup(table); !ok {
		return 0, unknownTable(table)
	}
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+schema.QuoteIdent(table)); err != nil {
		return 0, apperrors.NewStoreError(apperrors.CodeQueryFailed, "count "+table, err)
	}
	return n, nil
}

// WithTx implements Store.
func (s *DB) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.NewSnapshotError(apperrors.CodeTxFailed, "begin transaction", err)
	}

	if err := fn(&sqlTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewSnapshotError(apperrors.CodeTxFailed, "commit transaction", err)
	}
	return nil
}

type sqlTx struct {
	tx *sqlx.Tx
}

func (t *sqlTx) TableColumns(ctx context.Context, table string) ([]string, error) {
	return tableColumns(ctx, t.tx, table)
}

func (t *sqlTx) DeleteAll(ctx context.Context, table string) error {
	if _, ok := schema.Lookup(table); !ok {
		return unknownTable(table)
	}
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM "+schema.QuoteIdent(table)); err != nil {
		return apperrors.NewStoreError(apperrors.CodeQueryFailed, "clear "+table, err)
	}
	return nil
}

func (t *sqlTx) Insert(ctx context.Context, table string, cols []string, vals []interface{}, conflictKey string) error {
	tbl, ok := schema.Lookup(table)
	if !ok {
		return unknownTable(table)
	}
	if len(cols) == 0 || len(cols) != len(vals) {
		return apperrors.NewStoreError(apperrors.CodeQueryFailed,
			fmt.Sprintf("insert into %s: %d columns, %d values", table, len(cols), len(vals)), nil)
	}
	var unique [][]string
	if conflictKey != "" {
		unique = tbl.Unique
	}
	if _, err := t.tx.ExecContext(ctx, insertSQL(table, cols, conflictKey, unique), vals...); err != nil {
		return apperrors.NewStoreError(apperrors.CodeQueryFailed, "insert into "+table, err)
	}
	return nil
}

// insertSQL builds a plain INSERT, or an upsert when conflictKey is set.
// The upsert updates in place rather than replacing the row, so children
// referencing it are never touched. It resolves a collision on the key, and
// a collision on any unique set fully present in cols; the latter takes the
// incoming key too, so both sides end up with the same row.
func insertSQL(table string, cols []string, conflictKey string, unique [][]string) string {
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	present := make(map[string]bool, len(cols))
	for i, c := range cols {
		quoted[i] = schema.QuoteIdent(c)
		placeholders[i] = "?"
		present[c] = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		schema.QuoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	if conflictKey == "" {
		return b.String()
	}
	if present[conflictKey] {
		writeUpsert(&b, cols, []string{conflictKey})
	}
	for _, set := range unique {
		if containsAll(present, set) {
			writeUpsert(&b, cols, set)
		}
	}
	return b.String()
}

// writeUpsert appends an ON CONFLICT clause on target that overwrites every
// other column in cols.
func writeUpsert(b *strings.Builder, cols, target []string) {
	skip := make(map[string]bool, len(target))
	quotedTarget := make([]string, len(target))
	for i, c := range target {
		skip[c] = true
		quotedTarget[i] = schema.QuoteIdent(c)
	}

	var sets []string
	for _, c := range cols {
		if skip[c] {
			continue
		}
		q := schema.QuoteIdent(c)
		sets = append(sets, q+" = excluded."+q)
	}
	if len(sets) == 0 {
		fmt.Fprintf(b, " ON CONFLICT(%s) DO NOTHING", strings.Join(quotedTarget, ", "))
	} else {
		fmt.Fprintf(b, " ON CONFLICT(%s) DO UPDATE SET %s", strings.Join(quotedTarget, ", "), strings.Join(sets, ", "))
	}
}

func containsAll(present map[string]bool, set []string) bool {
	for _, c := range set {
		if !present[c] {
			return false
		}
	}
	return true
}

type queryer interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func tableColumns(ctx context.Context, q queryer, table string) ([]string, error) {
	cols := []string{}
	err := q.SelectContext(ctx, &cols, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, apperrors.NewStoreError(apperrors.CodeQueryFailed, "introspect "+table, err)
	}
	return cols, nil
}

func unknownTable(table string) error {
	return apperrors.NewStoreError(apperrors.CodeUnknownTable, "unknown table "+table, nil)
}
