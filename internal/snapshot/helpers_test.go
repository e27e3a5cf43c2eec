package snapshot

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/interntrack/interntrack/internal/schema"
	"github.com/interntrack/interntrack/internal/store"
	"github.com/interntrack/interntrack/pkg/types"
)

var dbSeq int64

var quietLogger = log.New(io.Discard, "", 0)

// openStore opens a fresh store under dir. Property tests open many stores
// inside one temp dir, so names are sequenced.
func openStore(t *testing.T, dir string) *store.DB {
	t.Helper()
	n := atomic.AddInt64(&dbSeq, 1)
	db, err := store.Open(context.Background(), filepath.Join(dir, fmt.Sprintf("tracker-%d.db", n)))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type seedRow struct {
	table string
	row   types.Row
}

func seed(t *testing.T, db *store.DB, rows ...seedRow) {
	t.Helper()
	ctx := context.Background()
	err := db.WithTx(ctx, func(tx store.Tx) error {
		for _, r := range rows {
			cols, vals := narrow(r.row, columnsOf(r.table))
			if err := tx.Insert(ctx, r.table, cols, vals, ""); err != nil {
				return fmt.Errorf("%s: %w", r.table, err)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func columnsOf(table string) []string {
	tbl, _ := schema.Lookup(table)
	return tbl.ColumnNames()
}

// dump reads every canonical table.
func dump(t *testing.T, db *store.DB) map[string][]types.Row {
	t.Helper()
	out := make(map[string][]types.Row)
	for _, name := range schema.Names() {
		rows, err := db.SelectAll(context.Background(), name)
		if err != nil {
			t.Fatalf("select %s: %v", name, err)
		}
		out[name] = rows
	}
	return out
}

// sampleData is a small dataset touching every canonical table.
func sampleData() []seedRow {
	return []seedRow{
		{"settings", types.Row{"key": "theme", "value": "dark", "updated_at": "2024-03-01T10:00:00Z"}},
		{"interns", types.Row{"id": int64(1), "name": "Ada Lovelace", "email": "ada@example.com", "status": "active"}},
		{"interns", types.Row{"id": int64(2), "name": "Alan Turing", "university": "Cambridge", "status": "active"}},
		{"projects", types.Row{"id": int64(10), "name": "Analytical Engine", "status": "active", "position": int64(0)}},
		{"project_assignments", types.Row{"id": int64(1), "project_id": int64(10), "intern_id": int64(1), "role": "lead"}},
		{"tasks", types.Row{"id": int64(100), "project_id": int64(10), "intern_id": int64(2), "title": "Write notes", "status": "todo", "position": int64(1), "estimated_hours": 2.5}},
		{"events", types.Row{"id": int64(5), "title": "Kickoff", "start_time": "2024-03-04T09:00:00Z", "all_day": int64(0), "project_id": int64(10)}},
		{"event_assignments", types.Row{"id": int64(1), "event_id": int64(5), "intern_id": int64(2)}},
		{"intern_files", types.Row{"id": int64(1), "intern_id": int64(1), "file_name": "cv.pdf", "size": int64(20480)}},
		{"intern_notes", types.Row{"id": int64(1), "intern_id": int64(2), "content": "Great first week"}},
		{"weekly_reports", types.Row{"id": int64(1), "intern_id": int64(1), "week_start": "2024-03-04", "hours_worked": 38.5}},
		{"activity_log", types.Row{"id": int64(1), "action": "intern.created", "entity_type": "intern", "entity_id": int64(1)}},
	}
}

// failingCommitStore lets the import run, then fails the transaction.
type failingCommitStore struct {
	*store.DB
	err error
}

func (f *failingCommitStore) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	return f.DB.WithTx(ctx, func(tx store.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return f.err
	})
}

// failingReader fails SelectAll for one table.
type failingReader struct {
	store.Reader
	table string
}

func (f *failingReader) SelectAll(ctx context.Context, table string) ([]types.Row, error) {
	if table == f.table {
		return nil, fmt.Errorf("disk I/O error")
	}
	return f.Reader.SelectAll(ctx, table)
}

// failingColumns fails every column lookup.
type failingColumns struct{}

func (failingColumns) TableColumns(ctx context.Context, table string) ([]string, error) {
	return nil, fmt.Errorf("database is locked")
}
