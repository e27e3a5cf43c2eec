package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/interntrack/interntrack/internal/errors"
	"github.com/interntrack/interntrack/internal/schema"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "tracker.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_CreatesCanonicalTables(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, tbl := range schema.Tables() {
		cols, err := db.TableColumns(ctx, tbl.Name)
		if err != nil {
			t.Fatalf("TableColumns(%s) failed: %v", tbl.Name, err)
		}
		want := tbl.ColumnNames()
		if strings.Join(cols, ",") != strings.Join(want, ",") {
			t.Errorf("%s columns = %v, want %v", tbl.Name, cols, want)
		}
	}
}

func TestTableColumns_MissingTable(t *testing.T) {
	db := openTestDB(t)
	cols, err := db.TableColumns(context.Background(), "no_such_table")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(cols) != 0 {
		t.Errorf("expected no columns, got %v", cols)
	}
}

func TestInsertAndSelectAll(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx Tx) error {
		return tx.Insert(ctx, "interns", []string{"id", "name", "email"}, []interface{}{int64(1), "Ada", "ada@example.com"}, "")
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}

	rows, err := db.SelectAll(ctx, "interns")
	if err != nil {
		t.Fatalf("SelectAll failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0]["id"] != int64(1) {
		t.Errorf("id = %#v, want int64(1)", rows[0]["id"])
	}
	if len(rows[0]) != len(schema.Tables()[1].Columns) {
		t.Errorf("row has %d columns, want every interns column", len(rows[0]))
	}
}

func TestSelectAll_EmptyTableIsNonNil(t *testing.T) {
	db := openTestDB(t)
	rows, err := db.SelectAll(context.Background(), "tasks")
	if err != nil {
		t.Fatalf("SelectAll failed: %v", err)
	}
	if rows == nil {
		t.Error("expected empty non-nil slice")
	}
}

func TestSelectAll_UnknownTable(t *testing.T) {
	db := openTestDB(t)
	_, err := db.SelectAll(context.Background(), "sqlite_master")
	if !errors.Is(err, apperrors.ErrUnknownTable) {
		t.Errorf("expected ErrUnknownTable, got %v", err)
	}
}

func TestInsert_UpsertUpdatesInPlace(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	insert := func(name string) error {
		return db.WithTx(ctx, func(tx Tx) error {
			return tx.Insert(ctx, "interns", []string{"id", "name"}, []interface{}{int64(7), name}, "id")
		})
	}
	if err := insert("Grace"); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := insert("Grace Hopper"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	rows, _ := db.SelectAll(ctx, "interns")
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0]["name"] != "Grace Hopper" {
		t.Errorf("name = %#v, want updated value", rows[0]["name"])
	}
}

func TestInsert_UpsertKeepsChildren(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx Tx) error {
		if err := tx.Insert(ctx, "interns", []string{"id", "name"}, []interface{}{int64(1), "Ada"}, "id"); err != nil {
			return err
		}
		return tx.Insert(ctx, "intern_notes", []string{"id", "intern_id", "content"}, []interface{}{int64(1), int64(1), "note"}, "id")
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	err = db.WithTx(ctx, func(tx Tx) error {
		return tx.Insert(ctx, "interns", []string{"id", "name"}, []interface{}{int64(1), "Ada L."}, "id")
	})
	if err != nil {
		t.Fatalf("upsert parent failed: %v", err)
	}

	n, _ := db.Count(ctx, "intern_notes")
	if n != 1 {
		t.Errorf("child rows = %d, want 1", n)
	}
}

func TestInsert_DuplicateWithoutKeyFails(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var second error
	err := db.WithTx(ctx, func(tx Tx) error {
		if err := tx.Insert(ctx, "settings", []string{"key", "value"}, []interface{}{"theme", "dark"}, ""); err != nil {
			return err
		}
		second = tx.Insert(ctx, "settings", []string{"key", "value"}, []interface{}{"theme", "light"}, "")
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}
	if second == nil {
		t.Fatal("expected primary key violation on second insert")
	}

	// The failed statement does not poison the transaction.
	rows, _ := db.SelectAll(ctx, "settings")
	if len(rows) != 1 || rows[0]["value"] != "dark" {
		t.Errorf("unexpected settings rows: %v", rows)
	}
}

func TestInsert_ForeignKeyEnforced(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var insertErr error
	_ = db.WithTx(ctx, func(tx Tx) error {
		insertErr = tx.Insert(ctx, "intern_notes", []string{"id", "intern_id", "content"}, []interface{}{int64(1), int64(99), "orphan"}, "id")
		return nil
	})
	if insertErr == nil {
		t.Error("expected foreign key violation")
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTx(ctx, func(tx Tx) error {
		if err := tx.Insert(ctx, "interns", []string{"id", "name"}, []interface{}{int64(1), "Ada"}, ""); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	n, _ := db.Count(ctx, "interns")
	if n != 0 {
		t.Errorf("expected rollback, found %d rows", n)
	}
}

func TestDeleteAll(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx Tx) error {
		for i := int64(1); i <= 3; i++ {
			if err := tx.Insert(ctx, "activity_log", []string{"id", "action"}, []interface{}{i, "created"}, ""); err != nil {
				return err
			}
		}
		return tx.DeleteAll(ctx, "activity_log")
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}
	n, _ := db.Count(ctx, "activity_log")
	if n != 0 {
		t.Errorf("expected empty table, found %d rows", n)
	}
}

func TestInsertSQL(t *testing.T) {
	assignments := [][]string{{"project_id", "intern_id"}}
	tests := []struct {
		name   string
		table  string
		cols   []string
		key    string
		unique [][]string
		want   string
	}{
		{
			name:  "plain",
			table: "interns",
			cols:  []string{"id", "name"},
			want:  `INSERT INTO "interns" ("id", "name") VALUES (?, ?)`,
		},
		{
			name:  "upsert",
			table: "interns",
			cols:  []string{"id", "name"},
			key:   "id",
			want:  `INSERT INTO "interns" ("id", "name") VALUES (?, ?) ON CONFLICT("id") DO UPDATE SET "name" = excluded."name"`,
		},
		{
			name:  "key absent from row",
			table: "interns",
			cols:  []string{"name"},
			key:   "id",
			want:  `INSERT INTO "interns" ("name") VALUES (?)`,
		},
		{
			name:  "key only",
			table: "interns",
			cols:  []string{"id"},
			key:   "id",
			want:  `INSERT INTO "interns" ("id") VALUES (?) ON CONFLICT("id") DO NOTHING`,
		},
		{
			name:   "unique set",
			table:  "project_assignments",
			cols:   []string{"id", "project_id", "intern_id", "role"},
			key:    "id",
			unique: assignments,
			want: `INSERT INTO "project_assignments" ("id", "project_id", "intern_id", "role") VALUES (?, ?, ?, ?)` +
				` ON CONFLICT("id") DO UPDATE SET "project_id" = excluded."project_id", "intern_id" = excluded."intern_id", "role" = excluded."role"` +
				` ON CONFLICT("project_id", "intern_id") DO UPDATE SET "id" = excluded."id", "role" = excluded."role"`,
		},
		{
			name:   "partial unique set",
			table:  "project_assignments",
			cols:   []string{"id", "project_id", "role"},
			key:    "id",
			unique: assignments,
			want: `INSERT INTO "project_assignments" ("id", "project_id", "role") VALUES (?, ?, ?)` +
				` ON CONFLICT("id") DO UPDATE SET "project_id" = excluded."project_id", "role" = excluded."role"`,
		},
		{
			name:   "unique set ignored without conflict key",
			table:  "project_assignments",
			cols:   []string{"project_id", "intern_id"},
			unique: assignments,
			want:   `INSERT INTO "project_assignments" ("project_id", "intern_id") VALUES (?, ?)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := insertSQL(tt.table, tt.cols, tt.key, tt.unique); got != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}
