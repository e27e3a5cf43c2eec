// Package schema defines the tracker's canonical table registry.
//
// The registry is the single ordered list of table descriptors the snapshot
// engine walks. Order is foreign-key dependency order: a table only
// references tables listed before it. Export and insertion walk it forward,
// destructive clearing walks it in reverse.
package schema

import (
	"fmt"
	"strings"
)

// Column is one column of a canonical table.
type Column struct {
	Name string
	// Decl is the SQLite type and column constraints, e.g. "TEXT NOT NULL".
	Decl string
}

// Table describes a canonical table.
type Table struct {
	// Name is the SQL table name
	Name string

	// Key is the identity column upserts collide on
	Key string

	// Columns in canonical order
	Columns []Column

	// Unique lists the column sets that must be unique besides the key
	Unique [][]string

	// Constraints are table-level constraints such as foreign keys
	Constraints []string
}

// ColumnNames returns the canonical column names in order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// CreateSQL returns the CREATE TABLE IF NOT EXISTS statement for the table.
func (t Table) CreateSQL() string {
	parts := make([]string, 0, len(t.Columns)+len(t.Constraints)+len(t.Unique))
	for _, c := range t.Columns {
		parts = append(parts, fmt.Sprintf("%s %s", QuoteIdent(c.Name), c.Decl))
	}
	parts = append(parts, t.Constraints...)
	for _, set := range t.Unique {
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", strings.Join(set, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", QuoteIdent(t.Name), strings.Join(parts, ",\n    "))
}

// Identifies reports whether a row carrying cols can be matched to an
// existing row, either by the key or by a complete unique set.
func (t Table) Identifies(cols []string) bool {
	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[c] = true
	}
	if have[t.Key] {
		return true
	}
	for _, set := range t.Unique {
		if hasAll(have, set) {
			return true
		}
	}
	return false
}

func hasAll(have map[string]bool, set []string) bool {
	for _, c := range set {
		if !have[c] {
			return false
		}
	}
	return true
}

func fk(column, table string) string {
	return fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(id)", column, table)
}

var tables = []Table{
	{
		Name: "settings",
		Key:  "key",
		Columns: []Column{
			{"key", "TEXT PRIMARY KEY"},
			{"value", "TEXT"},
			{"updated_at", "TEXT"},
		},
	},
	{
		Name: "interns",
		Key:  "id",
		Columns: []Column{
			{"id", "INTEGER PRIMARY KEY"},
			{"name", "TEXT NOT NULL"},
			{"email", "TEXT"},
			{"phone", "TEXT"},
			{"university", "TEXT"},
			{"department", "TEXT"},
			{"start_date", "TEXT"},
			{"end_date", "TEXT"},
			{"status", "TEXT NOT NULL DEFAULT 'active'"},
			{"avatar", "TEXT"},
			{"created_at", "TEXT"},
			{"updated_at", "TEXT"},
		},
	},
	{
		Name: "projects",
		Key:  "id",
		Columns: []Column{
			{"id", "INTEGER PRIMARY KEY"},
			{"name", "TEXT NOT NULL"},
			{"description", "TEXT"},
			{"status", "TEXT NOT NULL DEFAULT 'planning'"},
			{"priority", "TEXT"},
			{"start_date", "TEXT"},
			{"due_date", "TEXT"},
			{"color", "TEXT"},
			{"position", "INTEGER NOT NULL DEFAULT 0"},
			{"created_at", "TEXT"},
			{"updated_at", "TEXT"},
		},
	},
	{
		Name: "project_assignments",
		Key:  "id",
		Columns: []Column{
			{"id", "INTEGER PRIMARY KEY"},
			{"project_id", "INTEGER NOT NULL"},
			{"intern_id", "INTEGER NOT NULL"},
			{"role", "TEXT"},
			{"assigned_at", "TEXT"},
		},
		Unique: [][]string{{"project_id", "intern_id"}},
		Constraints: []string{
			fk("project_id", "projects"),
			fk("intern_id", "interns"),
		},
	},
	{
		Name: "tasks",
		Key:  "id",
		Columns: []Column{
			{"id", "INTEGER PRIMARY KEY"},
			{"project_id", "INTEGER"},
			{"intern_id", "INTEGER"},
			{"title", "TEXT NOT NULL"},
			{"description", "TEXT"},
			{"status", "TEXT NOT NULL DEFAULT 'todo'"},
			{"priority", "TEXT"},
			{"due_date", "TEXT"},
			{"position", "INTEGER NOT NULL DEFAULT 0"},
			{"estimated_hours", "REAL"},
			{"completed_at", "TEXT"},
			{"created_at", "TEXT"},
			{"updated_at", "TEXT"},
		},
		Constraints: []string{
			fk("project_id", "projects"),
			fk("intern_id", "interns"),
		},
	},
	{
		Name: "events",
		Key:  "id",
		Columns: []Column{
			{"id", "INTEGER PRIMARY KEY"},
			{"title", "TEXT NOT NULL"},
			{"description", "TEXT"},
			{"event_type", "TEXT"},
			{"start_time", "TEXT NOT NULL"},
			{"end_time", "TEXT"},
			{"all_day", "INTEGER NOT NULL DEFAULT 0"},
			{"location", "TEXT"},
			{"project_id", "INTEGER"},
			{"created_at", "TEXT"},
		},
		Constraints: []string{
			fk("project_id", "projects"),
		},
	},
	{
		Name: "event_assignments",
		Key:  "id",
		Columns: []Column{
			{"id", "INTEGER PRIMARY KEY"},
			{"event_id", "INTEGER NOT NULL"},
			{"intern_id", "INTEGER NOT NULL"},
		},
		Unique: [][]string{{"event_id", "intern_id"}},
		Constraints: []string{
			fk("event_id", "events"),
			fk("intern_id", "interns"),
		},
	},
	{
		Name: "intern_files",
		Key:  "id",
		Columns: []Column{
			{"id", "INTEGER PRIMARY KEY"},
			{"intern_id", "INTEGER NOT NULL"},
			{"file_name", "TEXT NOT NULL"},
			{"file_path", "TEXT"},
			{"mime_type", "TEXT"},
			{"size", "INTEGER"},
			{"uploaded_at", "TEXT"},
		},
		Constraints: []string{
			fk("intern_id", "interns"),
		},
	},
	{
		Name: "intern_notes",
		Key:  "id",
		Columns: []Column{
			{"id", "INTEGER PRIMARY KEY"},
			{"intern_id", "INTEGER NOT NULL"},
			{"content", "TEXT NOT NULL"},
			{"created_at", "TEXT"},
		},
		Constraints: []string{
			fk("intern_id", "interns"),
		},
	},
	{
		Name: "weekly_reports",
		Key:  "id",
		Columns: []Column{
			{"id", "INTEGER PRIMARY KEY"},
			{"intern_id", "INTEGER NOT NULL"},
			{"week_start", "TEXT NOT NULL"},
			{"summary", "TEXT"},
			{"achievements", "TEXT"},
			{"challenges", "TEXT"},
			{"next_week_plan", "TEXT"},
			{"hours_worked", "REAL"},
			{"created_at", "TEXT"},
		},
		Constraints: []string{
			fk("intern_id", "interns"),
		},
	},
	{
		Name: "activity_log",
		Key:  "id",
		Columns: []Column{
			{"id", "INTEGER PRIMARY KEY"},
			{"action", "TEXT NOT NULL"},
			{"entity_type", "TEXT"},
			{"entity_id", "INTEGER"},
			{"details", "TEXT"},
			{"created_at", "TEXT"},
		},
	},
}

var byName = func() map[string]Table {
	m := make(map[string]Table, len(tables))
	for _, t := range tables {
		m[t.Name] = t
	}
	return m
}()

// Tables returns the canonical tables in dependency order.
func Tables() []Table {
	out := make([]Table, len(tables))
	copy(out, tables)
	return out
}

// Reversed returns the canonical tables children-first, for clearing.
func Reversed() []Table {
	out := make([]Table, len(tables))
	for i, t := range tables {
		out[len(tables)-1-i] = t
	}
	return out
}

// Names returns the canonical table names in dependency order.
func Names() []string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names
}

// Lookup returns the descriptor for a canonical table.
func Lookup(name string) (Table, bool) {
	t, ok := byName[name]
	return t, ok
}

// AllSchemaSQL returns the statements that create every canonical table.
func AllSchemaSQL() []string {
	stmts := make([]string, len(tables))
	for i, t := range tables {
		stmts[i] = t.CreateSQL()
	}
	return stmts
}

// QuoteIdent quotes an SQL identifier for SQLite.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
