// Package types provides core data types for interntrack backups.
package types

import "time"

// SnapshotVersion is the document format tag written by the exporter.
const SnapshotVersion = "1.0"

// Row is a single table row keyed by column name.
// Values are scalars as stored by SQLite (string, int64, float64) or nil.
type Row map[string]interface{}

// Columns returns the row's column names in no particular order.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	return cols
}

// Snapshot is the portable unit of backup and restore: every row of every
// canonical table at a point in time.
type Snapshot struct {
	// ExportedAt is set at serialization time
	ExportedAt time.Time `json:"exportedAt"`

	// Version is the document format tag (SnapshotVersion)
	Version string `json:"version"`

	// Tables maps table name to its rows in store order.
	// A missing key means the table was not part of the document.
	Tables map[string][]Row `json:"tables"`
}

// NewSnapshot returns an empty snapshot stamped with the current time.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		ExportedAt: time.Now().UTC(),
		Version:    SnapshotVersion,
		Tables:     make(map[string][]Row),
	}
}

// Rows returns the rows for a table and whether the table is present.
func (s *Snapshot) Rows(table string) ([]Row, bool) {
	if s == nil || s.Tables == nil {
		return nil, false
	}
	rows, ok := s.Tables[table]
	if !ok || rows == nil {
		return nil, false
	}
	return rows, true
}

// TableCounts reduces each table to its row count.
func (s *Snapshot) TableCounts() map[string]int {
	counts := make(map[string]int, len(s.Tables))
	for name, rows := range s.Tables {
		counts[name] = len(rows)
	}
	return counts
}
