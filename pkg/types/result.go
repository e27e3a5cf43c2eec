package types

import "time"

// ObjectMeta describes the remote backup object.
type ObjectMeta struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ModifiedTime time.Time `json:"modifiedTime"`
	Size         int64     `json:"size"`

	// Checksum is the murmur3 digest of the stored payload, if the backend recorded one
	Checksum string `json:"-"`
}

// ImportResult reports what an import did, table by table.
// It is produced per call and never persisted.
type ImportResult struct {
	Success  bool           `json:"success"`
	Imported map[string]int `json:"imported"`
	Skipped  map[string]int `json:"skipped"`
	Errors   []string       `json:"errors"`
}

// NewImportResult returns an empty successful result.
func NewImportResult() *ImportResult {
	return &ImportResult{
		Success:  true,
		Imported: make(map[string]int),
		Skipped:  make(map[string]int),
		Errors:   []string{},
	}
}

// TotalImported sums imported rows across tables.
func (r *ImportResult) TotalImported() int {
	total := 0
	for _, n := range r.Imported {
		total += n
	}
	return total
}

// TotalSkipped sums skipped rows across tables.
func (r *ImportResult) TotalSkipped() int {
	total := 0
	for _, n := range r.Skipped {
		total += n
	}
	return total
}

// ExportResult is returned by a push.
type ExportResult struct {
	Success bool        `json:"success"`
	File    *ObjectMeta `json:"file"`
}

// PushResult records the push phase of a sync.
type PushResult struct {
	ExportedAt time.Time   `json:"exportedAt"`
	File       *ObjectMeta `json:"file"`
}

// SyncResult combines the pull and push phases of a bidirectional sync.
type SyncResult struct {
	Pulled        bool          `json:"pulled"`
	Pushed        bool          `json:"pushed"`
	PullResult    *ImportResult `json:"pullResult"`
	PushResult    *PushResult   `json:"pushResult"`
	BackupExisted bool          `json:"backupExisted"`
	Message       string        `json:"message"`
}

// Preview summarizes a remote backup without importing it.
type Preview struct {
	ExportedAt  time.Time      `json:"exportedAt"`
	Version     string         `json:"version"`
	TableCounts map[string]int `json:"tableCounts"`
}

// Account identifies the connected remote account.
type Account struct {
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Status reports remote configuration and connection state.
// User and LastBackup are best-effort and nil when they could not be fetched.
type Status struct {
	Configured bool        `json:"configured"`
	Connected  bool        `json:"connected"`
	Provider   string      `json:"provider"`
	User       *Account    `json:"user"`
	LastBackup *ObjectMeta `json:"lastBackup"`
}
