// Package snapshot turns the tracker's row store into a portable snapshot
// document and back.
//
// The Exporter reads every canonical table into a Snapshot, the Codec
// encodes it for the remote store, and the Importer writes a Snapshot back
// in one transaction, either replacing local data or merging into it.
// Column sets are narrowed against the live schema on import so backups
// from older or newer deployments still load.
package snapshot

import (
	"context"
	"log"
	"os"
)

// ColumnSource answers live column lookups. Both store.Reader and store.Tx
// satisfy it.
type ColumnSource interface {
	TableColumns(ctx context.Context, table string) ([]string, error)
}

// Introspector reports the columns currently present in the live store.
type Introspector struct {
	logger *log.Logger
}

// NewIntrospector creates an Introspector. A nil logger writes to stderr.
func NewIntrospector(logger *log.Logger) *Introspector {
	if logger == nil {
		logger = log.New(os.Stderr, "[snapshot] ", log.LstdFlags)
	}
	return &Introspector{logger: logger}
}

// ColumnsOf returns the live column names of table in store order.
// A missing table yields an empty list. Lookup failures are logged and also
// yield an empty list; schema drift must never abort an import.
func (i *Introspector) ColumnsOf(ctx context.Context, src ColumnSource, table string) []string {
	cols, err := src.TableColumns(ctx, table)
	if err != nil {
		i.logger.Printf("[WARN] columns of %s: %v", table, err)
		return []string{}
	}
	if cols == nil {
		return []string{}
	}
	return cols
}
