package snapshot

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/interntrack/interntrack/internal/schema"
	"github.com/interntrack/interntrack/internal/store"
	"github.com/interntrack/interntrack/pkg/types"
)

// Exporter reads the whole store into a Snapshot.
type Exporter struct {
	reader store.Reader
	logger *log.Logger
	now    func() time.Time
}

// NewExporter creates an Exporter over reader. A nil logger writes to stderr.
func NewExporter(reader store.Reader, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.New(os.Stderr, "[snapshot] ", log.LstdFlags)
	}
	return &Exporter{
		reader: reader,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Export reads every canonical table in dependency order. Every table is
// present in the result. A table that cannot be read is logged and exported
// empty so one bad table never sinks the whole backup. The only error
// returned is context cancellation.
func (e *Exporter) Export(ctx context.Context) (*types.Snapshot, error) {
	doc := &types.Snapshot{
		Version: types.SnapshotVersion,
		Tables:  make(map[string][]types.Row, len(schema.Names())),
	}

	for _, name := range schema.Names() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := e.reader.SelectAll(ctx, name)
		if err != nil {
			e.logger.Printf("[WARN] export %s: %v", name, err)
			doc.Tables[name] = []types.Row{}
			continue
		}
		for _, row := range rows {
			normalizeRow(row)
		}
		if rows == nil {
			rows = []types.Row{}
		}
		doc.Tables[name] = rows
	}

	doc.ExportedAt = e.now()
	return doc, nil
}

// normalizeRow reduces driver values to the document's scalar set.
func normalizeRow(row types.Row) {
	for col, v := range row {
		switch val := v.(type) {
		case []byte:
			row[col] = string(val)
		case time.Time:
			row[col] = val.UTC().Format(time.RFC3339Nano)
		case bool:
			if val {
				row[col] = int64(1)
			} else {
				row[col] = int64(0)
			}
		case int:
			row[col] = int64(val)
		case int32:
			row[col] = int64(val)
		case float32:
			row[col] = float64(val)
		}
	}
}
