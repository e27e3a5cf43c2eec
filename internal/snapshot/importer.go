package snapshot

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/interntrack/interntrack/internal/schema"
	"github.com/interntrack/interntrack/internal/store"
	"github.com/interntrack/interntrack/pkg/types"
)

// Policy selects how an import treats existing local rows.
type Policy struct {
	// Merge upserts snapshot rows over local rows on the table's key.
	// When false the import clears every canonical table first.
	Merge bool
}

// String returns the policy name.
func (p Policy) String() string {
	if p.Merge {
		return "merge"
	}
	return "replace"
}

// Importer writes a Snapshot into the store in a single transaction.
type Importer struct {
	store        store.Store
	introspector *Introspector
	logger       *log.Logger
}

// NewImporter creates an Importer. A nil logger writes to stderr.
func NewImporter(s store.Store, logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.New(os.Stderr, "[snapshot] ", log.LstdFlags)
	}
	return &Importer{
		store:        s,
		introspector: NewIntrospector(logger),
		logger:       logger,
	}
}

// Import writes doc under policy p.
//
// Row failures are counted as skipped and recorded in Errors; they never
// abort the import. A transaction failure rolls back every write made by
// this call and is reported as Success=false with the failure appended to
// Errors.
func (im *Importer) Import(ctx context.Context, doc *types.Snapshot, p Policy) *types.ImportResult {
	result := types.NewImportResult()

	err := im.store.WithTx(ctx, func(tx store.Tx) error {
		if !p.Merge {
			for _, t := range schema.Reversed() {
				if err := tx.DeleteAll(ctx, t.Name); err != nil {
					im.logger.Printf("[WARN] clear %s: %v", t.Name, err)
				}
			}
		}

		for _, t := range schema.Tables() {
			rows, ok := doc.Rows(t.Name)
			if !ok {
				continue
			}
			if err := im.importTable(ctx, tx, t, rows, p, result); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		result.Success = false
		result.Errors = append(result.Errors, fmt.Sprintf("transaction: %v", err))
		im.logger.Printf("[WARN] import (%s) rolled back: %v", p, err)
		return result
	}

	im.logger.Printf("import (%s): %d rows imported, %d skipped", p, result.TotalImported(), result.TotalSkipped())
	return result
}

// importTable inserts the rows of one table. It only returns an error for
// failures that must abort the transaction.
func (im *Importer) importTable(ctx context.Context, tx store.Tx, t schema.Table, rows []types.Row, p Policy, result *types.ImportResult) error {
	result.Imported[t.Name] = 0
	result.Skipped[t.Name] = 0

	live := im.introspector.ColumnsOf(ctx, tx, t.Name)

	conflictKey := ""
	if p.Merge {
		conflictKey = t.Key
	}

	keyless := 0
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}

		cols, vals := narrow(row, live)
		if len(cols) == 0 {
			result.Skipped[t.Name]++
			continue
		}
		if p.Merge && !t.Identifies(cols) {
			keyless++
		}

		if err := tx.Insert(ctx, t.Name, cols, vals, conflictKey); err != nil {
			result.Skipped[t.Name]++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", t.Name, err))
			continue
		}
		result.Imported[t.Name]++
	}
	if keyless > 0 {
		im.logger.Printf("[WARN] merge %s: %d rows without key inserted as new rows", t.Name, keyless)
	}
	return nil
}

// narrow keeps the row's columns that exist in live, in live order.
func narrow(row types.Row, live []string) ([]string, []interface{}) {
	var cols []string
	var vals []interface{}
	for _, c := range live {
		v, ok := row[c]
		if !ok {
			continue
		}
		cols = append(cols, c)
		vals = append(vals, v)
	}
	return cols, vals
}
