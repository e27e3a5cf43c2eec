package snapshot

import (
	"context"
	"reflect"
	"testing"

	"github.com/interntrack/interntrack/internal/store"
	"github.com/interntrack/interntrack/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// dataset builds interns, projects and tasks that reference them.
func dataset(names []string, hours []float64) []seedRow {
	var rows []seedRow
	for i, name := range names {
		rows = append(rows, seedRow{"interns", types.Row{"id": int64(i + 1), "name": name, "status": "active"}})
	}
	rows = append(rows, seedRow{"projects", types.Row{"id": int64(1), "name": "Onboarding", "status": "active"}})
	for i, h := range hours {
		task := types.Row{"id": int64(i + 1), "project_id": int64(1), "title": "task", "estimated_hours": h}
		if len(names) > 0 {
			task["intern_id"] = int64(i%len(names) + 1)
		}
		rows = append(rows, seedRow{"tasks", task})
	}
	return rows
}

// TestProperty_ExportImportRoundTrip validates that replace-importing an
// export into an empty store reproduces every row, including through the
// wire encoding.
func TestProperty_ExportImportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.MaxSize = 15
	properties := gopter.NewProperties(parameters)

	properties.Property("replace import of an export reproduces the source rows", prop.ForAll(
		func(names []string, hours []float64, compress bool) bool {
			src := openStore(t, dir)
			seed(t, src, dataset(names, hours)...)

			doc, err := NewExporter(src, quietLogger).Export(context.Background())
			if err != nil {
				return false
			}
			codec := Codec{Compress: compress}
			data, err := codec.Encode(doc)
			if err != nil {
				return false
			}
			decoded, err := Decode(data)
			if err != nil {
				return false
			}

			dst := openStore(t, dir)
			result := NewImporter(dst, quietLogger).Import(context.Background(), decoded, Policy{Merge: false})
			if !result.Success || len(result.Errors) != 0 {
				return false
			}
			return reflect.DeepEqual(dump(t, src), dump(t, dst))
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.Float64Range(0, 80)),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestProperty_MergeIdempotence validates that merging the same snapshot
// twice leaves the same rows as merging it once.
func TestProperty_MergeIdempotence(t *testing.T) {
	dir := t.TempDir()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.MaxSize = 15
	properties := gopter.NewProperties(parameters)

	properties.Property("merge import is idempotent", prop.ForAll(
		func(local, remote []string) bool {
			src := openStore(t, dir)
			seed(t, src, dataset(remote, nil)...)
			doc, err := NewExporter(src, quietLogger).Export(context.Background())
			if err != nil {
				return false
			}

			dst := openStore(t, dir)
			seed(t, dst, dataset(local, nil)...)
			im := NewImporter(dst, quietLogger)

			first := im.Import(context.Background(), doc, Policy{Merge: true})
			once := dump(t, dst)
			second := im.Import(context.Background(), doc, Policy{Merge: true})
			twice := dump(t, dst)

			return first.Success && second.Success && reflect.DeepEqual(once, twice)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestProperty_MergeNeverDeletes validates that a merge keeps every local
// key whether or not the snapshot mentions it.
func TestProperty_MergeNeverDeletes(t *testing.T) {
	dir := t.TempDir()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.MaxSize = 15
	properties := gopter.NewProperties(parameters)

	properties.Property("local interns survive a merge", prop.ForAll(
		func(local, remote []string) bool {
			dst := openStore(t, dir)
			seed(t, dst, dataset(local, nil)...)

			doc := &types.Snapshot{Tables: map[string][]types.Row{"interns": {}}}
			for i, name := range remote {
				doc.Tables["interns"] = append(doc.Tables["interns"],
					types.Row{"id": int64(i + 1), "name": name, "status": "active"})
			}

			result := NewImporter(dst, quietLogger).Import(context.Background(), doc, Policy{Merge: true})
			if !result.Success {
				return false
			}

			n, err := dst.Count(context.Background(), "interns")
			if err != nil {
				return false
			}
			want := len(local)
			if len(remote) > want {
				want = len(remote)
			}
			return n == want
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

var _ store.Store = (*failingCommitStore)(nil)
