package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	apperrors "github.com/interntrack/interntrack/internal/errors"
	"github.com/interntrack/interntrack/internal/snapshot"
	"github.com/interntrack/interntrack/pkg/types"
)

type memObject struct {
	meta types.ObjectMeta
	body []byte
}

// memBackend is an in-memory Backend that counts calls.
type memBackend struct {
	mu      sync.Mutex
	objects map[string]*memObject
	seq     int
	clock   time.Time

	listErr error
	block   bool

	creates int
	updates int
}

func newMemBackend() *memBackend {
	return &memBackend{
		objects: make(map[string]*memObject),
		clock:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memBackend) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memBackend) List(ctx context.Context, name string) ([]types.ObjectMeta, error) {
	if m.block {
		<-ctx.Done()
		return nil, transportError("list", ctx.Err())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []types.ObjectMeta
	for _, o := range m.objects {
		if o.meta.Name == name {
			out = append(out, o.meta)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModifiedTime.After(out[j].ModifiedTime) })
	return out, nil
}

func (m *memBackend) Create(ctx context.Context, name string, body []byte, props Properties) (*types.ObjectMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.creates++
	o := &memObject{
		meta: types.ObjectMeta{ID: fmt.Sprintf("obj-%d", m.seq), Name: name, ModifiedTime: m.tick(), Size: int64(len(body)), Checksum: props.Checksum},
		body: append([]byte(nil), body...),
	}
	m.objects[o.meta.ID] = o
	meta := o.meta
	return &meta, nil
}

func (m *memBackend) Update(ctx context.Context, id string, body []byte, props Properties) (*types.ObjectMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[id]
	if !ok {
		return nil, transportError("update", fmt.Errorf("no object %s", id))
	}
	m.updates++
	o.body = append([]byte(nil), body...)
	o.meta.ModifiedTime = m.tick()
	o.meta.Size = int64(len(body))
	o.meta.Checksum = props.Checksum
	meta := o.meta
	return &meta, nil
}

func (m *memBackend) Read(ctx context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[id]
	if !ok {
		return nil, transportError("read", fmt.Errorf("no object %s", id))
	}
	return append([]byte(nil), o.body...), nil
}

func (m *memBackend) Account(ctx context.Context) (*types.Account, error) {
	return &types.Account{DisplayName: "memory"}, nil
}

var quietLogger = log.New(io.Discard, "", 0)

func testDoc() *types.Snapshot {
	return &types.Snapshot{
		ExportedAt: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
		Version:    types.SnapshotVersion,
		Tables: map[string][]types.Row{
			"interns": {{"id": int64(1), "name": "Ada"}},
			"tasks":   {},
		},
	}
}

func TestAdapter_FindNone(t *testing.T) {
	a := NewAdapter(newMemBackend(), AdapterConfig{Logger: quietLogger})
	meta, err := a.Find(context.Background())
	if err != nil || meta != nil {
		t.Errorf("got %v, %v; want nil, nil", meta, err)
	}
}

func TestAdapter_DownloadNone(t *testing.T) {
	a := NewAdapter(newMemBackend(), AdapterConfig{Logger: quietLogger})
	doc, err := a.Download(context.Background())
	if err != nil || doc != nil {
		t.Errorf("got %v, %v; want nil, nil", doc, err)
	}
}

func TestAdapter_UploadCreatesThenUpdatesInPlace(t *testing.T) {
	b := newMemBackend()
	a := NewAdapter(b, AdapterConfig{Logger: quietLogger})
	ctx := context.Background()

	first, err := a.Upload(ctx, testDoc())
	if err != nil {
		t.Fatalf("first Upload failed: %v", err)
	}
	if first.Name != DefaultObjectName {
		t.Errorf("name = %q, want %q", first.Name, DefaultObjectName)
	}

	doc := testDoc()
	doc.Tables["interns"] = append(doc.Tables["interns"], types.Row{"id": int64(2), "name": "Alan"})
	second, err := a.Upload(ctx, doc)
	if err != nil {
		t.Fatalf("second Upload failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("update changed identity: %s -> %s", first.ID, second.ID)
	}
	if b.creates != 1 || b.updates != 1 {
		t.Errorf("creates=%d updates=%d, want 1/1", b.creates, b.updates)
	}

	found, err := a.Find(ctx)
	if err != nil || found == nil || found.ID != first.ID {
		t.Fatalf("Find: %v, %v", found, err)
	}

	got, err := a.Download(ctx)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("download mismatch (-want +got):\n%s", diff)
	}
}

func TestAdapter_CompressedRoundTrip(t *testing.T) {
	b := newMemBackend()
	a := NewAdapter(b, AdapterConfig{Codec: snapshot.Codec{Compress: true}, Logger: quietLogger})
	ctx := context.Background()

	if _, err := a.Upload(ctx, testDoc()); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	for _, o := range b.objects {
		if bytes.HasPrefix(o.body, []byte("{")) {
			t.Error("payload should be compressed")
		}
	}

	// A plain adapter reads compressed payloads too.
	plain := NewAdapter(b, AdapterConfig{Logger: quietLogger})
	got, err := plain.Download(ctx)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if diff := cmp.Diff(testDoc(), got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestAdapter_ChecksumMismatch(t *testing.T) {
	b := newMemBackend()
	a := NewAdapter(b, AdapterConfig{Logger: quietLogger})
	ctx := context.Background()

	meta, err := a.Upload(ctx, testDoc())
	if err != nil {
		t.Fatal(err)
	}
	b.objects[meta.ID].body = []byte(`{"version":"1.0","tables":{}}`)

	_, err = a.Download(ctx)
	if !errors.Is(err, apperrors.ErrCorruptSnapshot) {
		t.Errorf("got %v, want ErrCorruptSnapshot", err)
	}
}

func TestAdapter_UndecodableContent(t *testing.T) {
	b := newMemBackend()
	ctx := context.Background()
	if _, err := b.Create(ctx, DefaultObjectName, []byte("<html>oops</html>"), Properties{}); err != nil {
		t.Fatal(err)
	}

	_, err := NewAdapter(b, AdapterConfig{Logger: quietLogger}).Download(ctx)
	if !errors.Is(err, apperrors.ErrCorruptSnapshot) {
		t.Errorf("got %v, want ErrCorruptSnapshot", err)
	}
}

func TestAdapter_MultipleMatchesUsesNewestAndWarns(t *testing.T) {
	b := newMemBackend()
	ctx := context.Background()
	older, _ := b.Create(ctx, DefaultObjectName, []byte("{}"), Properties{})
	newer, _ := b.Create(ctx, DefaultObjectName, []byte("{}"), Properties{})

	var buf bytes.Buffer
	a := NewAdapter(b, AdapterConfig{Logger: log.New(&buf, "", 0)})

	meta, err := a.Find(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if meta.ID != newer.ID {
		t.Errorf("found %s, want newest %s", meta.ID, newer.ID)
	}
	out := buf.String()
	if !strings.Contains(out, "[WARN]") || !strings.Contains(out, older.ID) {
		t.Errorf("expected warning naming %s, got %q", older.ID, out)
	}

	if _, err := a.Upload(ctx, testDoc()); err != nil {
		t.Fatal(err)
	}
	if b.creates != 2 || b.updates != 1 {
		t.Errorf("upload should update the newest object, creates=%d updates=%d", b.creates, b.updates)
	}
}

func TestAdapter_CustomObjectName(t *testing.T) {
	b := newMemBackend()
	a := NewAdapter(b, AdapterConfig{ObjectName: "staging-backup.json", Logger: quietLogger})
	meta, err := a.Upload(context.Background(), testDoc())
	if err != nil {
		t.Fatal(err)
	}
	if meta.Name != "staging-backup.json" {
		t.Errorf("name = %q", meta.Name)
	}
	if found, _ := NewAdapter(b, AdapterConfig{Logger: quietLogger}).Find(context.Background()); found != nil {
		t.Error("default-named adapter should not see the custom object")
	}
}

func TestAdapter_Timeout(t *testing.T) {
	b := newMemBackend()
	b.block = true
	a := NewAdapter(b, AdapterConfig{Timeout: 20 * time.Millisecond, Logger: quietLogger})

	start := time.Now()
	_, err := a.Find(context.Background())
	if !errors.Is(err, apperrors.ErrTransport) {
		t.Errorf("got %v, want transport error", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("timeout should carry DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout not applied")
	}
}

func TestAdapter_PropagatesAuthErrors(t *testing.T) {
	b := newMemBackend()
	b.listErr = authError("list", errors.New("401"))
	a := NewAdapter(b, AdapterConfig{Logger: quietLogger})

	for name, op := range map[string]func() error{
		"find":     func() error { _, err := a.Find(context.Background()); return err },
		"upload":   func() error { _, err := a.Upload(context.Background(), testDoc()); return err },
		"download": func() error { _, err := a.Download(context.Background()); return err },
	} {
		if err := op(); !apperrors.IsAuth(err) {
			t.Errorf("%s: got %v, want auth error", name, err)
		}
	}
}
