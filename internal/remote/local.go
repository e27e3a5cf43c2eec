package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/interntrack/interntrack/internal/session"
	"github.com/interntrack/interntrack/pkg/types"
	"github.com/natefinch/atomic"
)

const metaSuffix = ".meta.json"

// localMeta is the sidecar written next to every object.
type localMeta struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ContentType  string    `json:"contentType"`
	Checksum     string    `json:"checksum"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

// LocalBackend implements Backend on a filesystem directory.
// This is primarily used for testing and single-machine setups.
type LocalBackend struct {
	basePath string
	mu       sync.RWMutex
}

// NewLocalBackend creates a backend rooted at basePath.
func NewLocalBackend(basePath string) (*LocalBackend, error) {
	if err := os.MkdirAll(basePath, 0700); err != nil {
		return nil, transportError("create backup directory", err)
	}
	return &LocalBackend{basePath: basePath}, nil
}

// List implements Backend.
func (l *LocalBackend) List(ctx context.Context, name string) ([]types.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportError("list", err)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	metas, err := l.readMetas()
	if err != nil {
		return nil, transportError("list", err)
	}

	var out []types.ObjectMeta
	for _, m := range metas {
		if m.Name != name {
			continue
		}
		obj, err := l.objectMeta(m)
		if err != nil {
			// Sidecar without payload; treat as trashed.
			continue
		}
		out = append(out, *obj)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ModifiedTime.After(out[j].ModifiedTime)
	})
	return out, nil
}

// Create implements Backend.
func (l *LocalBackend) Create(ctx context.Context, name string, body []byte, props Properties) (*types.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportError("create", err)
	}
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, transportError("create", fmt.Errorf("invalid object name %q", name))
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	m := localMeta{
		ID:   uuid.NewString(),
		Name: name,
	}
	return l.write(m, body, props)
}

// Update implements Backend.
func (l *LocalBackend) Update(ctx context.Context, id string, body []byte, props Properties) (*types.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportError("update", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := l.readMeta(id)
	if err != nil {
		return nil, transportError("update "+id, err)
	}
	return l.write(*m, body, props)
}

// Read implements Backend.
func (l *LocalBackend) Read(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportError("read", err)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.readMeta(id); err != nil {
		return nil, transportError("read "+id, err)
	}
	data, err := os.ReadFile(l.objectPath(id))
	if err != nil {
		return nil, transportError("read "+id, err)
	}
	return data, nil
}

// Account implements Backend.
func (l *LocalBackend) Account(ctx context.Context) (*types.Account, error) {
	return &types.Account{DisplayName: "local:" + l.basePath}, nil
}

// write stores the payload, then its sidecar.
func (l *LocalBackend) write(m localMeta, body []byte, props Properties) (*types.ObjectMeta, error) {
	m.ContentType = props.ContentType
	m.Checksum = props.Checksum
	m.ModifiedTime = time.Now().UTC()

	if err := atomic.WriteFile(l.objectPath(m.ID), bytes.NewReader(body)); err != nil {
		return nil, transportError("write "+m.ID, err)
	}
	sidecar, err := json.Marshal(m)
	if err != nil {
		return nil, transportError("write "+m.ID, err)
	}
	if err := atomic.WriteFile(l.metaPath(m.ID), bytes.NewReader(sidecar)); err != nil {
		return nil, transportError("write "+m.ID, err)
	}
	return l.objectMeta(m)
}

func (l *LocalBackend) objectMeta(m localMeta) (*types.ObjectMeta, error) {
	info, err := os.Stat(l.objectPath(m.ID))
	if err != nil {
		return nil, err
	}
	return &types.ObjectMeta{
		ID:           m.ID,
		Name:         m.Name,
		ModifiedTime: m.ModifiedTime,
		Size:         info.Size(),
		Checksum:     m.Checksum,
	}, nil
}

func (l *LocalBackend) readMeta(id string) (*localMeta, error) {
	if id == "" || strings.ContainsAny(id, `/\.`) {
		return nil, fmt.Errorf("invalid object id %q", id)
	}
	data, err := os.ReadFile(l.metaPath(id))
	if err != nil {
		return nil, err
	}
	var m localMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (l *LocalBackend) readMetas() ([]localMeta, error) {
	paths, err := filepath.Glob(filepath.Join(l.basePath, "*"+metaSuffix))
	if err != nil {
		return nil, err
	}
	metas := make([]localMeta, 0, len(paths))
	for _, p := range paths {
		id := strings.TrimSuffix(filepath.Base(p), metaSuffix)
		m, err := l.readMeta(id)
		if err != nil {
			continue
		}
		metas = append(metas, *m)
	}
	return metas, nil
}

func (l *LocalBackend) objectPath(id string) string {
	return filepath.Join(l.basePath, id+".obj")
}

func (l *LocalBackend) metaPath(id string) string {
	return filepath.Join(l.basePath, id+metaSuffix)
}

// LocalProvider opens LocalBackends on a fixed directory.
type LocalProvider struct {
	Dir string
}

// Name implements Provider.
func (p *LocalProvider) Name() string { return "local" }

// Configured implements Provider.
func (p *LocalProvider) Configured() bool { return p.Dir != "" }

// NeedsSession implements Provider.
func (p *LocalProvider) NeedsSession() bool { return false }

// Open implements Provider.
func (p *LocalProvider) Open(ctx context.Context, _ *session.Session) (Backend, error) {
	return NewLocalBackend(p.Dir)
}
