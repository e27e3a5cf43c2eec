package remote

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	apperrors "github.com/interntrack/interntrack/internal/errors"
	"github.com/interntrack/interntrack/internal/snapshot"
	"github.com/interntrack/interntrack/pkg/types"
)

// AdapterConfig configures an Adapter.
type AdapterConfig struct {
	// ObjectName is the backup object's fixed name
	ObjectName string

	// Codec encodes uploads. Downloads detect compression themselves.
	Codec snapshot.Codec

	// Timeout bounds each remote call. Zero means no limit.
	Timeout time.Duration

	// Logger for warnings. Nil writes to stderr.
	Logger *log.Logger
}

// Adapter finds, uploads and downloads the one backup object on a backend.
type Adapter struct {
	backend Backend
	name    string
	codec   snapshot.Codec
	timeout time.Duration
	logger  *log.Logger
}

// NewAdapter creates an Adapter over backend.
func NewAdapter(backend Backend, cfg AdapterConfig) *Adapter {
	if cfg.ObjectName == "" {
		cfg.ObjectName = DefaultObjectName
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Adapter{
		backend: backend,
		name:    cfg.ObjectName,
		codec:   cfg.Codec,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

func (a *Adapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

// Account identifies the account behind the backend.
func (a *Adapter) Account(ctx context.Context) (*types.Account, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	return a.backend.Account(ctx)
}

// Find returns the backup object's metadata, or nil if there is none.
// If several objects carry the name the most recently modified one wins
// and the others are logged.
func (a *Adapter) Find(ctx context.Context) (*types.ObjectMeta, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	matches, err := a.backend.List(ctx, a.name)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	if len(matches) > 1 {
		ids := make([]string, 0, len(matches)-1)
		for _, m := range matches[1:] {
			ids = append(ids, m.ID)
		}
		a.logger.Printf("[WARN] %d objects named %s, using %s, ignoring %s",
			len(matches), a.name, matches[0].ID, strings.Join(ids, ", "))
	}
	meta := matches[0]
	return &meta, nil
}

// Upload encodes doc and writes it over the existing backup object, or
// creates the object if there is none.
func (a *Adapter) Upload(ctx context.Context, doc *types.Snapshot) (*types.ObjectMeta, error) {
	body, err := a.codec.Encode(doc)
	if err != nil {
		return nil, err
	}
	props := Properties{
		ContentType: a.codec.ContentType(),
		Checksum:    snapshot.Checksum(body),
	}

	existing, err := a.Find(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if existing != nil {
		return a.backend.Update(ctx, existing.ID, body, props)
	}
	return a.backend.Create(ctx, a.name, body, props)
}

// Download fetches and decodes the backup object. It returns nil, nil when
// there is no backup yet.
func (a *Adapter) Download(ctx context.Context) (*types.Snapshot, error) {
	meta, err := a.Find(ctx)
	if err != nil || meta == nil {
		return nil, err
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	body, err := a.backend.Read(ctx, meta.ID)
	if err != nil {
		return nil, err
	}
	if meta.Checksum != "" && meta.Checksum != snapshot.Checksum(body) {
		return nil, apperrors.NewRemoteError(apperrors.CodeCorruptSnapshot, "checksum mismatch on "+meta.ID, nil)
	}

	doc, err := snapshot.Decode(body)
	if err != nil {
		return nil, apperrors.NewRemoteError(apperrors.CodeCorruptSnapshot, "decode "+meta.ID, err)
	}
	return doc, nil
}
