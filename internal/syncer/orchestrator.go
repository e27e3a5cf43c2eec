// Package syncer coordinates the local store and the remote backup object:
// push (export), pull-then-push (sync), preview and one-shot import.
//
// Every call is request scoped. There is no background scheduling and no
// lock across concurrent calls; the last upload wins on the remote.
package syncer

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"time"

	apperrors "github.com/interntrack/interntrack/internal/errors"
	"github.com/interntrack/interntrack/internal/remote"
	"github.com/interntrack/interntrack/internal/session"
	"github.com/interntrack/interntrack/internal/snapshot"
	"github.com/interntrack/interntrack/internal/store"
	"github.com/interntrack/interntrack/pkg/types"
)

const (
	msgSynced  = "Synced with existing backup"
	msgCreated = "Created new backup"
)

// Options configures an Orchestrator.
type Options struct {
	// ObjectName overrides the backup object's name.
	ObjectName string

	// Timeout bounds each remote call.
	Timeout time.Duration

	// Compress uploads snappy-framed payloads.
	Compress bool

	// Logger receives progress and warnings. Nil writes to stderr.
	Logger *log.Logger
}

// Orchestrator runs export, sync, preview and import against one provider.
type Orchestrator struct {
	provider remote.Provider
	sessions session.Store
	exporter *snapshot.Exporter
	importer *snapshot.Importer
	opts     Options
	logger   *log.Logger
}

// New creates an Orchestrator. sessions may be nil when the provider does
// not need a session.
func New(s store.Store, provider remote.Provider, sessions session.Store, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Orchestrator{
		provider: provider,
		sessions: sessions,
		exporter: snapshot.NewExporter(s, opts.Logger),
		importer: snapshot.NewImporter(s, opts.Logger),
		opts:     opts,
		logger:   opts.Logger,
	}
}

func (o *Orchestrator) configured() bool {
	return o.provider != nil && o.provider.Configured()
}

// adapter opens the provider for the current session.
func (o *Orchestrator) adapter(ctx context.Context) (*remote.Adapter, error) {
	if !o.configured() {
		return nil, apperrors.ErrNotConfigured
	}

	var sess *session.Session
	if o.provider.NeedsSession() {
		if o.sessions == nil {
			return nil, apperrors.ErrNotConnected
		}
		s, err := o.sessions.Load()
		if err != nil {
			return nil, apperrors.NewInternalError("load session", err)
		}
		if s == nil {
			return nil, apperrors.ErrNotConnected
		}
		sess = s
	}

	backend, err := o.provider.Open(ctx, sess)
	if err != nil {
		return nil, err
	}
	return remote.NewAdapter(backend, remote.AdapterConfig{
		ObjectName: o.opts.ObjectName,
		Codec:      snapshot.Codec{Compress: o.opts.Compress},
		Timeout:    o.opts.Timeout,
		Logger:     o.logger,
	}), nil
}

// fail translates err for callers. Rejected credentials clear the session
// and surface as SESSION_EXPIRED; unclassified errors become a transport
// failure.
func (o *Orchestrator) fail(op string, err error) error {
	if apperrors.IsAuth(err) && apperrors.GetCode(err) != apperrors.CodeNotConnected {
		o.clearSession()
		o.logger.Printf("[WARN] %s: %v (session cleared)", op, err)
		return apperrors.NewAuthError(apperrors.CodeSessionExpired, "session expired, please reconnect", err)
	}

	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		return err
	}
	return apperrors.NewRemoteError(apperrors.CodeTransportFailed, op+" failed", err)
}

func (o *Orchestrator) clearSession() {
	if o.sessions == nil {
		return
	}
	if err := o.sessions.Clear(); err != nil {
		o.logger.Printf("[WARN] failed to clear session: %v", err)
	}
}

// Status reports configuration and connection state. User and LastBackup
// are best effort and stay nil when they cannot be fetched.
func (o *Orchestrator) Status(ctx context.Context) *types.Status {
	st := &types.Status{Configured: o.configured()}
	if o.provider != nil {
		st.Provider = o.provider.Name()
	}
	if !st.Configured {
		return st
	}

	a, err := o.adapter(ctx)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotConnected) {
			o.logger.Printf("[WARN] status: %v", o.fail("status", err))
		}
		return st
	}
	st.Connected = true

	acct, err := a.Account(ctx)
	if err != nil {
		err = o.fail("status", err)
		if apperrors.IsAuth(err) {
			st.Connected = false
			return st
		}
		o.logger.Printf("[WARN] status: account lookup failed: %v", err)
	} else {
		st.User = acct
	}

	meta, err := a.Find(ctx)
	if err != nil {
		o.logger.Printf("[WARN] status: backup lookup failed: %v", o.fail("status", err))
	} else {
		st.LastBackup = meta
	}
	return st
}

// RunExport pushes a fresh snapshot of the local store.
func (o *Orchestrator) RunExport(ctx context.Context) (*types.ExportResult, error) {
	a, err := o.adapter(ctx)
	if err != nil {
		return nil, o.fail("export", err)
	}

	doc, err := o.exporter.Export(ctx)
	if err != nil {
		return nil, o.fail("export", err)
	}
	meta, err := a.Upload(ctx, doc)
	if err != nil {
		return nil, o.fail("export", err)
	}

	o.logger.Printf("Exported backup %s (%d bytes)", meta.ID, meta.Size)
	return &types.ExportResult{Success: true, File: meta}, nil
}

// RunSync merges the remote backup into the local store, then pushes the
// merged result. A failed pull does not stop the push.
func (o *Orchestrator) RunSync(ctx context.Context) (*types.SyncResult, error) {
	a, err := o.adapter(ctx)
	if err != nil {
		return nil, o.fail("sync", err)
	}

	result := &types.SyncResult{}

	doc, err := a.Download(ctx)
	switch {
	case errors.Is(err, apperrors.ErrCorruptSnapshot):
		o.logger.Printf("[WARN] sync: skipping pull of unreadable backup: %v", err)
		result.BackupExisted = true
		pull := types.NewImportResult()
		pull.Success = false
		pull.Errors = append(pull.Errors, err.Error())
		result.PullResult = pull
	case err != nil:
		return nil, o.fail("sync", err)
	case doc == nil:
		o.logger.Printf("No remote backup, creating one")
	default:
		result.BackupExisted = true
		pull := o.importer.Import(ctx, doc, snapshot.Policy{Merge: true})
		result.PullResult = pull
		result.Pulled = pull.Success
		if pull.Success {
			o.logger.Printf("Pulled %d rows (%d skipped)", pull.TotalImported(), pull.TotalSkipped())
		} else {
			o.logger.Printf("[WARN] sync: pull failed: %s", strings.Join(pull.Errors, "; "))
		}
	}

	local, err := o.exporter.Export(ctx)
	if err != nil {
		return nil, o.fail("sync", err)
	}
	meta, err := a.Upload(ctx, local)
	if err != nil {
		return nil, o.fail("sync", err)
	}
	result.Pushed = true
	result.PushResult = &types.PushResult{ExportedAt: local.ExportedAt, File: meta}

	if result.BackupExisted {
		result.Message = msgSynced
	} else {
		result.Message = msgCreated
	}
	o.logger.Printf("%s (%s)", result.Message, meta.ID)
	return result, nil
}

// Preview summarizes the remote backup without touching the local store.
func (o *Orchestrator) Preview(ctx context.Context) (*types.Preview, error) {
	doc, err := o.download(ctx, "preview")
	if err != nil {
		return nil, err
	}
	return &types.Preview{
		ExportedAt:  doc.ExportedAt,
		Version:     doc.Version,
		TableCounts: doc.TableCounts(),
	}, nil
}

// Import replaces or merges the local store with the remote backup. Replace
// is destructive and must be asked for explicitly with merge=false.
//
// A transaction failure returns the result together with a TX_FAILED error.
func (o *Orchestrator) Import(ctx context.Context, merge bool) (*types.ImportResult, error) {
	doc, err := o.download(ctx, "import")
	if err != nil {
		return nil, err
	}
	return o.RestoreLocal(ctx, doc, merge)
}

func (o *Orchestrator) download(ctx context.Context, op string) (*types.Snapshot, error) {
	a, err := o.adapter(ctx)
	if err != nil {
		return nil, o.fail(op, err)
	}
	doc, err := a.Download(ctx)
	if err != nil {
		return nil, o.fail(op, err)
	}
	if doc == nil {
		return nil, apperrors.ErrNoBackup
	}
	return doc, nil
}

// Disconnect forgets the saved session.
func (o *Orchestrator) Disconnect() error {
	if o.sessions == nil {
		return nil
	}
	return o.sessions.Clear()
}

// ExportLocal snapshots the local store without contacting the remote.
func (o *Orchestrator) ExportLocal(ctx context.Context) (*types.Snapshot, error) {
	return o.exporter.Export(ctx)
}

// RestoreLocal imports doc into the local store.
func (o *Orchestrator) RestoreLocal(ctx context.Context, doc *types.Snapshot, merge bool) (*types.ImportResult, error) {
	if doc == nil {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidRequest, "no snapshot to import")
	}
	p := snapshot.Policy{Merge: merge}
	result := o.importer.Import(ctx, doc, p)
	if !result.Success {
		return result, apperrors.NewSnapshotError(apperrors.CodeTxFailed,
			p.String()+" import rolled back", errors.New(strings.Join(result.Errors, "; ")))
	}
	return result, nil
}
