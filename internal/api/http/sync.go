package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"

	apperrors "github.com/interntrack/interntrack/internal/errors"
	"github.com/interntrack/interntrack/internal/session"
	"github.com/interntrack/interntrack/pkg/types"
)

// Syncer is the engine behind the sync and backup endpoints.
type Syncer interface {
	Status(ctx context.Context) *types.Status
	RunExport(ctx context.Context) (*types.ExportResult, error)
	RunSync(ctx context.Context) (*types.SyncResult, error)
	Preview(ctx context.Context) (*types.Preview, error)
	Import(ctx context.Context, merge bool) (*types.ImportResult, error)
	Disconnect() error
	ExportLocal(ctx context.Context) (*types.Snapshot, error)
	RestoreLocal(ctx context.Context, doc *types.Snapshot, merge bool) (*types.ImportResult, error)
}

// Authenticator runs the OAuth consent flow. It is nil for remotes that
// do not log in.
type Authenticator interface {
	AuthURL() string
	Exchange(ctx context.Context, code, state string) (*session.Session, error)
}

// ImportRequest is the body of POST /api/sync/import. Merge defaults to
// true; replacing local data must be asked for explicitly.
type ImportRequest struct {
	Merge *bool `json:"merge"`
}

// ImportFailure is returned when an import transaction rolls back.
type ImportFailure struct {
	ErrorResponse
	Result *types.ImportResult `json:"result"`
}

// AuthURLResponse carries the consent URL.
type AuthURLResponse struct {
	URL string `json:"url"`
}

// SyncHandler serves /api/sync.
type SyncHandler struct {
	syncer Syncer
	auth   Authenticator
	logger *log.Logger
}

// NewSyncHandler creates a new sync handler. auth may be nil.
func NewSyncHandler(s Syncer, auth Authenticator, logger *log.Logger) *SyncHandler {
	if logger == nil {
		logger = log.New(os.Stderr, "[http] ", log.LstdFlags)
	}
	return &SyncHandler{syncer: s, auth: auth, logger: logger}
}

// Status handles GET /api/sync/status.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.syncer.Status(r.Context()))
}

// Export handles POST /api/sync/export.
func (h *SyncHandler) Export(w http.ResponseWriter, r *http.Request) {
	result, err := h.syncer.RunExport(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Preview handles GET /api/sync/preview.
func (h *SyncHandler) Preview(w http.ResponseWriter, r *http.Request) {
	preview, err := h.syncer.Preview(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// Import handles POST /api/sync/import.
func (h *SyncHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeAppError(w, r, apperrors.NewValidationError(apperrors.CodeInvalidRequest, "invalid request body: "+err.Error()))
		return
	}
	merge := req.Merge == nil || *req.Merge

	result, err := h.syncer.Import(r.Context(), merge)
	writeImportResult(w, r, result, err)
}

// Sync handles POST /api/sync/sync.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.syncer.RunSync(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// AuthURL handles GET /api/sync/auth/url.
func (h *SyncHandler) AuthURL(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		writeAppError(w, r, apperrors.ErrNotConfigured)
		return
	}
	writeJSON(w, http.StatusOK, AuthURLResponse{URL: h.auth.AuthURL()})
}

// AuthCallback handles GET /api/sync/auth/callback, the OAuth redirect
// target.
func (h *SyncHandler) AuthCallback(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		writeAppError(w, r, apperrors.ErrNotConfigured)
		return
	}
	q := r.URL.Query()
	if msg := q.Get("error"); msg != "" {
		writeAppError(w, r, apperrors.NewValidationError(apperrors.CodeInvalidRequest, "authorization denied: "+msg))
		return
	}

	if _, err := h.auth.Exchange(r.Context(), q.Get("code"), q.Get("state")); err != nil {
		writeAppError(w, r, err)
		return
	}
	h.logger.Printf("Connected remote backup account")
	writeJSON(w, http.StatusOK, h.syncer.Status(r.Context()))
}

// Disconnect handles POST /api/sync/disconnect.
func (h *SyncHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.syncer.Disconnect(); err != nil {
		writeAppError(w, r, apperrors.NewInternalError("clear session", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"disconnected": true})
}

// writeImportResult writes an import outcome. A rolled back import still
// reports its per-table counts.
func writeImportResult(w http.ResponseWriter, r *http.Request, result *types.ImportResult, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, result)
		return
	}
	if result == nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, statusFor(err), ImportFailure{
		ErrorResponse: ErrorResponse{
			Error:     err.Error(),
			Code:      apperrors.GetCode(err),
			RequestID: GetRequestID(r.Context()),
		},
		Result: result,
	})
}
