package http

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	apperrors "github.com/interntrack/interntrack/internal/errors"
	"github.com/interntrack/interntrack/internal/snapshot"
)

// maxRestoreBytes caps uploaded snapshot documents.
const maxRestoreBytes = 50 << 20

// BackupHandler serves local snapshot download and restore.
type BackupHandler struct {
	syncer Syncer
}

// NewBackupHandler creates a new backup handler.
func NewBackupHandler(s Syncer) *BackupHandler {
	return &BackupHandler{syncer: s}
}

// Download handles GET /api/backup/download.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	doc, err := h.syncer.ExportLocal(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	body, err := snapshot.Codec{}.Encode(doc)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	name := fmt.Sprintf("intern-tracker-backup-%s.json", doc.ExportedAt.Format("2006-01-02"))
	w.Header().Set("Content-Type", snapshot.ContentTypeJSON)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// Restore handles POST /api/backup/restore?merge=bool. The body is a
// snapshot document, plain or snappy framed. merge defaults to true.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	merge := true
	if v := r.URL.Query().Get("merge"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeAppError(w, r, apperrors.NewValidationError(apperrors.CodeInvalidRequest, "merge must be true or false"))
			return
		}
		merge = b
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRestoreBytes))
	if err != nil {
		writeAppError(w, r, apperrors.NewValidationError(apperrors.CodeInvalidRequest, "read body: "+err.Error()))
		return
	}
	doc, err := snapshot.Decode(data)
	if err != nil {
		writeAppError(w, r, apperrors.NewValidationError(apperrors.CodeInvalidRequest, "body is not a snapshot document"))
		return
	}

	result, err := h.syncer.RestoreLocal(r.Context(), doc, merge)
	writeImportResult(w, r, result, err)
}
