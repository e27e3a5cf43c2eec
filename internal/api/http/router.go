package http

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter wires the sync and backup endpoints. auth may be nil for
// remotes without a login flow. Extra middleware runs outside the default
// chain, e.g. in-flight request tracking for graceful shutdown.
func NewRouter(s Syncer, auth Authenticator, logger *log.Logger, extra ...mux.MiddlewareFunc) *mux.Router {
	router := mux.NewRouter()
	router.Use(extra...)
	router.Use(RecoveryMiddleware, RequestIDMiddleware, ContentTypeMiddleware)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	// Routes sit on the root router so a wrong method answers 405.
	sh := NewSyncHandler(s, auth, logger)
	router.HandleFunc("/api/sync/status", sh.Status).Methods(http.MethodGet)
	router.HandleFunc("/api/sync/export", sh.Export).Methods(http.MethodPost)
	router.HandleFunc("/api/sync/preview", sh.Preview).Methods(http.MethodGet)
	router.HandleFunc("/api/sync/import", sh.Import).Methods(http.MethodPost)
	router.HandleFunc("/api/sync/sync", sh.Sync).Methods(http.MethodPost)
	router.HandleFunc("/api/sync/auth/url", sh.AuthURL).Methods(http.MethodGet)
	router.HandleFunc("/api/sync/auth/callback", sh.AuthCallback).Methods(http.MethodGet)
	router.HandleFunc("/api/sync/disconnect", sh.Disconnect).Methods(http.MethodPost)

	bh := NewBackupHandler(s)
	router.HandleFunc("/api/backup/download", bh.Download).Methods(http.MethodGet)
	router.HandleFunc("/api/backup/restore", bh.Restore).Methods(http.MethodPost)

	return router
}
