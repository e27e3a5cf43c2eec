// Package app wires the interntrack components together: logging, the
// tracker store, the remote provider, the sync orchestrator and the HTTP
// server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"

	httpapi "github.com/interntrack/interntrack/internal/api/http"
	"github.com/interntrack/interntrack/internal/config"
	apperrors "github.com/interntrack/interntrack/internal/errors"
	"github.com/interntrack/interntrack/internal/remote"
	"github.com/interntrack/interntrack/internal/server"
	"github.com/interntrack/interntrack/internal/session"
	"github.com/interntrack/interntrack/internal/store"
	"github.com/interntrack/interntrack/internal/syncer"
	"gopkg.in/natefinch/lumberjack.v2"
)

// App owns the process-wide resources.
type App struct {
	cfg *config.Config

	logOut io.Writer
	logs   io.Closer

	store        *store.DB
	sessions     session.Store
	provider     remote.Provider
	flow         *session.Flow
	orchestrator *syncer.Orchestrator
	shutdown     *server.ShutdownManager

	mu      sync.Mutex
	running bool
}

// New resolves and validates cfg, then opens every resource the engine
// needs. Close releases them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	a := &App{cfg: cfg}
	a.setupLogging()

	db, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.store = db
	log.Printf("Store opened: %s", cfg.DBPath)

	if err := a.initRemote(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize remote: %w", err)
	}

	a.orchestrator = syncer.New(a.store, a.provider, a.sessions, syncer.Options{
		ObjectName: cfg.Remote.ObjectName,
		Timeout:    cfg.Remote.Timeout,
		Compress:   cfg.Remote.Compress,
		Logger:     a.logger("[sync] "),
	})

	a.shutdown = server.NewShutdownManager(server.Config{
		Timeout: cfg.HTTP.ShutdownTimeout,
		Logger:  a.logger("[server] "),
	})
	return a, nil
}

// setupLogging sends log output to stderr and, if configured, to a
// rotating log file.
func (a *App) setupLogging() {
	a.logOut = os.Stderr
	if a.cfg.Log.File != "" {
		lj := &lumberjack.Logger{
			Filename:   a.cfg.Log.File,
			MaxSize:    a.cfg.Log.MaxSizeMB,
			MaxBackups: a.cfg.Log.MaxBackups,
			MaxAge:     a.cfg.Log.MaxAgeDays,
			Compress:   a.cfg.Log.Compress,
		}
		a.logs = lj
		a.logOut = io.MultiWriter(os.Stderr, lj)
	}
	log.SetOutput(a.logOut)
}

func (a *App) logger(prefix string) *log.Logger {
	return log.New(a.logOut, prefix, log.LstdFlags)
}

// initRemote builds the provider for the configured remote type. A Drive
// remote without client credentials is left unconfigured rather than
// failing startup.
func (a *App) initRemote() error {
	rc := a.cfg.Remote

	switch rc.Type {
	case config.RemoteDrive:
		sessions := session.NewFileStore(a.cfg.Session.Path, remote.DriveScopes, a.logger("[session] "))
		a.sessions = sessions
		p := &remote.DriveProvider{Sessions: sessions, Logger: a.logger("[remote] ")}

		oauthCfg, err := session.LoadConfig(rc.Drive.CredentialsFile, rc.Drive.ClientID, rc.Drive.ClientSecret, rc.Drive.RedirectURL, remote.DriveScopes)
		switch {
		case errors.Is(err, apperrors.ErrNotConfigured):
			log.Printf("[WARN] Drive remote has no OAuth client credentials; sync is disabled")
		case err != nil:
			return err
		default:
			p.OAuth = oauthCfg
			a.flow = session.NewFlow(oauthCfg, sessions)
		}
		a.provider = p

	case config.RemoteS3:
		s3cfg := remote.DefaultS3Config()
		s3cfg.Bucket = rc.S3.Bucket
		s3cfg.Endpoint = rc.S3.Endpoint
		s3cfg.UsePathStyle = rc.S3.UsePathStyle
		if rc.S3.Region != "" {
			s3cfg.Region = rc.S3.Region
		}
		if rc.S3.Prefix != "" {
			s3cfg.Prefix = rc.S3.Prefix
		}
		a.provider = &remote.S3Provider{Config: s3cfg}

	case config.RemoteLocal:
		a.provider = &remote.LocalProvider{Dir: rc.Local.Path}

	case config.RemoteNone:
		log.Printf("No remote configured; only local backup endpoints are usable")
		return nil
	}

	log.Printf("Remote initialized: type=%s configured=%v", rc.Type, a.provider.Configured())
	return nil
}

// Orchestrator returns the sync orchestrator.
func (a *App) Orchestrator() *syncer.Orchestrator {
	return a.orchestrator
}

// Handler returns the HTTP handler for the API.
func (a *App) Handler() http.Handler {
	var auth httpapi.Authenticator
	if a.flow != nil {
		auth = a.flow
	}
	return httpapi.NewRouter(a.orchestrator, auth, a.logger("[http] "), a.shutdown.Middleware)
}

// Serve runs the HTTP server until ctx is cancelled or a signal arrives,
// then shuts down gracefully.
func (a *App) Serve(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	srv := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.shutdown.RegisterCloser(server.CloserFunc(a.closeStore))

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.shutdown.Serve(srv)
	}()

	sigErr := make(chan error, 1)
	go func() {
		sigErr <- a.shutdown.ListenForSignals(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			a.shutdown.Shutdown(context.Background(), "server error")
			return fmt.Errorf("http server: %w", err)
		}
		return <-sigErr
	case err := <-sigErr:
		if serveErr := <-errCh; serveErr != nil {
			return serveErr
		}
		return err
	}
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// Close releases the store and the log file.
func (a *App) Close() error {
	err := a.closeStore()
	if a.logs != nil {
		log.SetOutput(os.Stderr)
		if cerr := a.logs.Close(); cerr != nil && err == nil {
			err = cerr
		}
		a.logs = nil
	}
	return err
}
