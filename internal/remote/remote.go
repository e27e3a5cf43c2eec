// Package remote stores the single snapshot backup object in an
// account-private hidden area: the Google Drive appDataFolder, a hidden S3
// prefix, or a local directory.
package remote

import (
	"context"
	"errors"

	apperrors "github.com/interntrack/interntrack/internal/errors"
	"github.com/interntrack/interntrack/internal/session"
	"github.com/interntrack/interntrack/pkg/types"
)

// DefaultObjectName is the well-known name of the backup object.
const DefaultObjectName = "intern-tracker-backup.json"

// Properties are stored alongside the object payload.
type Properties struct {
	ContentType string
	Checksum    string
}

// Backend is an authenticated, account-scoped object area.
//
// Backends translate vendor failures: rejected credentials become
// AUTH-category errors, everything else REMOTE/TRANSPORT_FAILED.
type Backend interface {
	// List returns the non-trashed objects called name, newest first.
	List(ctx context.Context, name string) ([]types.ObjectMeta, error)

	// Create stores a new object called name.
	Create(ctx context.Context, name string, body []byte, props Properties) (*types.ObjectMeta, error)

	// Update replaces the content of object id, keeping its identity.
	Update(ctx context.Context, id string, body []byte, props Properties) (*types.ObjectMeta, error)

	// Read returns the content of object id.
	Read(ctx context.Context, id string) ([]byte, error)

	// Account identifies the account the backend is bound to.
	Account(ctx context.Context) (*types.Account, error)
}

// Provider opens backends for one kind of remote.
type Provider interface {
	// Name is the provider type, e.g. "drive".
	Name() string

	// Configured reports whether the provider has what it needs to connect.
	Configured() bool

	// NeedsSession reports whether Open requires a saved session.
	NeedsSession() bool

	// Open returns a backend bound to the account behind sess. sess is nil
	// for providers that do not need one.
	Open(ctx context.Context, sess *session.Session) (Backend, error)
}

// transportError wraps a non-auth vendor failure.
func transportError(op string, err error) error {
	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		return err
	}
	return apperrors.NewRemoteError(apperrors.CodeTransportFailed, op, err)
}

// authError wraps a rejected-credentials failure.
func authError(op string, err error) error {
	return apperrors.NewAuthError(apperrors.CodeSessionExpired, op, err)
}
