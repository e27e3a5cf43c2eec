package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/interntrack/interntrack/internal/session"
	"github.com/interntrack/interntrack/pkg/types"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// appDataFolder is Drive's per-application hidden folder.
const appDataFolder = "appDataFolder"

// DriveScopes are the OAuth scopes the Drive backend needs.
var DriveScopes = []string{drive.DriveAppdataScope}

const driveFileFields = "id, name, modifiedTime, size, appProperties"

// DriveBackend implements Backend on the Google Drive appDataFolder.
type DriveBackend struct {
	srv *drive.Service
}

// NewDriveBackend creates a backend from client options, typically
// option.WithTokenSource.
func NewDriveBackend(ctx context.Context, opts ...option.ClientOption) (*DriveBackend, error) {
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, transportError("create drive service", err)
	}
	return &DriveBackend{srv: srv}, nil
}

// List implements Backend.
func (d *DriveBackend) List(ctx context.Context, name string) ([]types.ObjectMeta, error) {
	q := fmt.Sprintf("name = '%s' and trashed = false", escapeQuery(name))
	resp, err := d.srv.Files.List().
		Spaces(appDataFolder).
		Q(q).
		Fields(googleapi.Field("files(" + driveFileFields + ")")).
		OrderBy("modifiedTime desc").
		Context(ctx).
		Do()
	if err != nil {
		return nil, driveError("list "+name, err)
	}

	out := make([]types.ObjectMeta, 0, len(resp.Files))
	for _, f := range resp.Files {
		out = append(out, driveMeta(f))
	}
	return out, nil
}

// Create implements Backend.
func (d *DriveBackend) Create(ctx context.Context, name string, body []byte, props Properties) (*types.ObjectMeta, error) {
	file := &drive.File{
		Name:          name,
		Parents:       []string{appDataFolder},
		MimeType:      props.ContentType,
		AppProperties: map[string]string{checksumKey: props.Checksum},
	}
	f, err := d.srv.Files.Create(file).
		Media(bytes.NewReader(body), googleapi.ContentType(props.ContentType)).
		Fields(googleapi.Field(driveFileFields)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, driveError("create "+name, err)
	}
	meta := driveMeta(f)
	return &meta, nil
}

// Update implements Backend.
func (d *DriveBackend) Update(ctx context.Context, id string, body []byte, props Properties) (*types.ObjectMeta, error) {
	file := &drive.File{
		AppProperties: map[string]string{checksumKey: props.Checksum},
	}
	f, err := d.srv.Files.Update(id, file).
		Media(bytes.NewReader(body), googleapi.ContentType(props.ContentType)).
		Fields(googleapi.Field(driveFileFields)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, driveError("update "+id, err)
	}
	meta := driveMeta(f)
	return &meta, nil
}

// Read implements Backend.
func (d *DriveBackend) Read(ctx context.Context, id string) ([]byte, error) {
	resp, err := d.srv.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, driveError("download "+id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError("download "+id, err)
	}
	return data, nil
}

// Account implements Backend.
func (d *DriveBackend) Account(ctx context.Context) (*types.Account, error) {
	about, err := d.srv.About.Get().
		Fields("user(displayName, emailAddress)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, driveError("about", err)
	}
	if about.User == nil {
		return &types.Account{}, nil
	}
	return &types.Account{
		DisplayName: about.User.DisplayName,
		Email:       about.User.EmailAddress,
	}, nil
}

func driveMeta(f *drive.File) types.ObjectMeta {
	meta := types.ObjectMeta{
		ID:   f.Id,
		Name: f.Name,
		Size: f.Size,
	}
	if ts, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		meta.ModifiedTime = ts.UTC()
	}
	if f.AppProperties != nil {
		meta.Checksum = f.AppProperties[checksumKey]
	}
	return meta
}

// escapeQuery escapes a literal for a Drive query string.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// driveError classifies rejected or unrefreshable tokens as auth failures.
func driveError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized {
		return authError(op, err)
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return authError(op, err)
	}
	return transportError(op, err)
}

// DriveProvider opens DriveBackends from a saved OAuth session.
type DriveProvider struct {
	// OAuth is nil when no client credentials are configured.
	OAuth *oauth2.Config

	// Sessions receives refreshed tokens.
	Sessions session.Store

	// Options are extra client options, e.g. a custom endpoint.
	Options []option.ClientOption

	Logger *log.Logger
}

// Name implements Provider.
func (p *DriveProvider) Name() string { return "drive" }

// Configured implements Provider.
func (p *DriveProvider) Configured() bool { return p.OAuth != nil }

// NeedsSession implements Provider.
func (p *DriveProvider) NeedsSession() bool { return true }

// Open implements Provider.
func (p *DriveProvider) Open(ctx context.Context, sess *session.Session) (Backend, error) {
	if sess == nil || sess.Token == nil {
		return nil, authError("open drive", errors.New("no session"))
	}
	// Token refreshes are not bound to the request context.
	ts := session.TokenSource(context.Background(), p.OAuth, p.Sessions, sess, p.Logger)
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, p.Options...)
	return NewDriveBackend(ctx, opts...)
}
