package session

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/interntrack/interntrack/internal/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// stateTTL bounds how long a consent URL stays redeemable.
const stateTTL = 10 * time.Minute

// LoadConfig builds the OAuth client configuration from a Google client
// secrets file or, failing that, an explicit client id and secret. It
// returns ErrNotConfigured when neither is available.
func LoadConfig(credentialsFile, clientID, clientSecret, redirectURL string, scopes []string) (*oauth2.Config, error) {
	var cfg *oauth2.Config

	switch {
	case credentialsFile != "":
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, apperrors.ErrNotConfigured
			}
			return nil, apperrors.NewConfigError(apperrors.CodeInvalidConfig, "read OAuth credentials: "+err.Error())
		}
		cfg, err = google.ConfigFromJSON(data, scopes...)
		if err != nil {
			return nil, apperrors.NewConfigError(apperrors.CodeInvalidConfig, "parse OAuth credentials: "+err.Error())
		}
	case clientID != "" && clientSecret != "":
		cfg = &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       scopes,
		}
	default:
		return nil, apperrors.ErrNotConfigured
	}

	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	return cfg, nil
}

// Flow runs the authorization-code consent flow and saves the resulting
// session.
type Flow struct {
	config *oauth2.Config
	store  Store
	now    func() time.Time

	mu     sync.Mutex
	states map[string]time.Time
}

// NewFlow creates a Flow that saves sessions to store.
func NewFlow(cfg *oauth2.Config, store Store) *Flow {
	return &Flow{
		config: cfg,
		store:  store,
		now:    time.Now,
		states: make(map[string]time.Time),
	}
}

// AuthURL returns a consent URL carrying a fresh single-use state token.
func (f *Flow) AuthURL() string {
	state := uuid.NewString()

	f.mu.Lock()
	now := f.now()
	for s, issued := range f.states {
		if now.Sub(issued) > stateTTL {
			delete(f.states, s)
		}
	}
	f.states[state] = now
	f.mu.Unlock()

	return f.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange redeems an authorization code and saves the session.
func (f *Flow) Exchange(ctx context.Context, code, state string) (*Session, error) {
	if !f.consumeState(state) {
		return nil, apperrors.NewAuthError(apperrors.CodeInvalidState, "unknown or expired OAuth state", nil)
	}
	if code == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidRequest, "missing authorization code")
	}

	tok, err := f.config.Exchange(ctx, code)
	if err != nil {
		return nil, apperrors.NewAuthError(apperrors.CodeNotConnected, "exchange authorization code", err)
	}

	sess := &Session{
		Token:     tok,
		Scopes:    grantedScopes(tok, f.config.Scopes),
		CreatedAt: f.now().UTC(),
	}
	if err := f.store.Save(sess); err != nil {
		return nil, apperrors.NewInternalError("save session", err)
	}
	return sess, nil
}

func (f *Flow) consumeState(state string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	issued, ok := f.states[state]
	if !ok {
		return false
	}
	delete(f.states, state)
	return f.now().Sub(issued) <= stateTTL
}

// grantedScopes reads the scope list the token endpoint returned, falling
// back to the requested scopes when the endpoint omits it.
func grantedScopes(tok *oauth2.Token, requested []string) []string {
	if raw, ok := tok.Extra("scope").(string); ok && raw != "" {
		return strings.Fields(raw)
	}
	return append([]string(nil), requested...)
}

// TokenSource returns a token source for sess that writes refreshed tokens
// back to store.
func TokenSource(ctx context.Context, cfg *oauth2.Config, store Store, sess *Session, logger *log.Logger) oauth2.TokenSource {
	if logger == nil {
		logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	return &persistingSource{
		base:   cfg.TokenSource(ctx, sess.Token),
		store:  store,
		sess:   *sess,
		last:   sess.Token.AccessToken,
		logger: logger,
	}
}

type persistingSource struct {
	base   oauth2.TokenSource
	store  Store
	logger *log.Logger

	mu   sync.Mutex
	sess Session
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		p.sess.Token = tok
		if err := p.store.Save(&p.sess); err != nil {
			p.logger.Printf("[WARN] failed to persist refreshed token: %v", err)
		}
	}
	return tok, nil
}
