// Package session persists the remote-backup login between runs.
//
// A session is an OAuth token plus the scopes it was granted. Stores only
// hand back sessions that carry every required scope; anything else reads
// as "no session" so the user is asked to connect again.
package session

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"golang.org/x/oauth2"
)

// Session is a saved remote login.
type Session struct {
	Token     *oauth2.Token `json:"token"`
	Scopes    []string      `json:"scopes"`
	CreatedAt time.Time     `json:"createdAt"`
}

// HasScopes reports whether the session was granted every scope in required.
func (s *Session) HasScopes(required []string) bool {
	if s == nil {
		return false
	}
	granted := make(map[string]bool, len(s.Scopes))
	for _, sc := range s.Scopes {
		granted[sc] = true
	}
	for _, sc := range required {
		if !granted[sc] {
			return false
		}
	}
	return true
}

// Store loads, saves and clears the current session.
type Store interface {
	// Load returns the saved session, or nil if there is none or it is
	// unusable.
	Load() (*Session, error)
	Save(s *Session) error
	Clear() error
}

// FileStore keeps the session in a JSON file written atomically.
type FileStore struct {
	path     string
	required []string
	logger   *log.Logger
	mu       sync.Mutex
}

// NewFileStore creates a FileStore at path. Sessions missing any of the
// required scopes are treated as absent.
func NewFileStore(path string, required []string, logger *log.Logger) *FileStore {
	if logger == nil {
		logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	return &FileStore{path: path, required: required, logger: logger}
}

// Path returns the session file path.
func (f *FileStore) Path() string {
	return f.path
}

// Load implements Store.
func (f *FileStore) Load() (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		f.logger.Printf("[WARN] ignoring unreadable session file %s: %v", f.path, err)
		return nil, nil
	}
	if s.Token == nil || (s.Token.AccessToken == "" && s.Token.RefreshToken == "") {
		return nil, nil
	}
	if !s.HasScopes(f.required) {
		f.logger.Printf("[WARN] ignoring session without required scopes")
		return nil, nil
	}
	return &s, nil
}

// Save implements Store.
func (f *FileStore) Save(s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return err
	}
	if err := atomic.WriteFile(f.path, bytes.NewReader(data)); err != nil {
		return err
	}
	return os.Chmod(f.path, 0600)
}

// Clear implements Store.
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// MemoryStore keeps the session in memory.
type MemoryStore struct {
	mu       sync.Mutex
	session  *Session
	required []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(required []string) *MemoryStore {
	return &MemoryStore{required: required}
}

// Load implements Store.
func (m *MemoryStore) Load() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || !m.session.HasScopes(m.required) {
		return nil, nil
	}
	cp := *m.session
	return &cp, nil
}

// Save implements Store.
func (m *MemoryStore) Save(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.session = &cp
	return nil
}

// Clear implements Store.
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}
