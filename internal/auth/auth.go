// Package auth keeps the device session for the MorningTrio CLI.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/99designs/keyring"
	"github.com/google/uuid"
)

const (
	serviceName = "morningtrio"
	sessionKey  = "session"
)

// ErrNoSession is returned when no device session is stored.
var ErrNoSession = errors.New("not logged in")

// Session is the stored credential for one login on this device.
type Session struct {
	ID        string `json:"id"`
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	CreatedAt int64  `json:"created_at"`
}

// Manager handles the device session.
type Manager struct {
	ring    keyring.Keyring
	session *Session
	mu      sync.RWMutex
}

// OpenKeyring opens the OS keyring, falling back to an encrypted file
// store under dir.
func OpenKeyring(dir string) (keyring.Keyring, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".config", serviceName, "credentials")
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt(serviceName + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// NewManager creates a manager over ring and loads any stored session.
func NewManager(ring keyring.Keyring) (*Manager, error) {
	m := &Manager{ring: ring}
	if err := m.load(); err != nil && !errors.Is(err, ErrNoSession) {
		return nil, err
	}
	return m, nil
}

// IsAuthenticated reports whether a session is stored.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil
}

// Current returns a copy of the stored session, or nil.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// Token returns the bearer token, or "" when logged out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.Token
}

// UserID returns the logged-in user id, or "" when logged out.
func (m *Manager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.UserID
}

// Login stores a fresh session for userID. Each login gets a new session
// id even for the same user.
func (m *Manager) Login(token, userID string) (*Session, error) {
	if token == "" || userID == "" {
		return nil, errors.New("token and user id are required")
	}
	s := &Session{
		ID:        uuid.NewString(),
		Token:     token,
		UserID:    userID,
		CreatedAt: time.Now().Unix(),
	}

	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	if err := m.ring.Set(keyring.Item{
		Key:         sessionKey,
		Data:        data,
		Label:       "MorningTrio session",
		Description: "MorningTrio device session",
	}); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	m.mu.Lock()
	m.session = s
	m.mu.Unlock()

	out := *s
	return &out, nil
}

// Logout clears the current session.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()

	if err := m.ring.Remove(sessionKey); err != nil && !isMissing(err) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

func (m *Manager) load() error {
	item, err := m.ring.Get(sessionKey)
	if isMissing(err) {
		return ErrNoSession
	}
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(item.Data, &s); err != nil {
		return fmt.Errorf("failed to parse session: %w", err)
	}
	if s.Token == "" || s.UserID == "" {
		return ErrNoSession
	}

	m.mu.Lock()
	m.session = &s
	m.mu.Unlock()
	return nil
}

// isMissing reports whether err means the key is absent. The file backend
// reports a missing key as a not-exist error.
func isMissing(err error) bool {
	return errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, os.ErrNotExist)
}
