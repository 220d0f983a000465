// Package session holds the client-side session: API credentials and the
// cached profile fields and role flags used for UI gating.
package session

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"wallet-web/internal/models"
	"wallet-web/internal/storage"
)

// Keys under which session values are stored.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyFullName     = "full_name"
	KeyEmail        = "email"
	KeyIsStaff      = "isStaff"
	KeyIsSuperuser  = "isSuperuser"
	KeyProfilePhoto = "profilePhoto"
)

// Credentials are the bearer tokens obtained from login or signup.
type Credentials struct {
	Access  string
	Refresh string
}

// Session is one client's session. Every write is persisted before it returns,
// so a reload sees the same state. A session handed to an anonymous visitor
// has no stored row until its first write.
type Session struct {
	ID string

	db     *storage.DB
	mu     sync.RWMutex
	values map[string]string
	// create stores the row and issues the cookie; nil once stored.
	create func() error
}

// Open loads the named session, creating it with the given lifetime if it
// does not exist or has expired.
func Open(db *storage.DB, id string, ttl time.Duration) (*Session, error) {
	if err := db.EnsureSession(id, time.Now().Add(ttl)); err != nil {
		return nil, fmt.Errorf("ensuring session: %w", err)
	}
	return load(db, id)
}

func load(db *storage.DB, id string) (*Session, error) {
	values, err := db.SessionValues(id)
	if err != nil {
		return nil, fmt.Errorf("loading session values: %w", err)
	}
	return &Session{ID: id, db: db, values: values}, nil
}

// Get returns the value stored under key, or "" when unset.
func (s *Session) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Values returns a copy of every stored pair.
func (s *Session) Values() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Save stores the access and refresh credentials.
func (s *Session) Save(c Credentials) error {
	return s.set(map[string]string{
		KeyAccessToken:  c.Access,
		KeyRefreshToken: c.Refresh,
	})
}

// SaveUser caches the display fields and role flags of u. Role flags are
// stored as the strings "true" and "false".
func (s *Session) SaveUser(u models.User) error {
	values := map[string]string{
		KeyFullName:    u.FullName,
		KeyEmail:       u.Email,
		KeyIsStaff:     boolString(u.IsStaff),
		KeyIsSuperuser: boolString(u.IsSuperuser),
	}
	if u.ProfilePhotoURL != "" {
		values[KeyProfilePhoto] = u.ProfilePhotoURL
	}
	return s.set(values)
}

// Set stores a single value.
func (s *Session) Set(key, value string) error {
	return s.set(map[string]string{key: value})
}

// Stored reports whether the session has a row in the database.
func (s *Session) Stored() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.create == nil
}

// Clear removes every stored value.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.create != nil {
		s.values = make(map[string]string)
		return nil
	}
	if err := s.db.ClearSessionValues(s.ID); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	s.values = make(map[string]string)
	return nil
}

func (s *Session) set(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.create != nil {
		if err := s.create(); err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		s.create = nil
	}
	if err := s.db.SetSessionValues(s.ID, values); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	maps.Copy(s.values, values)
	return nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
