package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"wallet-web/internal/storage"
)

const (
	// CookieName is the name of the session cookie.
	CookieName = "wallet_session"
	// DefaultDuration is how long an idle session lasts (30 days).
	DefaultDuration = 30 * 24 * time.Hour
)

// Context key type to avoid collisions.
type contextKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored in ctx, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}

// Manager binds browser cookies to stored sessions.
type Manager struct {
	db           *storage.DB
	ttl          time.Duration
	secureCookie bool
	logger       *slog.Logger
}

// NewManager creates a Manager. A zero ttl selects DefaultDuration.
func NewManager(db *storage.DB, ttl time.Duration, secureCookie bool) *Manager {
	if ttl <= 0 {
		ttl = DefaultDuration
	}
	return &Manager{
		db:           db,
		ttl:          ttl,
		secureCookie: secureCookie,
		logger:       slog.Default().With("component", "session"),
	}
}

// Middleware attaches the caller's session to the request context, starting a
// new one when the cookie is missing, unknown or expired. A new session is
// only stored, and its cookie set, when a handler first writes to it.
// It also implements rolling sessions: past the halfway point of its lifetime
// a session is renewed.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.resume(w, r)
		if errors.Is(err, storage.ErrSessionNotFound) {
			s, err = m.start(w)
		}
		if err != nil {
			m.logger.Error("failed to load session", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

func (m *Manager) resume(w http.ResponseWriter, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, storage.ErrSessionNotFound
	}

	expiresAt, err := m.db.SessionExpiry(cookie.Value)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if expiresAt.Sub(now) < m.ttl/2 {
		// If renewal fails, just continue with the current session
		if err := m.db.RenewSession(cookie.Value, now.Add(m.ttl)); err == nil {
			m.setCookie(w, cookie.Value)
		}
	}

	return load(m.db, cookie.Value)
}

func (m *Manager) start(w http.ResponseWriter) (*Session, error) {
	id, err := generateID()
	if err != nil {
		return nil, err
	}
	s := &Session{ID: id, db: m.db, values: make(map[string]string)}
	s.create = func() error {
		if err := m.db.CreateSession(id, time.Now().Add(m.ttl)); err != nil {
			return err
		}
		m.setCookie(w, id)
		return nil
	}
	return s, nil
}

// Rotate drops the caller's stored session and returns a fresh one under a
// new id. The new cookie replaces the old one on the first write.
func (m *Manager) Rotate(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if old := FromContext(r.Context()); old != nil && old.Stored() {
		if err := m.db.DeleteSession(old.ID); err != nil {
			return nil, err
		}
	}
	return m.start(w)
}

// Destroy deletes the caller's session and expires its cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	var err error
	if cookie, cerr := r.Cookie(CookieName); cerr == nil && cookie.Value != "" {
		err = m.db.DeleteSession(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return err
}

// StartCleanup removes expired sessions every interval until ctx is done.
func (m *Manager) StartCleanup(ctx context.Context, every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := m.db.CleanExpiredSessions()
				if err != nil {
					m.logger.Warn("failed to clean expired sessions", "error", err)
					continue
				}
				if n > 0 {
					m.logger.Debug("cleaned expired sessions", "count", n)
				}
			}
		}
	}()
}

func (m *Manager) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func generateID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
