package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wallet-web/internal/models"
	"wallet-web/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndSaveUser(t *testing.T) {
	db := newDB(t)
	s, err := Open(db, "tab", time.Hour)
	require.NoError(t, err)

	require.NoError(t, s.Save(Credentials{Access: "acc", Refresh: "ref"}))
	require.NoError(t, s.SaveUser(models.User{
		FullName: "Jane Doe",
		Email:    "user@example.com",
		IsStaff:  false,
	}))

	assert.Equal(t, "acc", s.Get(KeyAccessToken))
	assert.Equal(t, "ref", s.Get(KeyRefreshToken))
	assert.Equal(t, "Jane Doe", s.Get(KeyFullName))
	assert.Equal(t, "user@example.com", s.Get(KeyEmail))
	assert.Equal(t, "false", s.Get(KeyIsStaff))
	assert.Equal(t, "false", s.Get(KeyIsSuperuser))
	assert.Empty(t, s.Get(KeyProfilePhoto))
}

func TestSaveUserRoleFlagsAreStrings(t *testing.T) {
	s, err := Open(newDB(t), "tab", time.Hour)
	require.NoError(t, err)

	require.NoError(t, s.SaveUser(models.User{IsStaff: true, IsSuperuser: true, ProfilePhotoURL: "http://x/p.png"}))

	assert.Equal(t, "true", s.Get(KeyIsStaff))
	assert.Equal(t, "true", s.Get(KeyIsSuperuser))
	assert.Equal(t, "http://x/p.png", s.Get(KeyProfilePhoto))
}

func TestWritesPersistAcrossReload(t *testing.T) {
	db := newDB(t)
	s, err := Open(db, "tab", time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Save(Credentials{Access: "acc", Refresh: "ref"}))
	require.NoError(t, s.Set(KeyFullName, "New Name"))

	reloaded, err := Open(db, "tab", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "acc", reloaded.Get(KeyAccessToken))
	assert.Equal(t, "New Name", reloaded.Get(KeyFullName))
}

func TestClearRemovesEverything(t *testing.T) {
	db := newDB(t)
	s, err := Open(db, "tab", time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Save(Credentials{Access: "acc", Refresh: "ref"}))
	require.NoError(t, s.SaveUser(models.User{FullName: "Jane", IsStaff: true}))

	require.NoError(t, s.Clear())

	assert.Empty(t, s.Values())
	reloaded, err := Open(db, "tab", time.Hour)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Values())
}

func TestMiddlewareStartsAndResumesSession(t *testing.T) {
	db := newDB(t)
	m := NewManager(db, time.Hour, false)

	var seen *Session
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		require.NotNil(t, seen)
		if r.URL.Path == "/write" {
			require.NoError(t, seen.Set(KeyEmail, "user@example.com"))
		}
	}))

	// First request: no cookie, a new session is issued
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/write", http.NoBody))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	firstID := seen.ID

	// Second request: the cookie resumes the same session with its values
	req := httptest.NewRequest(http.MethodGet, "/read", http.NoBody)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, firstID, seen.ID)
	assert.Equal(t, "user@example.com", seen.Get(KeyEmail))
	assert.Empty(t, w.Result().Cookies(), "fresh session should not be renewed")
}

func TestMiddlewareReplacesUnknownCookie(t *testing.T) {
	m := NewManager(newDB(t), time.Hour, false)

	var seen *Session
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "forged"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.NotNil(t, seen)
	assert.NotEqual(t, "forged", seen.ID)
	assert.False(t, seen.Stored())
	assert.Empty(t, w.Result().Cookies())
}

func TestMiddlewareStoresSessionOnFirstWrite(t *testing.T) {
	db := newDB(t)
	m := NewManager(db, time.Hour, false)

	var seen *Session
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		require.NoError(t, seen.Clear())
		if r.URL.Path == "/write" {
			require.NoError(t, seen.Set(KeyEmail, "user@example.com"))
		}
	}))

	for range 20 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/style.css", http.NoBody))
		assert.Empty(t, w.Result().Cookies())
	}
	count, err := db.SessionCount()
	require.NoError(t, err)
	assert.Zero(t, count)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/write", http.NoBody))
	assert.True(t, seen.Stored())
	require.Len(t, w.Result().Cookies(), 1)
	assert.Equal(t, seen.ID, w.Result().Cookies()[0].Value)

	count, err = db.SessionCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRotate(t *testing.T) {
	db := newDB(t)
	m := NewManager(db, time.Hour, false)
	require.NoError(t, db.CreateSession("planted", time.Now().Add(time.Hour)))
	require.NoError(t, db.SetSessionValues("planted", map[string]string{KeyEmail: "old@example.com"}))

	var fresh *Session
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		fresh, err = m.Rotate(w, r)
		require.NoError(t, err)
		require.NoError(t, fresh.Save(Credentials{Access: "acc", Refresh: "ref"}))
	}))

	req := httptest.NewRequest(http.MethodPost, "/login", http.NoBody)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "planted"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.NotEqual(t, "planted", fresh.ID)
	assert.Empty(t, fresh.Get(KeyEmail))
	require.Len(t, w.Result().Cookies(), 1)
	assert.Equal(t, fresh.ID, w.Result().Cookies()[0].Value)

	_, err := db.SessionExpiry("planted")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
	values, err := db.SessionValues(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, "acc", values[KeyAccessToken])
}

func TestMiddlewareRenewsPastHalfLife(t *testing.T) {
	db := newDB(t)
	m := NewManager(db, time.Hour, false)
	require.NoError(t, db.CreateSession("old", time.Now().Add(10*time.Minute)))

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "old"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Len(t, w.Result().Cookies(), 1)
	assert.Equal(t, "old", w.Result().Cookies()[0].Value)

	expiresAt, err := db.SessionExpiry("old")
	require.NoError(t, err)
	assert.Greater(t, time.Until(expiresAt), 50*time.Minute)
}

func TestDestroy(t *testing.T) {
	db := newDB(t)
	m := NewManager(db, time.Hour, false)
	require.NoError(t, db.CreateSession("abc", time.Now().Add(time.Hour)))

	req := httptest.NewRequest(http.MethodPost, "/logout", http.NoBody)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "abc"})
	w := httptest.NewRecorder()
	require.NoError(t, m.Destroy(w, req))

	_, err := db.SessionExpiry("abc")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
	require.Len(t, w.Result().Cookies(), 1)
	assert.Equal(t, -1, w.Result().Cookies()[0].MaxAge)
}
