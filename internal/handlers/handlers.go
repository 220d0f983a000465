package handlers

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"html/template"
	"net/http"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"wallet-web/internal/api"
	"wallet-web/internal/auth"
	"wallet-web/internal/middleware"
	"wallet-web/internal/session"
	"wallet-web/web"
)

const (
	// CSRFCookieName holds the double-submit CSRF token.
	CSRFCookieName = "wallet_csrf"
	// FlashCookieName carries a one-shot notification across a redirect.
	FlashCookieName = "wallet_flash"

	// maxBodySize bounds form bodies, photo uploads included.
	maxBodySize = 5 << 20
)

// Context key type to avoid collisions.
type contextKey string

const csrfContextKey contextKey = "csrf"

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	api          *api.Client
	sessions     *session.Manager
	validate     *validator.Validate
	templates    map[string]*template.Template
	secureCookie bool
}

// NewHandlers creates a new Handlers instance. Templates are parsed once from
// the embedded filesystem.
func NewHandlers(client *api.Client, sessions *session.Manager, secureCookie bool) *Handlers {
	funcs := template.FuncMap{
		"money":    func(d decimal.Decimal) string { return d.StringFixed(2) },
		"date":     func(t time.Time) string { return t.Local().Format("Jan 02, 2006") },
		"initial":  initial,
		"contains": func(list []string, v string) bool { return slices.Contains(list, v) },
	}

	pages := []string{
		"login.html", "signup.html", "dashboard.html", "wallets.html", "topup.html",
		"send_money.html", "transactions.html", "profile.html", "admin.html",
	}
	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		templates[page] = template.Must(template.New("base.html").Funcs(funcs).
			ParseFS(web.Templates, "templates/base.html", "templates/"+page))
	}

	return &Handlers{
		api:          client,
		sessions:     sessions,
		validate:     validator.New(),
		templates:    templates,
		secureCookie: secureCookie,
	}
}

// Flash is a one-shot notification shown at the top of a page.
type Flash struct {
	Kind    string
	Message string
}

// Nav is what the navigation bar shows. It is empty when logged out.
type Nav struct {
	Authenticated bool
	IsAdmin       bool
	FullName      string
	Initial       string
	Photo         string
}

// Page is the data every template receives.
type Page struct {
	Title     string
	Path      string
	CSRFToken string
	Flash     *Flash
	Nav       Nav
}

// page builds the common template data for r, consuming any pending flash.
func (h *Handlers) page(w http.ResponseWriter, r *http.Request, title string) Page {
	p := Page{
		Title:     title,
		Path:      r.URL.Path,
		CSRFToken: csrfToken(r),
		Flash:     h.takeFlash(w, r),
	}
	if s := session.FromContext(r.Context()); s != nil && auth.IsAuthenticated(s) {
		name := s.Get(session.KeyFullName)
		if name == "" {
			name = "User"
		}
		p.Nav = Nav{
			Authenticated: true,
			IsAdmin:       auth.IsAdmin(s),
			FullName:      name,
			Initial:       initial(name),
			Photo:         s.Get(session.KeyProfilePhoto),
		}
	}
	return p
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, viewName string, data any) {
	tmpl, ok := h.templates[viewName]
	if !ok {
		middleware.Logger(r.Context()).Error("unknown template", "view", viewName)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	target := "base.html"
	if r.Header.Get("HX-Request") == "true" {
		target = "content"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, target, data); err != nil {
		middleware.Logger(r.Context()).Error("template execution failed", "view", viewName, "error", err)
	}
}

// currentSession returns the caller's session. The session middleware runs in
// front of every route, so it is never nil in a served request.
func currentSession(r *http.Request) *session.Session {
	return session.FromContext(r.Context())
}

// redirectFlash stores a notification and sends the browser to path.
func (h *Handlers) redirectFlash(w http.ResponseWriter, r *http.Request, path, kind, msg string) {
	h.setFlash(w, kind, msg)
	auth.Redirect(w, r, path)
}

// failed handles an API error from a write. A rejected credential has already
// cleared the session, so the caller goes to the login page; anything else is
// flashed (server message first, then fallback) and the caller goes back.
func (h *Handlers) failed(w http.ResponseWriter, r *http.Request, err error, fallback, back string) {
	if errors.Is(err, api.ErrUnauthorized) {
		auth.Redirect(w, r, auth.LoginPath)
		return
	}
	middleware.Logger(r.Context()).Warn("api call failed", "error", err)
	h.redirectFlash(w, r, back, "error", api.Message(err, fallback))
}

func (h *Handlers) setFlash(w http.ResponseWriter, kind, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(kind + "\n" + msg)),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) takeFlash(w http.ResponseWriter, r *http.Request) *Flash {
	cookie, err := r.Cookie(FlashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	kind, msg, ok := strings.Cut(string(raw), "\n")
	if !ok || (kind != "success" && kind != "error") {
		return nil
	}
	return &Flash{Kind: kind, Message: msg}
}

// CSRF issues the double-submit token cookie and rejects state-changing
// requests whose form field or X-CSRF-Token header does not match it.
func (h *Handlers) CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = h.ensureCSRFToken(w, r)
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		if !validCSRF(r) {
			middleware.Logger(r.Context()).Warn("csrf token mismatch", "path", r.URL.Path)
			http.Error(w, "Invalid CSRF token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) ensureCSRFToken(w http.ResponseWriter, r *http.Request) *http.Request {
	if cookie, err := r.Cookie(CSRFCookieName); err == nil && cookie.Value != "" {
		return r.WithContext(context.WithValue(r.Context(), csrfContextKey, cookie.Value))
	}

	b := make([]byte, 32)
	token := ""
	if _, err := rand.Read(b); err == nil {
		token = base64.RawURLEncoding.EncodeToString(b)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	return r.WithContext(context.WithValue(r.Context(), csrfContextKey, token))
}

func csrfToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfContextKey).(string)
	return token
}

func validCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	formToken := r.FormValue("csrf_token")
	if formToken == "" {
		formToken = r.Header.Get("X-CSRF-Token")
	}
	return formToken != "" && subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) == 1
}

// NotFound sends every unmatched path to the login page.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	auth.Redirect(w, r, auth.LoginPath)
}

func initial(name string) string {
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(name))
	if r == utf8.RuneError {
		return "U"
	}
	return string(unicode.ToUpper(r))
}

// parseAmount reads a strictly positive decimal.
func parseAmount(raw string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}
