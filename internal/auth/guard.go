package auth

import (
	"log/slog"
	"net/http"

	"wallet-web/internal/session"
)

// Paths guards redirect to.
const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

// Outcome is the decision of a guard.
type Outcome int

const (
	// Render lets the guarded page through.
	Render Outcome = iota
	// RedirectLogin sends the caller to the login page.
	RedirectLogin
	// RedirectDashboard sends an authenticated non-admin to the dashboard.
	RedirectDashboard
)

// Guard decides whether a page may render for the given session.
type Guard func(Reader) Outcome

// Protected lets any authenticated session through.
func Protected(r Reader) Outcome {
	if !IsAuthenticated(r) {
		return RedirectLogin
	}
	return Render
}

// AdminProtected lets only authenticated staff through. Predicates are
// checked in order and the first failure decides.
func AdminProtected(r Reader) Outcome {
	if !IsAuthenticated(r) {
		return RedirectLogin
	}
	if !IsAdmin(r) {
		return RedirectDashboard
	}
	return Render
}

// Wrap applies the guard to next. The decision is taken on every request
// against the session in the request context; a request without a session is
// treated as unauthenticated.
func (g Guard) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reader Reader = emptyReader{}
		if s := session.FromContext(r.Context()); s != nil {
			reader = s
		}

		switch g(reader) {
		case Render:
			next.ServeHTTP(w, r)
		case RedirectLogin:
			slog.Debug("guard redirect", "path", r.URL.Path, "to", LoginPath)
			Redirect(w, r, LoginPath)
		case RedirectDashboard:
			slog.Debug("guard redirect", "path", r.URL.Path, "to", DashboardPath)
			Redirect(w, r, DashboardPath)
		}
	})
}

// Redirect navigates the browser to path. The guarded URL never becomes a
// history entry. htmx requests get an HX-Redirect header instead of a 302 so
// the target is not swapped into the current page.
func Redirect(w http.ResponseWriter, r *http.Request, path string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, path, http.StatusFound)
}

type emptyReader struct{}

func (emptyReader) Get(string) string { return "" }
