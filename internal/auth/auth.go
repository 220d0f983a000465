// Package auth decides, from the cached session values alone, whether a
// caller may see a page. No token validation happens here: an expired
// credential is only discovered when the API rejects it.
package auth

import "wallet-web/internal/session"

// Reader is the read side of a session.
type Reader interface {
	Get(key string) string
}

// IsAuthenticated reports whether an access credential is present.
func IsAuthenticated(r Reader) bool {
	return r.Get(session.KeyAccessToken) != ""
}

// IsAdmin reports whether the cached staff flag is exactly "true".
// Any other representation ("True", "1") is treated as non-admin.
func IsAdmin(r Reader) bool {
	return r.Get(session.KeyIsStaff) == "true"
}
