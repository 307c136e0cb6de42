package auth

import (
	"context"
	"net/http"
	"strings"
)

// SessionCookieName is the cookie that carries the signed session id.
const SessionCookieName = "session"

// ContextKey is used for storing the session in request context
type ContextKey string

const SessionContextKey ContextKey = "session"

// WithSession returns a context carrying the given session.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, SessionContextKey, sess)
}

// SessionFromContext retrieves the session from request context, or nil.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(SessionContextKey).(*Session)
	return sess
}

// SessionFromRequest extracts and verifies the session cookie.
func SessionFromRequest(r *http.Request, store *Store) (*Session, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, err
	}
	return store.Verify(cookie.Value)
}

// SetSessionCookie sets the session cookie on a response
// Mitigation: OWASP A01:2021-Broken Access Control (CSRF prevention)
func SetSessionCookie(w http.ResponseWriter, r *http.Request, store *Store, session *Session) {
	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    store.CookieValue(session.ID),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode, // Strict = no cross-site requests
		Secure:   strings.HasPrefix(r.Referer(), "https://") || r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
	}
	// Remembered sessions persist across browser restarts; the rest stay
	// session-scoped by omitting Expires.
	if !session.ExpiresAt.IsZero() {
		cookie.Expires = session.ExpiresAt
	}
	http.SetCookie(w, cookie)
}

// ClearSessionCookie clears the session cookie
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
