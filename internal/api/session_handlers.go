package api

import (
	"net/http"
	"time"

	"peergate.dev/peergate/internal/auth"
)

type loginRequest struct {
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// handleSessionStatus reports whether a credential is configured and whether
// this browser's session has presented it. Public: the UI needs it to decide
// between login form and console.
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	WriteJSON(w, http.StatusOK, map[string]bool{
		"requiresPassword": s.authenticator.Required(),
		"authenticated":    sess != nil && sess.Authenticated,
	})
}

// handleLogin verifies the admin credential and flips the caller's session
// to authenticated. The 401 body is identical for wrong and absent
// credentials; only malformed JSON earns a 400.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := getClientIP(r)
	if !s.rateLimiter.Allow(ip, 5, time.Minute) {
		s.logger.Warn("Login rate limit exceeded", "ip", ip)
		WriteError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}

	var req loginRequest
	if !BindJSON(w, r, &req) {
		return
	}

	if err := s.authenticator.Verify(req.Password); err != nil {
		s.metrics.RecordLogin("failure")
		s.logger.Warn("Login failed", "ip", ip)
		WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sess := auth.SessionFromContext(r.Context())
	if sess == nil {
		s.logger.Error("Login reached without attached session")
		WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	sess, err := s.sessions.Authenticate(sess.ID, req.Remember)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	// Re-set the cookie: a remembered session just gained an expiry.
	auth.SetSessionCookie(w, r, s.sessions, sess)

	s.rateLimiter.Reset(ip)
	s.metrics.RecordLogin("success")
	s.logger.Info("Login", "ip", ip)
	SuccessResponse(w)
}

// handleLogout destroys the caller's session. The old cookie value is dead
// from here on; the next request starts over as an anonymous visitor.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := auth.SessionFromContext(r.Context()); sess != nil {
		s.sessions.Destroy(sess.ID)
		s.logger.Info("Logout", "ip", getClientIP(r))
	}
	auth.ClearSessionCookie(w)
	SuccessResponse(w)
}
