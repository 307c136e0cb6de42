package api

import (
	"bufio"
	"net"
	"net/http"
	"strings"
	"time"

	"peergate.dev/peergate/internal/auth"
)

// responseWriter wraps http.ResponseWriter to capture status and size for
// the access log and metrics. Hijack support is required for the websocket
// upgrade, which passes through the full chain.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

// accessLog records every completed request at debug level. Scrapes of
// /metrics are skipped to keep the log readable.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		if r.URL.Path == "/metrics" {
			return
		}
		s.logger.Debug("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"ip", getClientIP(r),
			"status", rw.status,
			"size", rw.size,
			"duration", time.Since(start).Round(time.Millisecond).String(),
		)
	})
}

// metricsMiddleware observes request counts and latency. Paths are collapsed
// through metricPath so label cardinality stays bounded.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.metrics.RecordAPIRequest(r.Method, metricPath(r.URL.Path), rw.status, time.Since(start).Seconds())
	})
}

// metricPath maps a request path to a bounded label value: peer-scoped
// routes collapse to one pattern, everything outside /api/ to one bucket.
func metricPath(path string) string {
	if path == "/healthz" {
		return path
	}
	if !strings.HasPrefix(path, "/api/") {
		return "static"
	}
	parts := strings.Split(path, "/")
	if len(parts) >= 4 && parts[2] == "peers" && parts[3] != "" {
		parts[3] = "{peerID}"
		return strings.Join(parts, "/")
	}
	return path
}

// maxBody caps request body size. GET and HEAD carry no body worth limiting.
func (s *Server) maxBody(maxBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// sessionAttach guarantees every request downstream carries a live session.
// A valid cookie resolves to its session; anything else gets a fresh
// unauthenticated one and the signed cookie that goes with it.
func (s *Server) sessionAttach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := auth.SessionFromRequest(r, s.sessions)
		if err != nil {
			sess, err = s.sessions.Create()
			if err != nil {
				s.logger.Error("Failed to create session", "error", err)
				WriteError(w, http.StatusInternalServerError, "internal error")
				return
			}
			auth.SetSessionCookie(w, r, s.sessions, sess)
		}
		next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), sess)))
	})
}

// authGate enforces the access policy. Decision order matters and is part
// of the server's contract:
//
//  1. no credential configured     → pass
//  2. path not under /api/         → pass
//  3. path on the public allow-list → pass
//  4. authenticated session        → pass
//  5. otherwise                    → 401
//
// Rejected requests never reach a protected handler.
func (s *Server) authGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticator.Required() {
			next.ServeHTTP(w, r)
			return
		}
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		if publicAPIPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if sess := auth.SessionFromContext(r.Context()); sess != nil && sess.Authenticated {
			next.ServeHTTP(w, r)
			return
		}
		WriteError(w, http.StatusUnauthorized, "unauthorized")
	})
}
