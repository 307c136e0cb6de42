package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"peergate.dev/peergate/internal/auth"
	"peergate.dev/peergate/internal/config"
	"peergate.dev/peergate/internal/logging"
	"peergate.dev/peergate/internal/peer"
	"peergate.dev/peergate/internal/profile"
)

// ==============================================================================
// Shared fixtures
// ==============================================================================

func testSettings() profile.Settings {
	return profile.Settings{
		Host:       "vpn.example.com",
		Port:       51820,
		DNS:        []string{"1.1.1.1", "8.8.8.8"},
		MTU:        1420,
		AllowedIPs: []string{"0.0.0.0/0", "::/0"},
		Keepalive:  25,
	}
}

func newTestPeerStore(t *testing.T) *peer.Store {
	t.Helper()
	store, err := peer.NewStore(filepath.Join(t.TempDir(), "peers.json"), "10.8.0.x", peer.Tunables{}, logging.Default())
	if err != nil {
		t.Fatalf("peer.NewStore: %v", err)
	}
	return store
}

// newTestServer builds a full server. An empty password leaves the gate open.
func newTestServer(t *testing.T, password string) *Server {
	t.Helper()
	cfg := &config.Config{
		Password:         password,
		SessionMaxAge:    "720h",
		Lang:             "en",
		WebRoot:          t.TempDir(),
		WGDefaultAddress: "10.8.0.x",
	}
	store := newTestPeerStore(t)
	profiles := profile.NewService(store, testSettings(), profile.ZlibEncoder{}, time.Second, logging.Default())

	srv, err := NewServer(ServerOptions{
		Config:   cfg,
		Peers:    store,
		Profiles: profiles,
		Logger:   logging.New(logging.DefaultConfig()),
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

// login authenticates through the full chain and returns the session cookie
// to replay on later requests.
func login(t *testing.T, handler http.Handler, password string) *http.Cookie {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"password": password})
	req := httptest.NewRequest("POST", "/api/session", bytes.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", w.Code, w.Body.String())
	}

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("login response set no session cookie")
	}
	return cookie
}

// ==============================================================================
// Route ordering and gate tests
// ==============================================================================

func TestPublicEndpointsAnswerCold(t *testing.T) {
	srv := newTestServer(t, "admin-password")
	handler := srv.Handler()

	paths := []string{
		"/api/release",
		"/api/update",
		"/api/lang",
		"/api/remember-me",
		"/api/ui-traffic-stats",
		"/api/ui-chart-type",
		"/api/session",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest("GET", path, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("expected 200 without credentials, got %d", w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected application/json, got %q", ct)
			}
		})
	}
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	srv := newTestServer(t, "admin-password")
	handler := srv.Handler()

	requests := []struct {
		method string
		path   string
	}{
		{"GET", "/api/peers"},
		{"POST", "/api/peers"},
		{"DELETE", "/api/peers/some-id"},
		{"POST", "/api/peers/some-id/enable"},
		{"POST", "/api/peers/some-id/disable"},
		{"PUT", "/api/peers/some-id/name"},
		{"PUT", "/api/peers/some-id/address"},
		{"GET", "/api/peers/some-id/profile"},
		{"GET", "/api/peers/some-id/qrcode.svg"},
		{"GET", "/api/peers/some-id/history"},
	}
	for _, tt := range requests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{}`))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401 without session, got %d", w.Code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("response not JSON: %v", err)
			}
			// The rejection is generic on purpose; it must not say what
			// exists behind the gate or why the request failed.
			if resp.Error != "unauthorized" || resp.Details != "" {
				t.Errorf("expected bare unauthorized, got %+v", resp)
			}
		})
	}
}

// The gate must reject before a handler runs, not after: a blocked create
// leaves no trace in the registry.
func TestGateRunsBeforeHandlers(t *testing.T) {
	srv := newTestServer(t, "admin-password")
	handler := srv.Handler()

	body := bytes.NewReader([]byte(`{"name":"sneaky"}`))
	req := httptest.NewRequest("POST", "/api/peers", body)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if total, _ := srv.peers.Count(); total != 0 {
		t.Errorf("rejected request mutated the registry: %d peers", total)
	}
}

func TestLoginLogoutFlow(t *testing.T) {
	srv := newTestServer(t, "admin-password")
	handler := srv.Handler()

	// Cold status: password required, not authenticated.
	req := httptest.NewRequest("GET", "/api/session", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	var status map[string]bool
	json.Unmarshal(w.Body.Bytes(), &status)
	if !status["requiresPassword"] || status["authenticated"] {
		t.Fatalf("cold session status = %v", status)
	}

	// Wrong password: generic 401.
	body, _ := json.Marshal(map[string]any{"password": "wrong"})
	req = httptest.NewRequest("POST", "/api/session", bytes.NewReader(body))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", w.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error != "invalid credentials" {
		t.Errorf("expected generic credential error, got %q", resp.Error)
	}

	// Correct password: session cookie opens the protected surface.
	cookie := login(t, handler, "admin-password")
	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if cookie.Path != "/" {
		t.Errorf("session cookie path = %q, want /", cookie.Path)
	}

	req = httptest.NewRequest("GET", "/api/peers", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("authenticated list: expected 200, got %d %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest("GET", "/api/session", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	json.Unmarshal(w.Body.Bytes(), &status)
	if !status["authenticated"] {
		t.Error("session status should report authenticated after login")
	}

	// Logout kills the session; the old cookie is worthless.
	req = httptest.NewRequest("DELETE", "/api/session", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/peers", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("stale cookie: expected 401, got %d", w.Code)
	}
}

func TestNoCredentialModeIsOpen(t *testing.T) {
	srv := newTestServer(t, "")
	handler := srv.Handler()

	req := httptest.NewRequest("GET", "/api/peers", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("open mode: expected 200 without session, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/session", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	var status map[string]bool
	json.Unmarshal(w.Body.Bytes(), &status)
	if status["requiresPassword"] {
		t.Error("open mode should report requiresPassword=false")
	}
}

// Paths outside /api/ pass the gate by rule, with or without credentials.
func TestNonAPIPathsPassGate(t *testing.T) {
	srv := newTestServer(t, "admin-password")
	handler := srv.Handler()

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("healthz: expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/metrics", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("metrics: expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "peergate_uptime_seconds") {
		t.Error("metrics output missing peergate series")
	}

	// Static fallback answers 404 for a missing asset, not 401: the gate
	// does not apply outside /api/.
	req = httptest.NewRequest("GET", "/missing.css", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("static miss: expected 404, got %d", w.Code)
	}
}

// An unknown path under /api/ is gated while locked and a plain miss while
// open. The ordering guarantees an attacker cannot probe the API surface.
func TestUnknownAPIPath(t *testing.T) {
	locked := newTestServer(t, "admin-password")
	w := httptest.NewRecorder()
	locked.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/not-a-route", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("locked: expected 401, got %d", w.Code)
	}

	open := newTestServer(t, "")
	w = httptest.NewRecorder()
	open.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/not-a-route", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("open: expected 404, got %d", w.Code)
	}
}

func TestStaticFallbackServesUI(t *testing.T) {
	srv := newTestServer(t, "admin-password")
	handler := srv.Handler()

	if err := os.WriteFile(filepath.Join(srv.webRoot, "index.html"), []byte("<html>console</html>"), 0644); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "console") {
		t.Errorf("unexpected body: %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
}

func TestHealthzReportsUptime(t *testing.T) {
	srv := newTestServer(t, "")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("healthz body not JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if _, ok := body["uptime"].(string); !ok {
		t.Errorf("uptime missing from %v", body)
	}
}
