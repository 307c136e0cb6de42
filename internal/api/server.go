package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"peergate.dev/peergate/internal/auth"
	"peergate.dev/peergate/internal/config"
	"peergate.dev/peergate/internal/logging"
	"peergate.dev/peergate/internal/metrics"
	"peergate.dev/peergate/internal/peer"
	"peergate.dev/peergate/internal/profile"
	"peergate.dev/peergate/internal/ratelimit"
	"peergate.dev/peergate/internal/stats"
	"peergate.dev/peergate/internal/tunnel"
)

// ServerConfig holds HTTP server hardening configuration.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration // Body read limit
	WriteTimeout      time.Duration // Response timeout
	IdleTimeout       time.Duration // Keep-alive timeout
	MaxHeaderBytes    int           // Header size limit
	MaxBodyBytes      int64         // Request body size limit
}

// DefaultServerConfig returns secure default server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16, // 64KB header limit
		MaxBodyBytes:      1 << 20, // 1MB body limit; console payloads are tiny
	}
}

// publicAPIPaths lists the /api/ endpoints that answer without
// authentication. Everything else under /api/ sits behind the gate.
var publicAPIPaths = map[string]bool{
	"/api/release":          true,
	"/api/update":           true,
	"/api/lang":             true,
	"/api/remember-me":      true,
	"/api/ui-traffic-stats": true,
	"/api/ui-chart-type":    true,
	"/api/session":          true,
}

// Server handles API requests.
type Server struct {
	config        *config.Config
	webRoot       string
	authenticator *auth.Authenticator
	sessions      *auth.Store
	peers         *peer.Store
	profiles      *profile.Service
	history       *stats.Recorder
	device        tunnel.Device
	logger        *logging.Logger
	metrics       *metrics.Registry
	rateLimiter   *ratelimit.Limiter
	wsManager     *WSManager
	serverConfig  *ServerConfig
	startTime     time.Time

	mux *http.ServeMux
}

// ServerOptions holds dependencies for the API server.
type ServerOptions struct {
	Config       *config.Config
	Peers        *peer.Store
	Profiles     *profile.Service
	History      *stats.Recorder // Optional: /history answers 404 without it
	Device       tunnel.Device
	Logger       *logging.Logger
	ServerConfig *ServerConfig
}

// NewServer creates an API server with the provided options.
func NewServer(opts ServerOptions) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	serverConfig := opts.ServerConfig
	if serverConfig == nil {
		serverConfig = DefaultServerConfig()
	}
	device := opts.Device
	if device == nil {
		device = tunnel.NoopDevice{}
	}

	sessions, err := auth.NewStore(opts.Config.SessionMaxAgeDuration())
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:        opts.Config,
		webRoot:       opts.Config.WebRoot,
		authenticator: auth.NewAuthenticator(opts.Config.Password, opts.Config.PasswordHash),
		sessions:      sessions,
		peers:         opts.Peers,
		profiles:      opts.Profiles,
		history:       opts.History,
		device:        device,
		logger:        logger,
		metrics:       metrics.Get(),
		rateLimiter:   ratelimit.NewLimiter(),
		serverConfig:  serverConfig,
		startTime:     time.Now(),
	}
	s.wsManager = NewWSManager(opts.Peers, device, logger)

	s.initRoutes()
	return s, nil
}

// Sessions exposes the session store for lifecycle management (periodic
// expiry sweeps) and the metrics collector.
func (s *Server) Sessions() *auth.Store {
	return s.sessions
}

// RateLimiter exposes the login limiter for lifecycle management.
func (s *Server) RateLimiter() *ratelimit.Limiter {
	return s.rateLimiter
}

// initRoutes initializes the HTTP router.
func (s *Server) initRoutes() {
	mux := http.NewServeMux()
	s.mux = mux

	// Public endpoints (on the gate's allow-list)
	mux.HandleFunc("GET /api/release", s.handleRelease)
	mux.HandleFunc("GET /api/update", s.handleUpdate)
	mux.HandleFunc("GET /api/lang", s.handleLang)
	mux.HandleFunc("GET /api/remember-me", s.handleRememberMe)
	mux.HandleFunc("GET /api/ui-traffic-stats", s.handleUITrafficStats)
	mux.HandleFunc("GET /api/ui-chart-type", s.handleUIChartType)
	mux.HandleFunc("GET /api/session", s.handleSessionStatus)
	mux.HandleFunc("POST /api/session", s.handleLogin)
	mux.HandleFunc("DELETE /api/session", s.handleLogout)

	// Protected endpoints (behind the gate)
	mux.HandleFunc("GET /api/peers", s.handlePeerList)
	mux.HandleFunc("POST /api/peers", s.handlePeerCreate)
	mux.HandleFunc("DELETE /api/peers/{peerID}", s.handlePeerDelete)
	mux.HandleFunc("POST /api/peers/{peerID}/enable", s.handlePeerEnable)
	mux.HandleFunc("POST /api/peers/{peerID}/disable", s.handlePeerDisable)
	mux.HandleFunc("PUT /api/peers/{peerID}/name", s.handlePeerRename)
	mux.HandleFunc("PUT /api/peers/{peerID}/address", s.handlePeerAddress)
	mux.HandleFunc("GET /api/peers/{peerID}/profile", s.handlePeerProfile)
	mux.HandleFunc("GET /api/peers/{peerID}/qrcode.svg", s.handlePeerQRCode)
	mux.HandleFunc("GET /api/peers/{peerID}/history", s.handlePeerHistory)

	// Outside /api/: pass the gate by prefix, enforce their own rules
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", s.handleWS)

	// Static UI fallback, consulted only when nothing above matches
	mux.Handle("/", s.staticHandler())
}

// Handler returns the server's handler chain. Order is part of the
// contract: public routes must answer cold, the gate must run before any
// protected handler, and the static fallback comes after the API routes.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.authGate(h)
	h = s.sessionAttach(h)
	h = s.maxBody(s.serverConfig.MaxBodyBytes, h)
	h = s.metricsMiddleware(h)
	h = s.accessLog(h)
	return h
}
