package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all control-plane metrics.
type Registry struct {
	// Peer metrics
	PeersConfigured   prometheus.Gauge
	PeersEnabled      prometheus.Gauge
	PeerMutations     *prometheus.CounterVec
	PeerRxBytes       *prometheus.GaugeVec
	PeerTxBytes       *prometheus.GaugeVec
	PeerLastHandshake *prometheus.GaugeVec

	// Session metrics
	SessionsActive prometheus.Gauge
	LoginAttempts  *prometheus.CounterVec

	// Profile metrics
	ProfileExports *prometheus.CounterVec
	QRCodesServed  prometheus.Counter

	// Tunnel metrics
	TunnelSyncs *prometheus.CounterVec

	// System metrics
	Uptime           prometheus.Gauge
	WebsocketClients prometheus.Gauge
	APIRequests      *prometheus.CounterVec
	APILatency       *prometheus.HistogramVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	// Peer metrics
	r.PeersConfigured = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peergate_peers_configured",
		Help: "Number of peers known to the control plane",
	})

	r.PeersEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peergate_peers_enabled",
		Help: "Number of peers currently enabled",
	})

	r.PeerMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peergate_peer_mutations_total",
		Help: "Total peer mutations by operation",
	}, []string{"operation"})

	r.PeerRxBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "peergate_peer_receive_bytes",
		Help: "Bytes received from each peer",
	}, []string{"peer"})

	r.PeerTxBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "peergate_peer_transmit_bytes",
		Help: "Bytes transmitted to each peer",
	}, []string{"peer"})

	r.PeerLastHandshake = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "peergate_peer_last_handshake_timestamp",
		Help: "Unix timestamp of the last handshake with each peer",
	}, []string{"peer"})

	// Session metrics
	r.SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peergate_sessions_active",
		Help: "Number of active console sessions",
	})

	r.LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peergate_login_attempts_total",
		Help: "Total login attempts by outcome",
	}, []string{"outcome"})

	// Profile metrics
	r.ProfileExports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peergate_profile_exports_total",
		Help: "Total connection profile exports by status",
	}, []string{"status"})

	r.QRCodesServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peergate_qr_codes_served_total",
		Help: "Total QR code renders served",
	})

	// Tunnel metrics
	r.TunnelSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peergate_tunnel_syncs_total",
		Help: "Total device configuration syncs by status",
	}, []string{"status"})

	// System metrics
	r.Uptime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peergate_uptime_seconds",
		Help: "Control plane uptime in seconds",
	})

	r.WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peergate_websocket_clients",
		Help: "Number of connected websocket clients",
	})

	r.APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peergate_api_requests_total",
		Help: "Total API requests",
	}, []string{"method", "path", "status"})

	r.APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "peergate_api_request_duration_seconds",
		Help:    "API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	return r
}

// RecordAPIRequest records an API request.
func (r *Registry) RecordAPIRequest(method, path string, status int, duration float64) {
	r.APIRequests.WithLabelValues(method, path, statusString(status)).Inc()
	r.APILatency.WithLabelValues(method, path).Observe(duration)
}

// RecordLogin records a login attempt outcome.
func (r *Registry) RecordLogin(outcome string) {
	r.LoginAttempts.WithLabelValues(outcome).Inc()
}

// RecordPeerMutation records a peer create, delete, or update.
func (r *Registry) RecordPeerMutation(operation string) {
	r.PeerMutations.WithLabelValues(operation).Inc()
}

// RecordProfileExport records a profile export attempt.
func (r *Registry) RecordProfileExport(err error) {
	if err != nil {
		r.ProfileExports.WithLabelValues("error").Inc()
	} else {
		r.ProfileExports.WithLabelValues("ok").Inc()
	}
}

// RecordTunnelSync records a device configuration sync.
func (r *Registry) RecordTunnelSync(err error) {
	if err != nil {
		r.TunnelSyncs.WithLabelValues("error").Inc()
	} else {
		r.TunnelSyncs.WithLabelValues("ok").Inc()
	}
}

// UpdatePeerCounts updates the configured and enabled peer gauges.
func (r *Registry) UpdatePeerCounts(total, enabled int) {
	r.PeersConfigured.Set(float64(total))
	r.PeersEnabled.Set(float64(enabled))
}

// statusString converts an HTTP status code to string.
func statusString(status int) string {
	return fmt.Sprintf("%d", status)
}
