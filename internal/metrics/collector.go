package metrics

import (
	"time"

	"peergate.dev/peergate/internal/clock"
	"peergate.dev/peergate/internal/logging"
	"peergate.dev/peergate/internal/peer"
	"peergate.dev/peergate/internal/tunnel"
)

// PeerSource provides the peer inventory for gauge refresh.
type PeerSource interface {
	Count() (total, enabled int)
	List() []*peer.Peer
}

// TrafficSource provides live per-peer transfer counters.
type TrafficSource interface {
	PeerCounters() (map[string]tunnel.Counters, error)
}

// SessionSource reports how many console sessions are active.
type SessionSource interface {
	Count() int
}

// Collector refreshes gauge metrics from the peer store, the tunnel
// device, and the session store on a fixed interval. Counters are
// recorded at the call sites; only gauges need a refresh loop.
type Collector struct {
	registry *Registry
	logger   *logging.Logger
	interval time.Duration
	stopCh   chan struct{}

	peers    PeerSource
	device   TrafficSource
	sessions SessionSource

	clk       clock.Clock
	startedAt time.Time

	// Peers exported on the previous pass, for stale series removal.
	seen map[string]bool
}

// NewCollector creates a metrics collector. Any source may be nil, in
// which case its gauges are left untouched.
func NewCollector(peers PeerSource, device TrafficSource, sessions SessionSource, logger *logging.Logger, interval time.Duration) *Collector {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Collector{
		registry: Get(),
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		peers:    peers,
		device:   device,
		sessions: sessions,
		clk:      clock.RealClock{},
		seen:     make(map[string]bool),
	}
	c.startedAt = c.clk.Now()
	return c
}

// Start begins the metrics refresh loop.
func (c *Collector) Start() {
	c.logger.Info("Starting metrics collector", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.refresh()
		case <-c.stopCh:
			c.logger.Info("Stopping metrics collector")
			return
		}
	}
}

// Stop stops the metrics refresh loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) refresh() {
	c.registry.Uptime.Set(c.clk.Now().Sub(c.startedAt).Seconds())

	if c.sessions != nil {
		c.registry.SessionsActive.Set(float64(c.sessions.Count()))
	}

	if c.peers == nil {
		return
	}

	total, enabled := c.peers.Count()
	c.registry.UpdatePeerCounts(total, enabled)

	if c.device == nil {
		return
	}

	counters, err := c.device.PeerCounters()
	if err != nil {
		c.logger.Debug("Peer counters unavailable", "error", err)
		return
	}

	current := make(map[string]bool)
	for _, p := range c.peers.List() {
		ct, ok := counters[p.PublicKey]
		if !ok {
			continue
		}
		current[p.ID] = true
		c.registry.PeerRxBytes.WithLabelValues(p.ID).Set(float64(ct.ReceiveBytes))
		c.registry.PeerTxBytes.WithLabelValues(p.ID).Set(float64(ct.TransmitBytes))
		if !ct.LastHandshake.IsZero() {
			c.registry.PeerLastHandshake.WithLabelValues(p.ID).Set(float64(ct.LastHandshake.Unix()))
		}
	}

	// Drop series for peers that disappeared since the last pass so
	// deleted peers do not linger in the exposition forever.
	for id := range c.seen {
		if !current[id] {
			c.registry.PeerRxBytes.DeleteLabelValues(id)
			c.registry.PeerTxBytes.DeleteLabelValues(id)
			c.registry.PeerLastHandshake.DeleteLabelValues(id)
		}
	}
	c.seen = current
}
