package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"peergate.dev/peergate/internal/auth"
	"peergate.dev/peergate/internal/logging"
	"peergate.dev/peergate/internal/metrics"
	"peergate.dev/peergate/internal/peer"
	"peergate.dev/peergate/internal/stats"
	"peergate.dev/peergate/internal/tunnel"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same-origin policy for upgrades: the session cookie alone must not
	// let a foreign page open a socket.
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		// Allow localhost for development/proxying
		if strings.Contains(origin, "://localhost:") || strings.Contains(origin, "://127.0.0.1:") {
			return true
		}

		host := r.Host
		if strings.HasPrefix(origin, "http://") {
			return origin[len("http://"):] == host
		}
		if strings.HasPrefix(origin, "https://") {
			return origin[len("https://"):] == host
		}
		return false
	},
}

// WSMessage is a topic-tagged frame sent to clients.
type WSMessage struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

// wsClient is one connected console with its topic subscriptions.
type wsClient struct {
	conn   *websocket.Conn
	topics map[string]bool
	send   chan []byte
}

// WSManager pushes live peer state to connected consoles with topic-based
// pub/sub, so the UI does not have to poll the peer list.
type WSManager struct {
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	mutex      sync.RWMutex

	peers     *peer.Store
	device    tunnel.Device
	logger    *logging.Logger
	metrics   *metrics.Registry
	triggerCh chan struct{}
}

func NewWSManager(peers *peer.Store, device tunnel.Device, logger *logging.Logger) *WSManager {
	m := &WSManager{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		peers:      peers,
		device:     device,
		logger:     logger.WithComponent("ws"),
		metrics:    metrics.Get(),
		triggerCh:  make(chan struct{}, 1),
	}
	go m.run()
	go m.broadcastLoop()
	return m
}

func (m *WSManager) run() {
	for {
		select {
		case client := <-m.register:
			m.mutex.Lock()
			m.clients[client] = true
			m.mutex.Unlock()
			m.metrics.WebsocketClients.Inc()
		case client := <-m.unregister:
			m.mutex.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.send)
				client.conn.Close()
				m.metrics.WebsocketClients.Dec()
			}
			m.mutex.Unlock()
		}
	}
}

// Publish sends a message to all clients subscribed to the given topic.
// The peers topic goes to everyone; it is the reason the socket exists.
func (m *WSManager) Publish(topic string, data any) {
	msgBytes, err := json.Marshal(WSMessage{Topic: topic, Data: data})
	if err != nil {
		return
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for client := range m.clients {
		if topic == "peers" || client.topics[topic] {
			select {
			case client.send <- msgBytes:
			default:
				// Client buffer full, skip
			}
		}
	}
}

// TriggerUpdate forces an immediate broadcast, used after mutations so the
// UI does not wait out the ticker. Safe on a nil manager.
func (m *WSManager) TriggerUpdate() {
	if m == nil {
		return
	}
	select {
	case m.triggerCh <- struct{}{}:
	default:
		// Already pending
	}
}

// broadcastLoop pushes peer snapshots on a fixed cadence and on demand.
func (m *WSManager) broadcastLoop() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-m.triggerCh:
		}
		if !m.hasClients() {
			continue
		}

		peers := m.peers.List()
		counters, err := m.device.PeerCounters()
		if err != nil {
			m.logger.Debug("Peer counters unavailable", "error", err)
			counters = nil
		}

		views := make([]PeerView, 0, len(peers))
		for _, p := range peers {
			views = append(views, newPeerView(p, counters[p.PublicKey]))
		}
		m.Publish("peers", views)

		if m.hasSubscribers("traffic") {
			m.Publish("traffic", trafficSamples(peers, counters))
		}
	}
}

// trafficSamples reduces a snapshot to the shape the history store serves,
// so chart code handles pushed and persisted data the same way.
func trafficSamples(peers []*peer.Peer, counters map[string]tunnel.Counters) []stats.Sample {
	now := time.Now().UTC()
	samples := make([]stats.Sample, 0, len(peers))
	for _, p := range peers {
		c := counters[p.PublicKey]
		samples = append(samples, stats.Sample{
			PeerID:        p.ID,
			CollectedAt:   now,
			ReceiveBytes:  c.ReceiveBytes,
			TransmitBytes: c.TransmitBytes,
		})
	}
	return samples
}

func (m *WSManager) hasClients() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients) > 0
}

// hasSubscribers checks if any client is subscribed to the given topic.
func (m *WSManager) hasSubscribers(topic string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for client := range m.clients {
		if client.topics[topic] {
			return true
		}
	}
	return false
}

// readPump handles incoming messages from a client (subscriptions).
func (c *wsClient) readPump(m *WSManager) {
	defer func() {
		m.unregister <- c
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var msg struct {
			Action string   `json:"action"`
			Topics []string `json:"topics"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		// Topic sets are read by Publish under the manager lock; take it
		// for writes too.
		m.mutex.Lock()
		switch msg.Action {
		case "subscribe":
			for _, topic := range msg.Topics {
				c.topics[topic] = true
			}
		case "unsubscribe":
			for _, topic := range msg.Topics {
				delete(c.topics, topic)
			}
		}
		m.mutex.Unlock()
	}
}

// writePump sends messages to the client.
func (c *wsClient) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			break
		}
	}
}

// handleWS upgrades the connection. The route sits outside /api/ so the
// gate passes it through; the session check happens here instead, at
// upgrade time, with the same policy the gate applies.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.authenticator.Required() {
		sess := auth.SessionFromContext(r.Context())
		if sess == nil || !sess.Authenticated {
			WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}
	if s.wsManager == nil {
		WriteError(w, http.StatusServiceUnavailable, "websockets not enabled")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Websocket upgrade failed", "ip", getClientIP(r), "error", err)
		return
	}

	client := &wsClient{
		conn:   conn,
		topics: make(map[string]bool),
		send:   make(chan []byte, 256),
	}

	s.wsManager.register <- client

	go client.writePump()
	go client.readPump(s.wsManager)
}
