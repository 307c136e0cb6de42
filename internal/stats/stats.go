// Package stats records per-peer transfer history in SQLite and serves it
// back for charting.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"peergate.dev/peergate/internal/clock"
	"peergate.dev/peergate/internal/logging"
	"peergate.dev/peergate/internal/peer"
	"peergate.dev/peergate/internal/tunnel"
)

// Sample is one recorded traffic reading for a peer.
type Sample struct {
	PeerID        string    `json:"peerId"`
	CollectedAt   time.Time `json:"collectedAt"`
	ReceiveBytes  int64     `json:"rxBytes"`
	TransmitBytes int64     `json:"txBytes"`
}

// CounterSource reads live transfer counters from the data plane.
type CounterSource interface {
	PeerCounters() (map[string]tunnel.Counters, error)
}

// PeerLister enumerates registered peers.
type PeerLister interface {
	List() []*peer.Peer
}

// Options configures the recorder.
type Options struct {
	Path      string        // Database file path (":memory:" for in-memory)
	Interval  time.Duration // Poll cadence
	Retention time.Duration // How long samples live
	Clock     clock.Clock   // Optional: time source (defaults to RealClock if nil)
}

// DefaultOptions returns sensible defaults.
func DefaultOptions(path string) Options {
	return Options{
		Path:      path,
		Interval:  time.Minute,
		Retention: 7 * 24 * time.Hour,
	}
}

// Recorder samples transfer counters on a cadence and persists them.
type Recorder struct {
	db        *sql.DB
	clk       clock.Clock
	logger    *logging.Logger
	interval  time.Duration
	retention time.Duration
	peers     PeerLister
	device    CounterSource
}

// NewRecorder opens the history database and prepares the schema.
func NewRecorder(opts Options, peers PeerLister, device CounterSource, logger *logging.Logger) (*Recorder, error) {
	dsn := opts.Path
	if opts.Path != ":memory:" {
		dsn += "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if opts.Path == ":memory:" {
		// Each pooled connection would otherwise see its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = logging.Default()
	}

	r := &Recorder{
		db:        db,
		clk:       clk,
		logger:    logger,
		interval:  opts.Interval,
		retention: opts.Retention,
		peers:     peers,
		device:    device,
	}

	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return r, nil
}

func (r *Recorder) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS peer_traffic (
			peer_id      TEXT NOT NULL,
			collected_at INTEGER NOT NULL,
			rx_bytes     INTEGER NOT NULL,
			tx_bytes     INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_peer_traffic_peer_time
			ON peer_traffic(peer_id, collected_at);
	`
	_, err := r.db.Exec(schema)
	return err
}

// Record persists one reading for a peer.
func (r *Recorder) Record(peerID string, rxBytes, txBytes int64) error {
	_, err := r.db.Exec(
		`INSERT INTO peer_traffic (peer_id, collected_at, rx_bytes, tx_bytes) VALUES (?, ?, ?, ?)`,
		peerID, r.clk.Now().Unix(), rxBytes, txBytes,
	)
	return err
}

// History returns a peer's samples since the given time, oldest first.
func (r *Recorder) History(peerID string, since time.Time) ([]Sample, error) {
	rows, err := r.db.Query(
		`SELECT collected_at, rx_bytes, tx_bytes FROM peer_traffic
		 WHERE peer_id = ? AND collected_at >= ? ORDER BY collected_at ASC`,
		peerID, since.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := []Sample{}
	for rows.Next() {
		var collected, rx, tx int64
		if err := rows.Scan(&collected, &rx, &tx); err != nil {
			return nil, err
		}
		samples = append(samples, Sample{
			PeerID:        peerID,
			CollectedAt:   time.Unix(collected, 0).UTC(),
			ReceiveBytes:  rx,
			TransmitBytes: tx,
		})
	}
	return samples, rows.Err()
}

// Prune drops samples older than the retention window and returns how many
// rows went away.
func (r *Recorder) Prune() (int64, error) {
	cutoff := r.clk.Now().Add(-r.retention).Unix()
	res, err := r.db.Exec(`DELETE FROM peer_traffic WHERE collected_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Run polls counters until the context is cancelled. Collection failures
// are logged and skipped; the loop never stops on its own.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.collect()
			if _, err := r.Prune(); err != nil {
				r.logger.Warn("Failed to prune traffic history", "error", err)
			}
		}
	}
}

// collect takes one reading for every registered peer the device currently
// knows about.
func (r *Recorder) collect() {
	counters, err := r.device.PeerCounters()
	if err != nil {
		r.logger.Debug("Failed to read peer counters", "error", err)
		return
	}
	if len(counters) == 0 {
		return
	}

	for _, p := range r.peers.List() {
		c, ok := counters[p.PublicKey]
		if !ok {
			continue
		}
		if err := r.Record(p.ID, c.ReceiveBytes, c.TransmitBytes); err != nil {
			r.logger.Warn("Failed to record traffic sample", "peer", p.ID, "error", err)
		}
	}
}

// Close releases the database handle.
func (r *Recorder) Close() error {
	return r.db.Close()
}
