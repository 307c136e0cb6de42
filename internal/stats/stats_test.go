package stats

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peergate.dev/peergate/internal/clock"
	"peergate.dev/peergate/internal/logging"
	"peergate.dev/peergate/internal/peer"
	"peergate.dev/peergate/internal/tunnel"
)

type fakeLister struct {
	peers []*peer.Peer
}

func (f *fakeLister) List() []*peer.Peer { return f.peers }

type fakeCounters struct {
	counters map[string]tunnel.Counters
	err      error
}

func (f *fakeCounters) PeerCounters() (map[string]tunnel.Counters, error) {
	return f.counters, f.err
}

func newTestRecorder(t *testing.T, clk clock.Clock, peers PeerLister, device CounterSource) *Recorder {
	t.Helper()
	opts := DefaultOptions(":memory:")
	opts.Retention = time.Hour
	opts.Clock = clk

	r, err := NewRecorder(opts, peers, device, logging.Default())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecordAndHistory(t *testing.T) {
	mock := clock.NewMockClock(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	r := newTestRecorder(t, mock, &fakeLister{}, &fakeCounters{})

	require.NoError(t, r.Record("peer-1", 100, 200))
	mock.Advance(time.Minute)
	require.NoError(t, r.Record("peer-1", 150, 260))
	require.NoError(t, r.Record("peer-2", 5, 5))

	samples, err := r.History("peer-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, int64(100), samples[0].ReceiveBytes)
	assert.Equal(t, int64(150), samples[1].ReceiveBytes)
	assert.True(t, samples[1].CollectedAt.After(samples[0].CollectedAt), "samples not ordered by time")

	// Since filter cuts the first sample.
	later, err := r.History("peer-1", samples[1].CollectedAt)
	require.NoError(t, err)
	assert.Len(t, later, 1)
}

func TestHistoryUnknownPeerIsEmpty(t *testing.T) {
	r := newTestRecorder(t, clock.RealClock{}, &fakeLister{}, &fakeCounters{})

	samples, err := r.History("ghost", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestPrune(t *testing.T) {
	mock := clock.NewMockClock(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	r := newTestRecorder(t, mock, &fakeLister{}, &fakeCounters{})

	require.NoError(t, r.Record("peer-1", 1, 1))
	mock.Advance(2 * time.Hour) // past the 1h retention
	require.NoError(t, r.Record("peer-1", 2, 2))

	removed, err := r.Prune()
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	samples, err := r.History("peer-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, int64(2), samples[0].ReceiveBytes)
}

func TestCollect(t *testing.T) {
	peers := &fakeLister{peers: []*peer.Peer{
		{ID: "peer-1", PublicKey: "PUB1"},
		{ID: "peer-2", PublicKey: "PUB2"},
		{ID: "peer-3", PublicKey: "PUB3"}, // no counters: never handshaked
	}}
	device := &fakeCounters{counters: map[string]tunnel.Counters{
		"PUB1": {ReceiveBytes: 10, TransmitBytes: 20},
		"PUB2": {ReceiveBytes: 30, TransmitBytes: 40},
	}}

	r := newTestRecorder(t, clock.RealClock{}, peers, device)
	r.collect()

	for id, wantRx := range map[string]int64{"peer-1": 10, "peer-2": 30} {
		samples, err := r.History(id, time.Time{})
		require.NoError(t, err, "History(%s)", id)
		require.Len(t, samples, 1, "samples for %s", id)
		assert.Equal(t, wantRx, samples[0].ReceiveBytes, "rx for %s", id)
	}

	samples, err := r.History("peer-3", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, samples, "peer without counters should have no samples")
}

func TestCollectToleratesDeviceErrors(t *testing.T) {
	device := &fakeCounters{err: errors.New("device unavailable")}
	r := newTestRecorder(t, clock.RealClock{}, &fakeLister{}, device)

	// Must not panic or write anything.
	r.collect()
}

func TestFileBackedRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.db")
	opts := DefaultOptions(path)

	r, err := NewRecorder(opts, &fakeLister{}, &fakeCounters{}, logging.Default())
	require.NoError(t, err)
	require.NoError(t, r.Record("peer-1", 1, 2))
	require.NoError(t, r.Close())

	// Reopen and confirm the sample survived.
	r2, err := NewRecorder(opts, &fakeLister{}, &fakeCounters{}, logging.Default())
	require.NoError(t, err)
	defer r2.Close()

	samples, err := r2.History("peer-1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}
