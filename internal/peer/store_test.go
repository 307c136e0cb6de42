package peer

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"peergate.dev/peergate/internal/clock"
	"peergate.dev/peergate/internal/logging"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "peers.json")
	s, err := NewStore(path, "10.8.0.x", Tunables{}, logging.Default())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStoreFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.json")
	s, err := NewStore(path, "10.8.0.x", Tunables{}, logging.Default())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	server := s.Server()
	if server.PrivateKey == "" || server.PublicKey == "" {
		t.Error("server key pair not generated")
	}
	if err := server.Tunables.Validate(); err != nil {
		t.Errorf("generated parameters invalid: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("registry file not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("registry file mode = %o, want 0600", info.Mode().Perm())
	}

	if s.ServerAddress() != "10.8.0.1" {
		t.Errorf("ServerAddress() = %q, want 10.8.0.1", s.ServerAddress())
	}
}

func TestStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.json")
	s, err := NewStore(path, "10.8.0.x", Tunables{}, logging.Default())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	created, err := s.Create("laptop")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	server := s.Server()

	// Reopen and make sure everything survived, including key material
	// that API marshalling masks.
	s2, err := NewStore(path, "10.8.0.x", Tunables{}, logging.Default())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	got, err := s2.Get(created.ID)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Name != "laptop" || got.Address != created.Address {
		t.Errorf("peer fields lost: got %+v", got)
	}
	if got.PrivateKey != created.PrivateKey || got.PrivateKey == "******" {
		t.Errorf("private key not persisted intact: %q", got.PrivateKey)
	}
	if got.PresharedKey != created.PresharedKey || got.PresharedKey == "******" {
		t.Errorf("preshared key not persisted intact: %q", got.PresharedKey)
	}

	if s2.Server() != server {
		t.Error("server state changed across reopen")
	}
}

func TestCreateAllocatesSequential(t *testing.T) {
	s := newTestStore(t)

	for i, want := range []string{"10.8.0.2", "10.8.0.3", "10.8.0.4"} {
		p, err := s.Create("peer" + strconv.Itoa(i))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if p.Address != want {
			t.Errorf("peer %d address = %q, want %q", i, p.Address, want)
		}
		if !p.Enabled {
			t.Errorf("new peer should start enabled")
		}
	}

	// Freeing a hole makes it the next allocation.
	var middle string
	for _, p := range s.List() {
		if p.Address == "10.8.0.3" {
			middle = p.ID
		}
	}
	if err := s.Delete(middle); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	p, err := s.Create("refill")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Address != "10.8.0.3" {
		t.Errorf("refill address = %q, want 10.8.0.3", p.Address)
	}
}

func TestSubnetExhausted(t *testing.T) {
	s := newTestStore(t)

	// Fill the subnet directly rather than generating 253 key pairs.
	s.mu.Lock()
	for host := 2; host <= 254; host++ {
		id := "peer-" + strconv.Itoa(host)
		s.peers[id] = &Peer{ID: id, Address: "10.8.0." + strconv.Itoa(host)}
	}
	s.mu.Unlock()

	if _, err := s.Create("overflow"); !errors.Is(err, ErrSubnetExhausted) {
		t.Errorf("Create error = %v, want ErrSubnetExhausted", err)
	}
}

func TestUpdateAddress(t *testing.T) {
	s := newTestStore(t)
	a, err := s.Create("a")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b, err := s.Create("b")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := s.UpdateAddress(a.ID, "10.8.0.100")
	if err != nil {
		t.Fatalf("UpdateAddress: %v", err)
	}
	if updated.Address != "10.8.0.100" {
		t.Errorf("address = %q, want 10.8.0.100", updated.Address)
	}

	tests := []struct {
		name    string
		address string
		wantErr error
	}{
		{"taken by other peer", b.Address, ErrAddressInUse},
		{"outside subnet", "10.9.0.5", nil},
		{"server address", "10.8.0.1", nil},
		{"network address", "10.8.0.0", nil},
		{"broadcast", "10.8.0.255", nil},
		{"trailing garbage", "10.8.0.2x", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.UpdateAddress(a.ID, tt.address)
			if err == nil {
				t.Fatalf("UpdateAddress(%q) should fail", tt.address)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("UpdateAddress(%q) error = %v, want %v", tt.address, err, tt.wantErr)
			}
		})
	}

	// Failed updates must not leave partial state behind.
	got, err := s.Get(a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Address != "10.8.0.100" {
		t.Errorf("address after failed updates = %q, want 10.8.0.100", got.Address)
	}

	// Re-assigning a peer its own address is fine.
	if _, err := s.UpdateAddress(a.ID, "10.8.0.100"); err != nil {
		t.Errorf("re-assigning own address failed: %v", err)
	}
}

func TestRenameAndEnable(t *testing.T) {
	s := newTestStore(t)
	mock := clock.NewMockClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	s.clk = mock

	p, err := s.Create("old name")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	mock.Advance(time.Minute)
	renamed, err := s.Rename(p.ID, "new name")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if renamed.Name != "new name" {
		t.Errorf("name = %q, want %q", renamed.Name, "new name")
	}
	if !renamed.UpdatedAt.After(p.UpdatedAt) {
		t.Error("UpdatedAt not bumped by rename")
	}

	disabled, err := s.SetEnabled(p.ID, false)
	if err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if disabled.Enabled {
		t.Error("peer still enabled after disable")
	}

	total, enabled := s.Count()
	if total != 1 || enabled != 0 {
		t.Errorf("Count() = (%d, %d), want (1, 0)", total, enabled)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Get("nope"); !errors.Is(err, ErrPeerNotFound) {
		t.Errorf("Get error = %v, want ErrPeerNotFound", err)
	}
	if err := s.Delete("nope"); !errors.Is(err, ErrPeerNotFound) {
		t.Errorf("Delete error = %v, want ErrPeerNotFound", err)
	}
	if _, err := s.Rename("nope", "x"); !errors.Is(err, ErrPeerNotFound) {
		t.Errorf("Rename error = %v, want ErrPeerNotFound", err)
	}
}

type fakeSyncer struct {
	calls     int
	lastPeers int
}

func (f *fakeSyncer) Sync(server ServerState, peers []Peer) error {
	f.calls++
	f.lastPeers = len(peers)
	return nil
}

func TestMutationsNudgeSyncer(t *testing.T) {
	s := newTestStore(t)
	syncer := &fakeSyncer{}
	s.SetSyncer(syncer)

	p, err := s.Create("a")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if syncer.calls != 1 || syncer.lastPeers != 1 {
		t.Errorf("after create: calls=%d peers=%d, want 1/1", syncer.calls, syncer.lastPeers)
	}

	if _, err := s.SetEnabled(p.ID, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if syncer.calls != 2 {
		t.Errorf("after disable: calls=%d, want 2", syncer.calls)
	}

	// Renames do not touch the data plane.
	if _, err := s.Rename(p.ID, "b"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if syncer.calls != 2 {
		t.Errorf("after rename: calls=%d, want 2", syncer.calls)
	}

	if _, err := s.UpdateAddress(p.ID, "10.8.0.50"); err != nil {
		t.Fatalf("UpdateAddress: %v", err)
	}
	if syncer.calls != 3 {
		t.Errorf("after re-address: calls=%d, want 3", syncer.calls)
	}

	if err := s.Delete(p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if syncer.calls != 4 || syncer.lastPeers != 0 {
		t.Errorf("after delete: calls=%d peers=%d, want 4/0", syncer.calls, syncer.lastPeers)
	}
}

func TestTunableOverridesPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.json")

	s, err := NewStore(path, "10.8.0.x", Tunables{Jc: 7, H1: 12345}, logging.Default())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	tunables := s.Server().Tunables
	if tunables.Jc != 7 || tunables.H1 != 12345 {
		t.Errorf("overrides not applied: jc=%d h1=%d", tunables.Jc, tunables.H1)
	}

	// Reopening without pins keeps the persisted values.
	s2, err := NewStore(path, "10.8.0.x", Tunables{}, logging.Default())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if s2.Server().Tunables != tunables {
		t.Error("parameters drifted across reopen")
	}
}

func TestStoreRejectsBadTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.json")
	if _, err := NewStore(path, "10.8.0.0/24", Tunables{}, logging.Default()); err == nil {
		t.Error("template without trailing x should be rejected")
	}
}

func TestStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStore(path, "10.8.0.x", Tunables{}, logging.Default()); err == nil {
		t.Error("corrupt registry should be rejected")
	}
}

func TestPersistedFileKeepsKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.json")
	s, err := NewStore(path, "10.8.0.x", Tunables{}, logging.Default())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	p, err := s.Create("laptop")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var stored storeData
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("registry file not parseable: %v", err)
	}
	sp, ok := stored.Peers[p.ID]
	if !ok {
		t.Fatal("peer missing from registry file")
	}
	if sp.PrivateKey == "******" || sp.PrivateKey == "" {
		t.Errorf("registry file holds masked private key: %q", sp.PrivateKey)
	}
}
