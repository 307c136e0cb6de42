package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"peergate.dev/peergate/internal/brand"
	"peergate.dev/peergate/internal/clock"
	"peergate.dev/peergate/internal/logging"
)

var (
	ErrPeerNotFound      = errors.New("peer not found")
	ErrAddressInUse      = errors.New("address already in use")
	ErrAddressOutOfRange = errors.New("address outside tunnel subnet")
	ErrSubnetExhausted   = errors.New("no free addresses in subnet")
)

// ServerState holds the server side of the tunnel: its key pair and the
// obfuscation parameters baked into every exported profile.
type ServerState struct {
	PrivateKey string   `json:"privateKey"`
	PublicKey  string   `json:"publicKey"`
	Tunables   Tunables `json:"tunables"`
}

// Syncer pushes the current peer set to the data plane. Mutations call it
// after persisting; failures are logged but never fail the mutation.
type Syncer interface {
	Sync(server ServerState, peers []Peer) error
}

// storedPeer bypasses Peer.MarshalJSON so key material survives persistence.
type storedPeer Peer

// storeData is the persisted registry state
type storeData struct {
	Server *ServerState           `json:"server"`
	Peers  map[string]*storedPeer `json:"peers"`
}

// Store manages peers and server state
type Store struct {
	path   string
	prefix string // "10.8.0." for template "10.8.0.x"
	server *ServerState
	peers  map[string]*Peer
	syncer Syncer
	logger *logging.Logger
	clk    clock.Clock
	mu     sync.RWMutex
}

// DefaultStatePath is the default location for the peer registry
var DefaultStatePath = filepath.Join(brand.GetStateDir(), "peers.json")

// NewStore opens the peer registry at path, creating server state on first
// run. addressTemplate names the tunnel subnet as "a.b.c.x"; overrides pins
// individual obfuscation parameters from the environment.
func NewStore(path, addressTemplate string, overrides Tunables, logger *logging.Logger) (*Store, error) {
	if path == "" {
		path = DefaultStatePath
	}
	prefix, ok := strings.CutSuffix(addressTemplate, "x")
	if !ok {
		return nil, fmt.Errorf("address template must end in x: %s", addressTemplate)
	}
	if logger == nil {
		logger = logging.Default()
	}

	s := &Store{
		path:   path,
		prefix: prefix,
		peers:  make(map[string]*Peer),
		logger: logger,
		clk:    clock.RealClock{},
	}

	if err := s.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		server, err := newServerState(overrides)
		if err != nil {
			return nil, err
		}
		s.server = server

		s.mu.Lock()
		err = s.saveLocked()
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		logger.Info("Initialized peer registry", "path", path)
		return s, nil
	}

	// Re-apply environment pins on top of persisted parameters.
	merged := s.server.Tunables.Merge(overrides)
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("invalid obfuscation parameters: %w", err)
	}
	if merged != s.server.Tunables {
		s.server.Tunables = merged
		s.mu.Lock()
		err := s.saveLocked()
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

func newServerState(overrides Tunables) (*ServerState, error) {
	privateKey, publicKey, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	tunables, err := GenerateTunables()
	if err != nil {
		return nil, err
	}
	tunables = tunables.Merge(overrides)
	if err := tunables.Validate(); err != nil {
		return nil, fmt.Errorf("invalid obfuscation parameters: %w", err)
	}

	return &ServerState{
		PrivateKey: privateKey,
		PublicKey:  publicKey,
		Tunables:   tunables,
	}, nil
}

// SetSyncer attaches the data-plane syncer. Must be called before the store
// is shared between goroutines.
func (s *Store) SetSyncer(syncer Syncer) {
	s.syncer = syncer
}

// Resync pushes the full persisted peer set to the data plane. Called once at
// startup so the device converges on state saved by earlier runs.
func (s *Store) Resync() {
	s.notifySync()
}

// load reads registry state from disk
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var stored storeData
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("corrupt peer registry %s: %w", s.path, err)
	}
	if stored.Server == nil {
		return fmt.Errorf("corrupt peer registry %s: missing server state", s.path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.server = stored.Server
	s.peers = make(map[string]*Peer, len(stored.Peers))
	for id, sp := range stored.Peers {
		s.peers[id] = (*Peer)(sp)
	}

	return nil
}

// saveLocked writes registry state to disk
// MUST be called while holding the write lock
func (s *Store) saveLocked() error {
	stored := storeData{
		Server: s.server,
		Peers:  make(map[string]*storedPeer, len(s.peers)),
	}
	for id, p := range s.peers {
		stored.Peers[id] = (*storedPeer)(p)
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	// Write atomically
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

// Server returns a copy of the server state.
func (s *Store) Server() ServerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.server
}

// ServerAddress returns the server's own tunnel address.
func (s *Store) ServerAddress() string {
	return s.prefix + "1"
}

// List returns all peers ordered by creation time.
func (s *Store) List() []*Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		cp := *p
		peers = append(peers, &cp)
	}
	sort.Slice(peers, func(i, j int) bool {
		if !peers[i].CreatedAt.Equal(peers[j].CreatedAt) {
			return peers[i].CreatedAt.Before(peers[j].CreatedAt)
		}
		return peers[i].Name < peers[j].Name
	})
	return peers
}

// Get returns a copy of the peer with the given id.
func (s *Store) Get(id string) (*Peer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.peers[id]
	if !exists {
		return nil, ErrPeerNotFound
	}
	cp := *p
	return &cp, nil
}

// Count returns how many peers exist and how many of them are enabled.
func (s *Store) Count() (total, enabled int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total = len(s.peers)
	for _, p := range s.peers {
		if p.Enabled {
			enabled++
		}
	}
	return total, enabled
}

// Create registers a new peer under the given display name, allocating the
// next free tunnel address.
func (s *Store) Create(name string) (*Peer, error) {
	privateKey, publicKey, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	presharedKey, err := GeneratePresharedKey()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	address, err := s.nextFreeAddressLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	now := s.clk.Now()
	p := &Peer{
		ID:           uuid.New().String(),
		Name:         name,
		Enabled:      true,
		Address:      address,
		PrivateKey:   privateKey,
		PublicKey:    publicKey,
		PresharedKey: presharedKey,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.peers[p.ID] = p

	if err := s.saveLocked(); err != nil {
		delete(s.peers, p.ID)
		s.mu.Unlock()
		return nil, err
	}
	cp := *p
	s.mu.Unlock()

	s.notifySync()
	return &cp, nil
}

// Delete removes a peer from the registry.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	p, exists := s.peers[id]
	if !exists {
		s.mu.Unlock()
		return ErrPeerNotFound
	}
	delete(s.peers, id)

	if err := s.saveLocked(); err != nil {
		s.peers[id] = p
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.notifySync()
	return nil
}

// SetEnabled flips a peer's enable state.
func (s *Store) SetEnabled(id string, enabled bool) (*Peer, error) {
	p, err := s.update(id, func(p *Peer) error {
		p.Enabled = enabled
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifySync()
	return p, nil
}

// Rename changes a peer's display name. The data plane does not carry
// names, so no sync follows.
func (s *Store) Rename(id, name string) (*Peer, error) {
	return s.update(id, func(p *Peer) error {
		p.Name = name
		return nil
	})
}

// UpdateAddress moves a peer to a new tunnel address.
func (s *Store) UpdateAddress(id, address string) (*Peer, error) {
	p, err := s.update(id, func(p *Peer) error {
		if err := s.checkAddressLocked(id, address); err != nil {
			return err
		}
		p.Address = address
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifySync()
	return p, nil
}

// update applies fn to a peer under the write lock, bumps UpdatedAt, and
// persists. Returns a copy of the updated peer.
func (s *Store) update(id string, fn func(*Peer) error) (*Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.peers[id]
	if !exists {
		return nil, ErrPeerNotFound
	}

	prev := *p
	if err := fn(p); err != nil {
		*p = prev
		return nil, err
	}
	p.UpdatedAt = s.clk.Now()

	if err := s.saveLocked(); err != nil {
		*p = prev
		return nil, err
	}

	cp := *p
	return &cp, nil
}

// nextFreeAddressLocked allocates the lowest free host address. The server
// holds .1, so peers start at .2.
func (s *Store) nextFreeAddressLocked() (string, error) {
	used := make(map[string]bool, len(s.peers))
	for _, p := range s.peers {
		used[p.Address] = true
	}

	for host := 2; host <= 254; host++ {
		address := s.prefix + strconv.Itoa(host)
		if !used[address] {
			return address, nil
		}
	}
	return "", ErrSubnetExhausted
}

// checkAddressLocked verifies an address is inside the tunnel subnet, not
// reserved, and not held by another peer.
func (s *Store) checkAddressLocked(selfID, address string) error {
	rest, ok := strings.CutPrefix(address, s.prefix)
	if !ok {
		return fmt.Errorf("%w: %s is not in %s0/24", ErrAddressOutOfRange, address, s.prefix)
	}
	host, err := strconv.Atoi(rest)
	if err != nil || host < 2 || host > 254 {
		return fmt.Errorf("%w: %s is not in %s2-%s254", ErrAddressOutOfRange, address, s.prefix, s.prefix)
	}

	for id, p := range s.peers {
		if id != selfID && p.Address == address {
			return fmt.Errorf("%w: %s", ErrAddressInUse, address)
		}
	}
	return nil
}

// notifySync pushes the current peer set to the data plane. Must be called
// without holding the lock.
func (s *Store) notifySync() {
	if s.syncer == nil {
		return
	}

	s.mu.RLock()
	server := *s.server
	peers := make([]Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, *p)
	}
	s.mu.RUnlock()

	if err := s.syncer.Sync(server, peers); err != nil {
		s.logger.Warn("Failed to sync peers to tunnel device", "error", err)
	}
}
