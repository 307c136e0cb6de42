package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"peergate.dev/peergate/internal/brand"
	"peergate.dev/peergate/internal/logging"
	"peergate.dev/peergate/internal/peer"
)

// ErrEncodeFailed marks an encoder failure. Callers surface it as an
// upstream-dependency error; the underlying detail stays in the server log.
var ErrEncodeFailed = errors.New("profile encoding failed")

// URIScheme prefixes every exported token.
const URIScheme = "vpn://"

// PeerSource is the slice of the peer registry the exporter needs.
type PeerSource interface {
	Get(id string) (*peer.Peer, error)
	Server() peer.ServerState
}

// Settings are the server-side connection parameters baked into every
// profile. They come from configuration and do not change at runtime.
type Settings struct {
	Host       string
	Port       int
	DNS        []string
	MTU        int
	AllowedIPs []string
	Keepalive  int
}

// Service assembles and encodes downloadable profiles.
type Service struct {
	peers    PeerSource
	settings Settings
	encoder  Encoder
	timeout  time.Duration
	logger   *logging.Logger
}

// NewService builds an export service. timeout bounds each encode call.
func NewService(peers PeerSource, settings Settings, encoder Encoder, timeout time.Duration, logger *logging.Logger) *Service {
	if encoder == nil {
		encoder = ZlibEncoder{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		peers:    peers,
		settings: settings,
		encoder:  encoder,
		timeout:  timeout,
		logger:   logger,
	}
}

// Result is a finished export, ready to serve as a download.
type Result struct {
	URI      string // vpn:// token
	FileName string // attachment name derived from the display name
	PeerName string
}

// Profile assembles the canonical profile for a peer. Unknown ids surface
// the registry's not-found error unchanged.
func (s *Service) Profile(peerID string) (*ConfigurationProfile, error) {
	p, err := s.peers.Get(peerID)
	if err != nil {
		return nil, err
	}
	server := s.peers.Server()

	profile := &ConfigurationProfile{
		PeerName:        p.Name,
		PeerID:          p.ID,
		PeerAddress:     p.Address,
		PeerPrivateKey:  p.PrivateKey,
		PeerPublicKey:   p.PublicKey,
		PresharedKey:    p.PresharedKey,
		ServerPublicKey: server.PublicKey,
		Host:            s.settings.Host,
		Port:            s.settings.Port,
		DNS:             s.settings.DNS,
		MTU:             s.settings.MTU,
		AllowedIPs:      s.settings.AllowedIPs,
		Keepalive:       s.settings.Keepalive,
		Tunables:        server.Tunables,
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return profile, nil
}

// Export runs the full pipeline for a peer: assemble, serialize, encode.
// Encoder failures and empty tokens are reported, never returned as an
// empty download.
func (s *Service) Export(ctx context.Context, peerID string) (*Result, error) {
	profile, err := s.Profile(peerID)
	if err != nil {
		return nil, err
	}

	description := fmt.Sprintf("%s [%s]", profile.PeerName, brand.LowerName)
	payload, err := profile.Payload(description)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	token, err := s.encoder.Encode(ctx, payload)
	if err != nil {
		s.logger.Error("Profile encoding failed", "peer", peerID, "error", err)
		return nil, fmt.Errorf("%w: %s", ErrEncodeFailed, err)
	}
	if token == "" {
		s.logger.Error("Profile encoder returned empty token", "peer", peerID)
		return nil, ErrEncodeFailed
	}

	return &Result{
		URI:      URIScheme + token,
		FileName: profile.PeerName + ".vpn",
		PeerName: profile.PeerName,
	}, nil
}
