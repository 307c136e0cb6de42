// Package tunnel pushes the peer registry onto a running WireGuard device
// and reads live transfer counters back. It only talks to an existing
// device; creating or tearing down interfaces is the host's job.
package tunnel

import (
	"fmt"
	"net"
	"strings"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"peergate.dev/peergate/internal/logging"
	"peergate.dev/peergate/internal/peer"
)

// Counters is a peer's live transfer state as read from the device.
type Counters struct {
	Endpoint      string
	LastHandshake time.Time
	ReceiveBytes  int64
	TransmitBytes int64
}

// Device is the data-plane surface the control plane drives. Sync satisfies
// the registry's Syncer so mutations flow straight through.
type Device interface {
	Sync(server peer.ServerState, peers []peer.Peer) error
	PeerCounters() (map[string]Counters, error)
	Close() error
}

// New returns a device bound to iface, or a no-op device when syncing is
// disabled. Construction never fails; problems surface on first use.
func New(iface string, port int, enabled bool, logger *logging.Logger) Device {
	if !enabled {
		return NoopDevice{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WGDevice{iface: iface, port: port, logger: logger}
}

// NoopDevice satisfies Device without touching the kernel. Used when the
// console manages state only.
type NoopDevice struct{}

func (NoopDevice) Sync(peer.ServerState, []peer.Peer) error { return nil }

func (NoopDevice) PeerCounters() (map[string]Counters, error) {
	return map[string]Counters{}, nil
}

func (NoopDevice) Close() error { return nil }

// WGDevice drives a kernel WireGuard device through wgctrl.
type WGDevice struct {
	iface  string
	port   int
	logger *logging.Logger

	wgClient *wgctrl.Client
}

var _ peer.Syncer = (*WGDevice)(nil)

// Sync replaces the device's peer set with the enabled peers from the
// registry.
func (d *WGDevice) Sync(server peer.ServerState, peers []peer.Peer) error {
	if err := d.ensureClient(); err != nil {
		return err
	}

	key, err := wgtypes.ParseKey(server.PrivateKey)
	if err != nil {
		return fmt.Errorf("invalid server private key: %w", err)
	}
	port := d.port

	conf := wgtypes.Config{
		PrivateKey:   &key,
		ListenPort:   &port,
		ReplacePeers: true,
		Peers:        d.buildPeerConfigs(peers),
	}

	if err := d.wgClient.ConfigureDevice(d.iface, conf); err != nil {
		return fmt.Errorf("failed to configure %s: %w", d.iface, err)
	}
	return nil
}

// buildPeerConfigs maps enabled registry peers to device entries. Peers
// with unparseable keys are skipped rather than failing the whole sync.
func (d *WGDevice) buildPeerConfigs(peers []peer.Peer) []wgtypes.PeerConfig {
	configs := make([]wgtypes.PeerConfig, 0, len(peers))
	for _, p := range peers {
		if !p.Enabled {
			continue
		}

		pubKey, err := wgtypes.ParseKey(p.PublicKey)
		if err != nil {
			d.logger.Warn("Invalid peer public key, skipping", "peer", p.ID, "error", err)
			continue
		}

		conf := wgtypes.PeerConfig{
			PublicKey:         pubKey,
			ReplaceAllowedIPs: true,
			AllowedIPs:        []net.IPNet{},
		}

		if p.PresharedKey != "" {
			psk, err := wgtypes.ParseKey(p.PresharedKey)
			if err != nil {
				d.logger.Warn("Invalid peer preshared key", "peer", p.ID, "error", err)
			} else {
				conf.PresharedKey = &psk
			}
		}

		_, ipnet, err := net.ParseCIDR(p.Address + "/32")
		if err != nil {
			d.logger.Warn("Invalid peer address, skipping", "peer", p.ID, "address", p.Address)
			continue
		}
		conf.AllowedIPs = append(conf.AllowedIPs, *ipnet)

		configs = append(configs, conf)
	}
	return configs
}

// PeerCounters reads live transfer state, keyed by peer public key. A
// missing device yields an empty map, not an error, so the console keeps
// working while the interface is down.
func (d *WGDevice) PeerCounters() (map[string]Counters, error) {
	if err := d.ensureClient(); err != nil {
		return nil, err
	}

	device, err := d.wgClient.Device(d.iface)
	if err != nil {
		if strings.Contains(err.Error(), "no such device") || strings.Contains(err.Error(), "not found") {
			return map[string]Counters{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", d.iface, err)
	}

	counters := make(map[string]Counters, len(device.Peers))
	for _, p := range device.Peers {
		c := Counters{
			LastHandshake: p.LastHandshakeTime,
			ReceiveBytes:  p.ReceiveBytes,
			TransmitBytes: p.TransmitBytes,
		}
		if p.Endpoint != nil {
			c.Endpoint = p.Endpoint.String()
		}
		counters[p.PublicKey.String()] = c
	}
	return counters, nil
}

// Close releases the wgctrl handle.
func (d *WGDevice) Close() error {
	if d.wgClient != nil {
		return d.wgClient.Close()
	}
	return nil
}

func (d *WGDevice) ensureClient() error {
	if d.wgClient == nil {
		c, err := wgctrl.New()
		if err != nil {
			return fmt.Errorf("failed to open wgctrl: %w", err)
		}
		d.wgClient = c
	}
	return nil
}
