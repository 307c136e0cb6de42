package api

import (
	"time"

	"peergate.dev/peergate/internal/peer"
	"peergate.dev/peergate/internal/tunnel"
)

// PeerView enriches a stored peer with live transfer state. This is the
// list-response object; key material is masked here and profile export
// never goes through it.
type PeerView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Enabled      bool      `json:"enabled"`
	Address      string    `json:"address"`
	PublicKey    string    `json:"publicKey"`
	PrivateKey   string    `json:"privateKey,omitempty"`
	PresharedKey string    `json:"presharedKey,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	// Runtime state from the device, zero when the peer has no live
	// counterpart (disabled, or the device is a no-op).
	TransferRx        int64      `json:"transferRx"`
	TransferTx        int64      `json:"transferTx"`
	Endpoint          string     `json:"endpoint,omitempty"`
	LatestHandshakeAt *time.Time `json:"latestHandshakeAt,omitempty"`
}

func newPeerView(p *peer.Peer, c tunnel.Counters) PeerView {
	v := PeerView{
		ID:         p.ID,
		Name:       p.Name,
		Enabled:    p.Enabled,
		Address:    p.Address,
		PublicKey:  p.PublicKey,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
		TransferRx: c.ReceiveBytes,
		TransferTx: c.TransmitBytes,
		Endpoint:   c.Endpoint,
	}
	if p.PrivateKey != "" {
		v.PrivateKey = "******"
	}
	if p.PresharedKey != "" {
		v.PresharedKey = "******"
	}
	if !c.LastHandshake.IsZero() {
		h := c.LastHandshake
		v.LatestHandshakeAt = &h
	}
	return v
}
