// Package peer implements the peer registry: identities, key material,
// tunnel address allocation, and the on-disk state file behind them.
package peer

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// Peer represents a configured VPN endpoint with its own key pair, tunnel
// address, and enable state.
type Peer struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Enabled      bool      `json:"enabled"`
	Address      string    `json:"address"`
	PrivateKey   string    `json:"privateKey,omitempty"`
	PublicKey    string    `json:"publicKey"`
	PresharedKey string    `json:"presharedKey,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// MarshalJSON masks key material in API responses. Profile export reads the
// struct fields directly and is unaffected.
// Mitigation: CWE-200: Exposure of Sensitive Information
func (p Peer) MarshalJSON() ([]byte, error) {
	type Alias Peer
	// Create a temporary struct with the same fields
	aux := &struct {
		Alias
		PrivateKey   string `json:"privateKey,omitempty"`
		PresharedKey string `json:"presharedKey,omitempty"`
	}{
		Alias: (Alias)(p),
	}

	// Mask the keys if they exist
	if p.PrivateKey != "" {
		aux.PrivateKey = "******"
	}
	if p.PresharedKey != "" {
		aux.PresharedKey = "******"
	}

	return json.Marshal(aux)
}

// GenerateKeyPair generates a new WireGuard key pair.
func GenerateKeyPair() (privateKey, publicKey string, err error) {
	key, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate private key: %w", err)
	}
	return key.String(), key.PublicKey().String(), nil
}

// GeneratePresharedKey generates a new WireGuard preshared key.
func GeneratePresharedKey() (string, error) {
	key, err := wgtypes.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate preshared key: %w", err)
	}
	return key.String(), nil
}
