// Package profile assembles downloadable connection profiles: one canonical
// structure per peer, one serialization, and one text rendition derived from
// it. The serialized payload is handed to an encoder that produces the
// opaque token client applications import.
package profile

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"peergate.dev/peergate/internal/peer"
)

// ContainerLabel is the protocol label client applications select on.
const ContainerLabel = "amnezia-awg"

// ConfigurationProfile is the canonical per-peer connection profile. Every
// field is required; Validate enforces that before any serialization.
type ConfigurationProfile struct {
	PeerName        string
	PeerID          string
	PeerAddress     string
	PeerPrivateKey  string
	PeerPublicKey   string
	PresharedKey    string
	ServerPublicKey string
	Host            string
	Port            int
	DNS             []string
	MTU             int
	AllowedIPs      []string
	Keepalive       int
	Tunables        peer.Tunables
}

// Validate checks that the profile is complete. An incomplete profile would
// export a token that imports cleanly but cannot connect, so missing fields
// fail here rather than at the client.
func (p *ConfigurationProfile) Validate() error {
	switch {
	case p.PeerName == "":
		return fmt.Errorf("profile missing peer name")
	case p.PeerID == "":
		return fmt.Errorf("profile missing peer id")
	case p.PeerAddress == "":
		return fmt.Errorf("profile missing peer address")
	case p.PeerPrivateKey == "":
		return fmt.Errorf("profile missing peer private key")
	case p.PeerPublicKey == "":
		return fmt.Errorf("profile missing peer public key")
	case p.PresharedKey == "":
		return fmt.Errorf("profile missing preshared key")
	case p.ServerPublicKey == "":
		return fmt.Errorf("profile missing server public key")
	case p.Host == "":
		return fmt.Errorf("profile missing endpoint host")
	case p.Port < 1 || p.Port > 65535:
		return fmt.Errorf("profile endpoint port invalid: %d", p.Port)
	case len(p.DNS) == 0:
		return fmt.Errorf("profile missing dns servers")
	case p.MTU <= 0:
		return fmt.Errorf("profile mtu invalid: %d", p.MTU)
	case len(p.AllowedIPs) == 0:
		return fmt.Errorf("profile missing allowed ips")
	case p.Keepalive <= 0:
		return fmt.Errorf("profile keepalive invalid: %d", p.Keepalive)
	}

	if err := p.Tunables.Validate(); err != nil {
		return fmt.Errorf("profile obfuscation parameters invalid: %w", err)
	}
	return nil
}

// Endpoint returns the server endpoint in host:port form.
func (p *ConfigurationProfile) Endpoint() string {
	return p.Host + ":" + strconv.Itoa(p.Port)
}

// ConfigText renders the [Interface]/[Peer] form of the profile. The same
// values that appear in the structured payload appear here.
func (p *ConfigurationProfile) ConfigText() string {
	t := p.Tunables

	var b strings.Builder
	fmt.Fprintf(&b, "[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", p.PeerPrivateKey)
	fmt.Fprintf(&b, "Address = %s/24\n", p.PeerAddress)
	fmt.Fprintf(&b, "DNS = %s\n", strings.Join(p.DNS, ", "))
	fmt.Fprintf(&b, "MTU = %d\n", p.MTU)
	fmt.Fprintf(&b, "Jc = %d\n", t.Jc)
	fmt.Fprintf(&b, "Jmin = %d\n", t.Jmin)
	fmt.Fprintf(&b, "Jmax = %d\n", t.Jmax)
	fmt.Fprintf(&b, "S1 = %d\n", t.S1)
	fmt.Fprintf(&b, "S2 = %d\n", t.S2)
	fmt.Fprintf(&b, "H1 = %d\n", t.H1)
	fmt.Fprintf(&b, "H2 = %d\n", t.H2)
	fmt.Fprintf(&b, "H3 = %d\n", t.H3)
	fmt.Fprintf(&b, "H4 = %d\n", t.H4)
	fmt.Fprintf(&b, "\n[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", p.ServerPublicKey)
	fmt.Fprintf(&b, "PresharedKey = %s\n", p.PresharedKey)
	fmt.Fprintf(&b, "AllowedIPs = %s\n", strings.Join(p.AllowedIPs, ", "))
	fmt.Fprintf(&b, "PersistentKeepalive = %d\n", p.Keepalive)
	fmt.Fprintf(&b, "Endpoint = %s\n", p.Endpoint())
	return b.String()
}

// awgContainer carries the obfuscation parameters in the container schema.
// Values are strings because that is what importers expect.
type awgContainer struct {
	H1             string `json:"H1"`
	H2             string `json:"H2"`
	H3             string `json:"H3"`
	H4             string `json:"H4"`
	Jc             string `json:"Jc"`
	Jmin           string `json:"Jmin"`
	Jmax           string `json:"Jmax"`
	S1             string `json:"S1"`
	S2             string `json:"S2"`
	LastConfig     string `json:"last_config"`
	Port           string `json:"port"`
	TransportProto string `json:"transport_proto"`
}

type payloadContainer struct {
	Awg       awgContainer `json:"awg"`
	Container string       `json:"container"`
}

type payloadDoc struct {
	Containers       []payloadContainer `json:"containers"`
	DefaultContainer string             `json:"defaultContainer"`
	Description      string             `json:"description"`
	DNS1             string             `json:"dns1"`
	DNS2             string             `json:"dns2,omitempty"`
	HostName         string             `json:"hostName"`
}

// lastConfig is the nested document importers keep as the connection's
// working configuration. It embeds the ConfigText rendition verbatim.
type lastConfig struct {
	AllowedIPs          []string `json:"allowed_ips"`
	ClientID            string   `json:"clientId"`
	ClientIP            string   `json:"client_ip"`
	ClientPrivKey       string   `json:"client_priv_key"`
	ClientPubKey        string   `json:"client_pub_key"`
	Config              string   `json:"config"`
	HostName            string   `json:"hostName"`
	MTU                 string   `json:"mtu"`
	PersistentKeepAlive string   `json:"persistent_keep_alive"`
	Port                int      `json:"port"`
	PSKKey              string   `json:"psk_key"`
	ServerPubKey        string   `json:"server_pub_key"`
}

// Payload serializes the profile into the canonical container document:
// compact JSON, struct field order, no incidental whitespace. These are the
// exact bytes handed to the encoder.
func (p *ConfigurationProfile) Payload(description string) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	last := lastConfig{
		AllowedIPs:          p.AllowedIPs,
		ClientID:            p.PeerID,
		ClientIP:            p.PeerAddress,
		ClientPrivKey:       p.PeerPrivateKey,
		ClientPubKey:        p.PeerPublicKey,
		Config:              p.ConfigText(),
		HostName:            p.Host,
		MTU:                 strconv.Itoa(p.MTU),
		PersistentKeepAlive: strconv.Itoa(p.Keepalive),
		Port:                p.Port,
		PSKKey:              p.PresharedKey,
		ServerPubKey:        p.ServerPublicKey,
	}
	lastBytes, err := json.Marshal(last)
	if err != nil {
		return nil, err
	}

	t := p.Tunables
	doc := payloadDoc{
		Containers: []payloadContainer{{
			Awg: awgContainer{
				H1:             strconv.FormatUint(uint64(t.H1), 10),
				H2:             strconv.FormatUint(uint64(t.H2), 10),
				H3:             strconv.FormatUint(uint64(t.H3), 10),
				H4:             strconv.FormatUint(uint64(t.H4), 10),
				Jc:             strconv.Itoa(t.Jc),
				Jmin:           strconv.Itoa(t.Jmin),
				Jmax:           strconv.Itoa(t.Jmax),
				S1:             strconv.Itoa(t.S1),
				S2:             strconv.Itoa(t.S2),
				LastConfig:     string(lastBytes),
				Port:           strconv.Itoa(p.Port),
				TransportProto: "udp",
			},
			Container: ContainerLabel,
		}},
		DefaultContainer: ContainerLabel,
		Description:      description,
		DNS1:             p.DNS[0],
		HostName:         p.Host,
	}
	if len(p.DNS) > 1 {
		doc.DNS2 = p.DNS[1]
	}

	return json.Marshal(doc)
}
