// Package config loads and validates runtime settings from the environment
// and an optional .env file using Viper. Every knob the console exposes is an
// environment variable, so a container deployment configures it the same way
// the packaged binary does.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"peergate.dev/peergate/internal/brand"
)

// Config holds the console configuration loaded from the environment.
type Config struct {
	// Host is the address the HTTP server binds (default 0.0.0.0).
	Host string `mapstructure:"HOST"`
	// Port is the HTTP listen port for the console.
	Port int `mapstructure:"PORT"`

	// Password is the plaintext admin credential. Empty disables the gate.
	Password string `mapstructure:"PASSWORD"`
	// PasswordHash is a bcrypt hash of the admin credential. Takes
	// precedence over Password when both are set.
	PasswordHash string `mapstructure:"PASSWORD_HASH"`
	// SessionMaxAge is a duration ("720h"); remembered sessions expire
	// after this. Empty or "0" disables remember-me entirely.
	SessionMaxAge string `mapstructure:"SESSION_MAX_AGE"`

	// Lang is the UI language hint returned to the browser.
	Lang string `mapstructure:"LANG"`
	// UITrafficStats toggles the per-peer transfer columns in the UI.
	UITrafficStats bool `mapstructure:"UI_TRAFFIC_STATS"`
	// UIChartType selects the traffic chart (0=off 1=line 2=area 3=bar).
	UIChartType int `mapstructure:"UI_CHART_TYPE"`
	// LatestRelease is the newest published version, injected by the
	// deployment; compared against brand.Version for the update flag.
	LatestRelease string `mapstructure:"LATEST_RELEASE"`

	// WebRoot is the directory static UI assets are served from.
	WebRoot string `mapstructure:"WEB_ROOT"`
	// StateDir holds peers.json and stats.db.
	StateDir string `mapstructure:"STATE_DIR"`

	// WGHost is the public endpoint host peers connect to. Required.
	WGHost string `mapstructure:"WG_HOST"`
	// WGPort is the public endpoint port.
	WGPort int `mapstructure:"WG_PORT"`
	// WGDevice is the kernel interface peers are synced onto.
	WGDevice string `mapstructure:"WG_DEVICE"`
	// WGMTU is written into exported profiles.
	WGMTU int `mapstructure:"WG_MTU"`
	// WGDefaultDNS is a comma-separated resolver list for profiles.
	WGDefaultDNS string `mapstructure:"WG_DEFAULT_DNS"`
	// WGDefaultAddress is the tunnel /24 in x.x.x.x form; the server owns
	// .1 and peers are allocated from .2 upward.
	WGDefaultAddress string `mapstructure:"WG_DEFAULT_ADDRESS"`
	// WGAllowedIPs is the AllowedIPs list written into profiles.
	WGAllowedIPs string `mapstructure:"WG_ALLOWED_IPS"`
	// WGPersistentKeepalive in seconds, written into profiles.
	WGPersistentKeepalive int `mapstructure:"WG_PERSISTENT_KEEPALIVE"`
	// WGSync mirrors enabled peers onto the kernel device when true.
	WGSync bool `mapstructure:"WG_SYNC"`

	// AmneziaWG obfuscation tunables. Zero means "randomize on first run
	// and persist"; a non-zero value pins the parameter.
	JC   int    `mapstructure:"JC"`
	JMin int    `mapstructure:"JMIN"`
	JMax int    `mapstructure:"JMAX"`
	S1   int    `mapstructure:"S1"`
	S2   int    `mapstructure:"S2"`
	H1   uint32 `mapstructure:"H1"`
	H2   uint32 `mapstructure:"H2"`
	H3   uint32 `mapstructure:"H3"`
	H4   uint32 `mapstructure:"H4"`

	// EncoderCommand is an optional external profile encoder: a
	// space-separated argv whose process receives the payload on stdin.
	// Empty selects the built-in encoder.
	EncoderCommand string `mapstructure:"ENCODER_COMMAND"`
	// EncoderTimeout bounds a single encode call.
	EncoderTimeout string `mapstructure:"ENCODER_TIMEOUT"`

	// StatsInterval is the traffic sampling period.
	StatsInterval string `mapstructure:"STATS_INTERVAL"`
	// StatsRetention is how long samples are kept.
	StatsRetention string `mapstructure:"STATS_RETENTION"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogJSON switches log output to JSON lines.
	LogJSON bool `mapstructure:"LOG_JSON"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Missing .env is ignored; env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 51821)
	v.SetDefault("PASSWORD", "")
	v.SetDefault("PASSWORD_HASH", "")
	v.SetDefault("SESSION_MAX_AGE", "")
	v.SetDefault("LANG", "en")
	v.SetDefault("UI_TRAFFIC_STATS", false)
	v.SetDefault("UI_CHART_TYPE", 0)
	v.SetDefault("LATEST_RELEASE", "")
	v.SetDefault("WEB_ROOT", brand.GetWebDir())
	v.SetDefault("STATE_DIR", brand.GetStateDir())
	v.SetDefault("WG_HOST", "")
	v.SetDefault("WG_PORT", 51820)
	v.SetDefault("WG_DEVICE", "wg0")
	v.SetDefault("WG_MTU", 1420)
	v.SetDefault("WG_DEFAULT_DNS", "1.1.1.1")
	v.SetDefault("WG_DEFAULT_ADDRESS", "10.8.0.x")
	v.SetDefault("WG_ALLOWED_IPS", "0.0.0.0/0, ::/0")
	v.SetDefault("WG_PERSISTENT_KEEPALIVE", 25)
	v.SetDefault("WG_SYNC", true)
	v.SetDefault("JC", 0)
	v.SetDefault("JMIN", 0)
	v.SetDefault("JMAX", 0)
	v.SetDefault("S1", 0)
	v.SetDefault("S2", 0)
	v.SetDefault("H1", 0)
	v.SetDefault("H2", 0)
	v.SetDefault("H3", 0)
	v.SetDefault("H4", 0)
	v.SetDefault("ENCODER_COMMAND", "")
	v.SetDefault("ENCODER_TIMEOUT", "10s")
	v.SetDefault("STATS_INTERVAL", "1m")
	v.SetDefault("STATS_RETENTION", "168h")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_JSON", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: PORT out of range: %d", c.Port)
	}
	if c.WGPort < 1 || c.WGPort > 65535 {
		return fmt.Errorf("config: WG_PORT out of range: %d", c.WGPort)
	}
	if c.UIChartType < 0 || c.UIChartType > 3 {
		return fmt.Errorf("config: UI_CHART_TYPE must be 0-3, got %d", c.UIChartType)
	}
	if c.WGMTU < 576 || c.WGMTU > 9000 {
		return fmt.Errorf("config: WG_MTU out of range: %d", c.WGMTU)
	}

	// The template form "10.8.0.x" must be a /24 with a valid prefix.
	base := strings.TrimSuffix(c.WGDefaultAddress, ".x")
	if base == c.WGDefaultAddress {
		return fmt.Errorf("config: WG_DEFAULT_ADDRESS must end in .x, got %q", c.WGDefaultAddress)
	}
	if ip := net.ParseIP(base + ".0"); ip == nil {
		return fmt.Errorf("config: WG_DEFAULT_ADDRESS has invalid prefix %q", base)
	}

	if c.SessionMaxAge != "" && c.SessionMaxAge != "0" {
		d, err := time.ParseDuration(c.SessionMaxAge)
		if err != nil {
			return fmt.Errorf("config: SESSION_MAX_AGE: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("config: SESSION_MAX_AGE must not be negative")
		}
	}
	for _, pair := range []struct {
		key, val string
	}{
		{"ENCODER_TIMEOUT", c.EncoderTimeout},
		{"STATS_INTERVAL", c.StatsInterval},
		{"STATS_RETENTION", c.StatsRetention},
	} {
		if _, err := time.ParseDuration(pair.val); err != nil {
			return fmt.Errorf("config: %s: %w", pair.key, err)
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: LOG_LEVEL must be debug/info/warn/error, got %q", c.LogLevel)
	}

	return nil
}

// RequiresPassword reports whether an admin credential is configured.
func (c *Config) RequiresPassword() bool {
	return c.Password != "" || c.PasswordHash != ""
}

// SessionMaxAgeDuration parses SessionMaxAge. Zero means remember-me is off.
func (c *Config) SessionMaxAgeDuration() time.Duration {
	if c.SessionMaxAge == "" || c.SessionMaxAge == "0" {
		return 0
	}
	d, err := time.ParseDuration(c.SessionMaxAge)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// EncoderTimeoutDuration parses EncoderTimeout. Returns 10s if unset or invalid.
func (c *Config) EncoderTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.EncoderTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// StatsIntervalDuration parses StatsInterval. Returns 1m if unset or invalid.
func (c *Config) StatsIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.StatsInterval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// StatsRetentionDuration parses StatsRetention. Returns 7d if unset or invalid.
func (c *Config) StatsRetentionDuration() time.Duration {
	d, err := time.ParseDuration(c.StatsRetention)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// Listen returns the host:port the HTTP server binds.
func (c *Config) Listen() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Endpoint returns the public host:port peers connect to.
func (c *Config) Endpoint() string {
	return net.JoinHostPort(c.WGHost, strconv.Itoa(c.WGPort))
}

// DNSServers splits WGDefaultDNS into a trimmed list.
func (c *Config) DNSServers() []string {
	parts := strings.Split(c.WGDefaultDNS, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// AllowedIPsList splits WGAllowedIPs into a trimmed list.
func (c *Config) AllowedIPsList() []string {
	parts := strings.Split(c.WGAllowedIPs, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// UpdateAvailable reports whether LatestRelease names a version different
// from the running build. Unset LatestRelease always reports false.
func (c *Config) UpdateAvailable() bool {
	if c.LatestRelease == "" {
		return false
	}
	return c.LatestRelease != brand.Version
}

// EncoderArgv splits EncoderCommand into an argv slice. The command is never
// passed through a shell; arguments with embedded spaces are not supported.
func (c *Config) EncoderArgv() []string {
	return strings.Fields(c.EncoderCommand)
}
