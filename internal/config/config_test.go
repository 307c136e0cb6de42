package config

import (
	"testing"
	"time"
)

// pinEnv clears every variable Load reads so ambient shell state cannot
// leak into assertions.
func pinEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HOST", "PORT", "PASSWORD", "PASSWORD_HASH", "SESSION_MAX_AGE",
		"LANG", "UI_TRAFFIC_STATS", "UI_CHART_TYPE", "LATEST_RELEASE",
		"WEB_ROOT", "STATE_DIR", "WG_HOST", "WG_PORT", "WG_DEVICE",
		"WG_MTU", "WG_DEFAULT_DNS", "WG_DEFAULT_ADDRESS", "WG_ALLOWED_IPS",
		"WG_PERSISTENT_KEEPALIVE", "WG_SYNC", "JC", "JMIN", "JMAX",
		"S1", "S2", "H1", "H2", "H3", "H4", "ENCODER_COMMAND",
		"ENCODER_TIMEOUT", "STATS_INTERVAL", "STATS_RETENTION",
		"LOG_LEVEL", "LOG_JSON",
	} {
		t.Setenv(key, "")
	}
	// Viper treats empty env vars as unset, so the blanket clear only
	// neutralizes ambient values and every key falls back to its default.
}

func TestLoadDefaults(t *testing.T) {
	pinEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 51821 {
		t.Errorf("Port = %d, want 51821", cfg.Port)
	}
	if cfg.WGDevice != "wg0" {
		t.Errorf("WGDevice = %q, want wg0", cfg.WGDevice)
	}
	if cfg.Lang != "en" {
		t.Errorf("Lang = %q, want en", cfg.Lang)
	}
	if cfg.RequiresPassword() {
		t.Error("RequiresPassword should be false with no credential")
	}
	if cfg.SessionMaxAgeDuration() != 0 {
		t.Error("SessionMaxAgeDuration should be 0 by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	pinEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("PASSWORD", "hunter2")
	t.Setenv("WG_HOST", "vpn.example.com")
	t.Setenv("UI_TRAFFIC_STATS", "true")
	t.Setenv("SESSION_MAX_AGE", "720h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if !cfg.RequiresPassword() {
		t.Error("RequiresPassword should be true")
	}
	if cfg.WGHost != "vpn.example.com" {
		t.Errorf("WGHost = %q", cfg.WGHost)
	}
	if !cfg.UITrafficStats {
		t.Error("UITrafficStats should be true")
	}
	if cfg.SessionMaxAgeDuration() != 720*time.Hour {
		t.Errorf("SessionMaxAgeDuration = %v, want 720h", cfg.SessionMaxAgeDuration())
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port out of range", "PORT", "99999"},
		{"bad chart type", "UI_CHART_TYPE", "7"},
		{"bad session max age", "SESSION_MAX_AGE", "not-a-duration"},
		{"bad address template", "WG_DEFAULT_ADDRESS", "10.8.0.0/24"},
		{"bad stats interval", "STATS_INTERVAL", "soon"},
		{"bad log level", "LOG_LEVEL", "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pinEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("Load should fail with %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestEndpoint(t *testing.T) {
	cfg := &Config{WGHost: "vpn.example.com", WGPort: 51820}
	if got := cfg.Endpoint(); got != "vpn.example.com:51820" {
		t.Errorf("Endpoint = %q", got)
	}
}

func TestListen(t *testing.T) {
	cfg := &Config{Host: "127.0.0.1", Port: 51821}
	if got := cfg.Listen(); got != "127.0.0.1:51821" {
		t.Errorf("Listen = %q", got)
	}
}

func TestDNSServers(t *testing.T) {
	cfg := &Config{WGDefaultDNS: "1.1.1.1, 8.8.8.8 ,"}
	got := cfg.DNSServers()
	if len(got) != 2 || got[0] != "1.1.1.1" || got[1] != "8.8.8.8" {
		t.Errorf("DNSServers = %v", got)
	}
}

func TestUpdateAvailable(t *testing.T) {
	cfg := &Config{}
	if cfg.UpdateAvailable() {
		t.Error("UpdateAvailable should be false with no LatestRelease")
	}

	cfg.LatestRelease = "definitely-not-the-running-version"
	if !cfg.UpdateAvailable() {
		t.Error("UpdateAvailable should be true when versions differ")
	}
}

func TestEncoderArgv(t *testing.T) {
	cfg := &Config{EncoderCommand: ""}
	if len(cfg.EncoderArgv()) != 0 {
		t.Error("empty command should yield empty argv")
	}

	cfg.EncoderCommand = "python3 /opt/encode.py --compact"
	argv := cfg.EncoderArgv()
	if len(argv) != 3 || argv[0] != "python3" || argv[2] != "--compact" {
		t.Errorf("EncoderArgv = %v", argv)
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := &Config{}
	if cfg.EncoderTimeoutDuration() != 10*time.Second {
		t.Error("EncoderTimeoutDuration fallback wrong")
	}
	if cfg.StatsIntervalDuration() != time.Minute {
		t.Error("StatsIntervalDuration fallback wrong")
	}
	if cfg.StatsRetentionDuration() != 168*time.Hour {
		t.Error("StatsRetentionDuration fallback wrong")
	}
}
