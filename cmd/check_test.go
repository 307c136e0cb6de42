package cmd

import (
	"strings"
	"testing"
)

func TestRunCheck_ValidEnv(t *testing.T) {
	t.Setenv("STATE_DIR", t.TempDir())
	t.Setenv("WEB_ROOT", t.TempDir())
	t.Setenv("WG_HOST", "vpn.example.com")

	if err := RunCheck(false); err != nil {
		t.Errorf("RunCheck() error = %v, want nil", err)
	}
}

func TestRunCheck_InvalidEnv(t *testing.T) {
	t.Setenv("STATE_DIR", t.TempDir())
	t.Setenv("WG_DEFAULT_ADDRESS", "10.8.0.1")

	err := RunCheck(false)
	if err == nil {
		t.Fatal("RunCheck() error = nil, want validation failure")
	}
	if !strings.Contains(err.Error(), "WG_DEFAULT_ADDRESS") {
		t.Errorf("error %q does not name the offending key", err)
	}
}

func TestRunCheck_Verbose(t *testing.T) {
	t.Setenv("STATE_DIR", t.TempDir())
	t.Setenv("WEB_ROOT", t.TempDir())

	if err := RunCheck(true); err != nil {
		t.Errorf("RunCheck() error = %v, want nil", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"error", "ERROR"},
		{"bogus", "INFO"},
	}

	for _, tt := range tests {
		if got := parseLogLevel(tt.in).String(); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
