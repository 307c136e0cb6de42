// Package brand provides centralized product identity for the console.
// Forks and white-label builds change brand.json, not code.
//
// The identity is loaded from brand.json at compile time via go:embed so
// packaging scripts can read the same file.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information
type Brand struct {
	Name            string `json:"name"`
	LowerName       string `json:"lowerName"`
	BinaryName      string `json:"binaryName"`
	Vendor          string `json:"vendor"`
	Website         string `json:"website"`
	Repository      string `json:"repository"`
	Description     string `json:"description"`
	Tagline         string `json:"tagline"`
	ConfigEnvPrefix string `json:"configEnvPrefix"`
	DefaultStateDir string `json:"defaultStateDir"`
	DefaultWebDir   string `json:"defaultWebDir"`
	DefaultLogDir   string `json:"defaultLogDir"`
	ServiceName     string `json:"serviceName"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	BinaryName = b.BinaryName
	Vendor = b.Vendor
	Website = b.Website
	Repository = b.Repository
	Description = b.Description
	Tagline = b.Tagline
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultStateDir = b.DefaultStateDir
	DefaultWebDir = b.DefaultWebDir
	DefaultLogDir = b.DefaultLogDir
	ServiceName = b.ServiceName
}

// Exported variables for convenience
var (
	Name            string
	LowerName       string
	BinaryName      string
	Vendor          string
	Website         string
	Repository      string
	Description     string
	Tagline         string
	ConfigEnvPrefix string
	DefaultStateDir string
	DefaultWebDir   string
	DefaultLogDir   string
	ServiceName     string

	// Version is set at build time via -ldflags
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Get returns the full Brand struct
func Get() Brand {
	return b
}

// UserAgent returns a User-Agent string for HTTP requests
func UserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return Name + "/" + version
}

// GetStateDir returns the state directory, checking env vars first.
// Priority: PEERGATE_STATE_DIR > PEERGATE_PREFIX/state > DefaultStateDir
func GetStateDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_STATE_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "state")
	}
	return DefaultStateDir
}

// GetWebDir returns the directory static UI assets are served from.
// Priority: PEERGATE_WEB_DIR > PEERGATE_PREFIX/www > DefaultWebDir
func GetWebDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_WEB_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "www")
	}
	return DefaultWebDir
}

// GetLogDir returns the log directory, checking env vars first.
// Priority: PEERGATE_LOG_DIR > PEERGATE_PREFIX/log > DefaultLogDir
func GetLogDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_LOG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "log")
	}
	return DefaultLogDir
}
