package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"peergate.dev/peergate/internal/config"
)

// RunCheck validates the environment configuration and reports what a serve
// run would use. It never touches the peer registry or the tunnel device.
func RunCheck(verbose bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	fmt.Println("Configuration valid!")
	fmt.Printf("Listen: %s\n", cfg.Listen())
	if cfg.WGHost == "" {
		fmt.Println("Endpoint: NOT SET (profile export will fail)")
	} else {
		fmt.Printf("Endpoint: %s\n", cfg.Endpoint())
	}
	fmt.Printf("Auth: %s\n", describeAuth(cfg))
	fmt.Printf("DNS servers: %d\n", len(cfg.DNSServers()))
	fmt.Printf("Allowed IPs: %d\n", len(cfg.AllowedIPsList()))

	if verbose {
		fmt.Println()
		printSettings(cfg)
	}

	return nil
}

func describeAuth(cfg *config.Config) string {
	switch {
	case cfg.PasswordHash != "":
		return "password set (bcrypt hash)"
	case cfg.Password != "":
		return "password set (plaintext)"
	default:
		return "NOT SET (open access)"
	}
}

func printSettings(cfg *config.Config) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)

	fmt.Fprintln(w, "SETTING\tVALUE")
	fmt.Fprintf(w, "listen\t%s\n", cfg.Listen())
	fmt.Fprintf(w, "device\t%s\n", cfg.WGDevice)
	fmt.Fprintf(w, "device sync\t%s\n", onOff(cfg.WGSync))
	fmt.Fprintf(w, "subnet template\t%s\n", cfg.WGDefaultAddress)
	fmt.Fprintf(w, "mtu\t%d\n", cfg.WGMTU)
	fmt.Fprintf(w, "keepalive\t%ds\n", cfg.WGPersistentKeepalive)
	fmt.Fprintf(w, "dns\t%s\n", strings.Join(cfg.DNSServers(), ", "))
	fmt.Fprintf(w, "allowed ips\t%s\n", strings.Join(cfg.AllowedIPsList(), ", "))
	fmt.Fprintf(w, "obfuscation pins\t%s\n", describeTunables(cfg))
	fmt.Fprintf(w, "encoder\t%s\n", describeEncoder(cfg))
	fmt.Fprintf(w, "session max age\t%s\n", cfg.SessionMaxAgeDuration())
	fmt.Fprintf(w, "stats interval\t%s\n", cfg.StatsIntervalDuration())
	fmt.Fprintf(w, "stats retention\t%s\n", cfg.StatsRetentionDuration())
	fmt.Fprintf(w, "web root\t%s\n", cfg.WebRoot)
	fmt.Fprintf(w, "state dir\t%s\n", cfg.StateDir)
	fmt.Fprintf(w, "peer registry\t%s\n", describeRegistry(cfg))

	w.Flush()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// describeTunables reports which obfuscation parameters are pinned from the
// environment. Unpinned parameters are generated on first run.
func describeTunables(cfg *config.Config) string {
	pinned := 0
	for _, v := range []int{cfg.JC, cfg.JMin, cfg.JMax, cfg.S1, cfg.S2} {
		if v != 0 {
			pinned++
		}
	}
	for _, v := range []uint32{cfg.H1, cfg.H2, cfg.H3, cfg.H4} {
		if v != 0 {
			pinned++
		}
	}
	if pinned == 0 {
		return "none (generated at first run)"
	}
	return fmt.Sprintf("%d of 9 pinned", pinned)
}

func describeEncoder(cfg *config.Config) string {
	if argv := cfg.EncoderArgv(); len(argv) > 0 {
		return "external: " + argv[0]
	}
	return "native zlib"
}

func describeRegistry(cfg *config.Config) string {
	path := filepath.Join(cfg.StateDir, "peers.json")
	if _, err := os.Stat(path); err != nil {
		return path + " (will be created)"
	}
	return path
}
