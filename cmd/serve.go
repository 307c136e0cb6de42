package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"peergate.dev/peergate/internal/api"
	"peergate.dev/peergate/internal/brand"
	"peergate.dev/peergate/internal/config"
	"peergate.dev/peergate/internal/logging"
	"peergate.dev/peergate/internal/metrics"
	"peergate.dev/peergate/internal/peer"
	"peergate.dev/peergate/internal/profile"
	"peergate.dev/peergate/internal/stats"
	"peergate.dev/peergate/internal/tunnel"
)

// RunServe boots the console: load config, open the peer registry, attach the
// data plane, then serve HTTP until SIGINT/SIGTERM.
func RunServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = parseLogLevel(cfg.LogLevel)
	logCfg.JSON = cfg.LogJSON
	logger := logging.New(logCfg)
	logging.SetDefault(logger)

	logger.Info("Starting "+brand.Name, "version", brand.Version)

	if !cfg.RequiresPassword() {
		logger.Warn("No PASSWORD or PASSWORD_HASH configured, console is open to anyone who can reach it")
	}
	if cfg.WGHost == "" {
		logger.Warn("WG_HOST is not set, profile export will fail until it is configured")
	}

	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	store, err := peer.NewStore(
		filepath.Join(cfg.StateDir, "peers.json"),
		cfg.WGDefaultAddress,
		peer.Tunables{
			Jc:   cfg.JC,
			Jmin: cfg.JMin,
			Jmax: cfg.JMax,
			S1:   cfg.S1,
			S2:   cfg.S2,
			H1:   cfg.H1,
			H2:   cfg.H2,
			H3:   cfg.H3,
			H4:   cfg.H4,
		},
		logger,
	)
	if err != nil {
		return fmt.Errorf("open peer registry: %w", err)
	}

	device := tunnel.New(cfg.WGDevice, cfg.WGPort, cfg.WGSync, logger)
	defer device.Close()

	// Converge the device on persisted peers before taking traffic.
	store.SetSyncer(device)
	store.Resync()

	var encoder profile.Encoder = profile.ZlibEncoder{}
	if argv := cfg.EncoderArgv(); len(argv) > 0 {
		encoder = &profile.ExecEncoder{Argv: argv}
		logger.Info("Using external profile encoder", "command", argv[0])
	}

	profiles := profile.NewService(store, profile.Settings{
		Host:       cfg.WGHost,
		Port:       cfg.WGPort,
		DNS:        cfg.DNSServers(),
		MTU:        cfg.WGMTU,
		AllowedIPs: cfg.AllowedIPsList(),
		Keepalive:  cfg.WGPersistentKeepalive,
	}, encoder, cfg.EncoderTimeoutDuration(), logger)

	// Traffic history is best-effort: a broken stats DB must not keep the
	// console down.
	statsOpts := stats.DefaultOptions(filepath.Join(cfg.StateDir, "stats.db"))
	statsOpts.Interval = cfg.StatsIntervalDuration()
	statsOpts.Retention = cfg.StatsRetentionDuration()
	history, err := stats.NewRecorder(statsOpts, store, device, logger)
	if err != nil {
		logger.Warn("Traffic history disabled", "error", err)
		history = nil
	}

	server, err := api.NewServer(api.ServerOptions{
		Config:   cfg,
		Peers:    store,
		Profiles: profiles,
		History:  history,
		Device:   device,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("init api server: %w", err)
	}

	collector := metrics.NewCollector(store, device, server.Sessions(), logger, 15*time.Second)
	go collector.Start()
	defer collector.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server.Sessions().StartCleanup(ctx, time.Hour)
	server.RateLimiter().StartCleanup(ctx, 10*time.Minute, time.Hour)
	if history != nil {
		defer history.Close()
		go history.Run(ctx)
	}

	listener, err := net.Listen("tcp", cfg.Listen())
	if err != nil {
		return fmt.Errorf("bind %s: %w", cfg.Listen(), err)
	}

	serverConfig := api.DefaultServerConfig()
	srv := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: serverConfig.ReadHeaderTimeout,
		ReadTimeout:       serverConfig.ReadTimeout,
		WriteTimeout:      serverConfig.WriteTimeout,
		IdleTimeout:       serverConfig.IdleTimeout,
		MaxHeaderBytes:    serverConfig.MaxHeaderBytes,
	}

	go func() {
		logger.Info("Console listening", "addr", cfg.Listen())
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func parseLogLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
