package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"hap-ble-bridge/internal/bridge"
	"hap-ble-bridge/internal/hapble"
	"hap-ble-bridge/internal/pairing"
	"hap-ble-bridge/internal/store"
	"hap-ble-bridge/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("hap-ble-bridge starting", "version", version, "accessories", len(cfg.Accessories))

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	identity, err := pairing.LoadIdentity(db)
	if err != nil {
		logger.Error("load controller identity", "err", err)
		os.Exit(1)
	}
	logger.Info("controller identity loaded", "pairing_id", identity.PairingID)

	central := hapble.NewCentral(logger)
	if err := central.Enable(); err != nil {
		logger.Error("enable bluetooth", "err", err)
		os.Exit(1)
	}

	events := bridge.NewEventBus(logger)
	br := bridge.New(hapble.NewTransport(db, identity, logger), events, cfg.bridgeConfigs(), logger)
	central.OnDiscover(func(p *hapble.Peripheral) {
		br.HandleDiscovered(p)
	})

	// Start automation engine (no-op when built with no_automation tag).
	auto, autoWebOpts := initAutomation(br, cfg, logger)

	var webOpts []web.ServerOption
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, web.WithVersion(version))
	webOpts = append(webOpts, autoWebOpts...)

	webServer := web.NewServer(br, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	// Start MQTT bridge (no-op when built with no_mqtt tag).
	mqtt := initMQTT(br, cfg, logger)

	scanCtx, stopScan := context.WithCancel(context.Background())
	var scanWG sync.WaitGroup
	scanWG.Add(1)
	go func() {
		defer scanWG.Done()
		runScanner(scanCtx, central, cfg.scanRestart(), logger)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	stopScan()
	scanWG.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	auto.Stop()
	mqtt.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	br.Stop()

	logger.Info("goodbye")
}

// runScanner keeps the adapter scanning until ctx is done, restarting after
// a pause when the scan fails.
func runScanner(ctx context.Context, central *hapble.Central, restart time.Duration, logger *slog.Logger) {
	for {
		err := central.Scan(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn("scan stopped, restarting", "err", err, "in", restart)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(restart):
		}
	}
}
