package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vrarcade/kiosk/internal/agent"
	"github.com/vrarcade/kiosk/internal/api"
	"github.com/vrarcade/kiosk/internal/config"
	"github.com/vrarcade/kiosk/internal/monitor"
	"github.com/vrarcade/kiosk/internal/rfid"
	"github.com/vrarcade/kiosk/internal/storage/sqlite"
	"github.com/vrarcade/kiosk/internal/websocket"
	"github.com/vrarcade/kiosk/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting VR kiosk agent",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Create SQLite storage
	store, err := sqlite.NewStore(cfg.Storage.SQLitePath, log)
	if err != nil {
		log.Error("Failed to create SQLite storage", logger.Error(err))
		os.Exit(1)
	}
	defer store.Close()
	log.Info("Using SQLite storage", logger.String("path", cfg.Storage.SQLitePath))

	sessStore := sqlite.NewSessionStorage(store.DB(), log)
	cardStore := sqlite.NewRFIDStorage(store.DB(), log)

	// Create WebSocket server
	wsServer := websocket.NewServer(log)

	// Start WebSocket server
	go wsServer.Run()

	// Create hardware telemetry monitor
	mon := monitor.New(cfg.Monitor, log)

	// Create RFID reader
	var reader rfid.Reader
	if cfg.RFID.Simulated {
		reader = rfid.NewSimulatedReader(2*time.Second, log)
		log.Info("Using simulated RFID reader")
	}

	// Create the agent service (wires itself into the WebSocket server)
	agentService := agent.NewService(cfg, wsServer, mon, reader, store, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := agentService.Start(ctx); err != nil {
		log.Error("Failed to start agent service", logger.Error(err))
		os.Exit(1)
	}

	// Create API router
	router := api.NewRouter(
		agentService,
		agentService.Catalog(),
		mon,
		sessStore,
		cardStore,
		cfg,
		log,
		wsServer,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", server.Addr), logger.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	// Stop background services first
	log.Info("Stopping agent service...")
	agentService.Stop()
	log.Info("Agent service stopped.")

	// Cancel the main context
	cancel()

	// Shutdown the HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	} else {
		log.Info("HTTP server shutdown complete")
	}

	log.Info("Server fully stopped")
}
