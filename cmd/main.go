/*
Package main is the entry point for the gridroom server.

It is responsible for loading configuration and the room topology, initializing the global logging system,
connecting to the SFU pool and the persistence backend, starting the event loop and the hub,
setting up the HTTP server, and gracefully handling operating system interrupt signals (SIGINT, SIGTERM)
to ensure a smooth server shutdown with a final state save.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gridroom/internal/app/hub"
	"gridroom/internal/app/loop"
	"gridroom/internal/app/persist"
	"gridroom/internal/app/sfu"
	"gridroom/internal/app/topology"
	"gridroom/internal/configs"
	"gridroom/internal/handler"
	"gridroom/internal/pkg/logx"
	"gridroom/internal/pkg/pow"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logx.InitGlobalLogger(cfg.Environment == "development", cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int("pow_difficulty", cfg.PowDifficulty).
		Str("persistence", cfg.PersistenceBackend).
		Int("sfu_servers", len(cfg.SFUServers)).
		Msg("Configuration loaded successfully")

	topo, err := topology.Load(cfg.TopologyFile)
	if err != nil {
		logx.Fatal(err, "Failed to load room topology", "path", cfg.TopologyFile)
	}

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := sfu.Dial(ctx, cfg.SFUServers)
	if err != nil {
		logx.Fatal(err, "Failed to connect to SFU servers")
	}
	defer pool.Close()

	backend, err := persist.Open(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open persistence backend")
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logx.Error(err, "Failed to close persistence backend")
		}
	}()

	// Start the event loop and the hub
	eventLoop := loop.New()
	go eventLoop.Run()

	h := hub.New(cfg, topo, eventLoop, pool, backend)
	h.Restore(ctx)
	h.Start()

	// Setup HTTP server and routes
	router := handler.Router(ctx, &handler.AppDeps{
		Hub:    h,
		Config: cfg,
		PoW:    pow.NewManager(ctx, cfg.PowDifficulty),
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("gridroom server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 10 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	h.Shutdown(shutdownCtx)
	eventLoop.Stop()

	logx.Info("Server gracefully stopped.")
}
