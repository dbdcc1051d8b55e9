/*
Package main is the entry point for the CallRelay server.

It is responsible for loading configuration, initializing the global logging system,
opening the optional call record database, starting the WebSocket hub (Chat Manager),
setting up the HTTP server, and gracefully handling operating system interrupt signals
(SIGINT, SIGTERM) to ensure a smooth server shutdown.
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

	"callrelay/internal/app/calllog"
	"callrelay/internal/app/chat"
	"callrelay/internal/app/db"
	"callrelay/internal/configs"
	"callrelay/internal/handler"
	"callrelay/internal/pkg/logx"
)

func main() {
	// Load configuration from defaults, config.yaml and environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("registration_policy", cfg.RegistrationPolicy).
		Dur("stale_after", cfg.StaleAfter).
		Dur("ring_timeout", cfg.RingTimeout).
		Bool("database", cfg.DatabaseDSN != "").
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Call records go to postgres when a database is configured, otherwise they stay in memory
	var store calllog.Store = calllog.NewMemoryStore()
	if cfg.DatabaseDSN != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			logx.Fatal(err, "Failed to connect to database")
		}
		defer pool.Close()

		store = calllog.NewPostgresStore(pool)
	}

	callLog := calllog.NewLog(store)

	// Initialize Chat Manager
	manager := chat.NewManager(cfg, callLog)

	// Setup HTTP server and routes
	router := handler.Router(&handler.AppDeps{
		Manager: manager,
		Config:  cfg,
		CallLog: callLog,
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
		logx.Info(fmt.Sprintf("CallRelay Server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	manager.Shutdown()
	callLog.Close()

	logx.Info("Server gracefully stopped.")
}
