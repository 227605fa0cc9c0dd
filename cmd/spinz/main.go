package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fadedpez/spinz/internal/config"
	"github.com/fadedpez/spinz/internal/logging"
	"github.com/fadedpez/spinz/internal/server"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel))
	if !cfg.IsDevelopment() {
		logger = logging.NewLoggerWithWriter(os.Stdout, logging.ParseLevel(cfg.LogLevel), true)
	}
	logging.Default = logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create and start the server
	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	logger.Info("spinz is running on :%s with the %s store. Press CTRL-C to exit.", cfg.ServerPort, cfg.StorageDriver)

	// Wait for interrupt signal to gracefully shutdown
	<-ctx.Done()

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown: %v", err)
		os.Exit(1)
	}
}
