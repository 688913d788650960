package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/garnizeh/experts/api"
	"github.com/garnizeh/experts/internal/backend"
	"github.com/garnizeh/experts/internal/config"
	"github.com/garnizeh/experts/internal/experts"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	log.Printf("Starting experts server version %s (built at %s)", version, buildTime)

	level := slog.LevelInfo
	if config.IsDevelopment() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	api.SetLogger(logger)
	experts.SetLogger(logger)

	ctx := context.Background()

	// Open database, migrations and query backend
	b, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open backend: %v", err)
	}
	log.Printf("Using %s backend (cost ceiling %d bytes)", cfg.Finder.Backend, cfg.Finder.CostCeilingBytes)

	handler := api.SetupRoutes(cfg, version, buildTime, b.Repo, b.Finder)

	// Lookups may run up to the finder timeout, so writes get that much room.
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout + cfg.Finder.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if err := b.Close(); err != nil {
		log.Printf("Error closing backend: %v", err)
	}

	log.Println("Server exited")
}
