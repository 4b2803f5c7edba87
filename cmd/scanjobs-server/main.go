// Package main provides the HTTP job server for scanjobs.
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

	"github.com/raphaelgruber/scanjobs/internal/app"
	"github.com/raphaelgruber/scanjobs/internal/config"
	"github.com/raphaelgruber/scanjobs/internal/ocr/tesseract"
	"github.com/raphaelgruber/scanjobs/internal/server"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", os.Getenv("SCANJOBS_CONFIG"), "path to YAML config")
	addr := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ServerAddr = *addr
	}

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	logger.Info("scanjobs-server starting",
		"version", version,
		"addr", cfg.ServerAddr,
		"cache_dir", cfg.CacheDir,
		"language", cfg.Language,
		"tesseract", tesseract.Version(),
	)

	engine := tesseract.New(tesseract.WithTessdataDir(cfg.TessdataDir))
	a, err := app.New(cfg, engine, logger)
	if err != nil {
		logger.Error("failed to create job engine", "error", err)
		os.Exit(1)
	}
	a.Start()

	srv := server.New(a.Service, version, logger)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("event stream available", "url", fmt.Sprintf("ws://%s/events", cfg.ServerAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down server...", "signal", sig)

	// Ask running jobs to stop at their next checkpoint.
	if kinds := a.Service.CancelAll(); len(kinds) > 0 {
		logger.Info("cancelled running jobs", "kinds", kinds)
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv.Close()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := a.Close(ctx); err != nil {
		logger.Error("job bodies did not stop in time", "error", err)
	}
	logger.Info("server stopped")
}
