// Package main provides the MCP server entry point for coursemap.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bull/coursemap/internal/app"
	"github.com/bull/coursemap/internal/config"
	mcpserver "github.com/bull/coursemap/internal/mcp"
)

func main() {
	configPath := flag.String("config", "", "path to coursemap.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// stdout carries the MCP stream in stdio mode, so logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	server := mcpserver.NewServer(&mcpserver.Config{
		Answers:  a.Answers,
		Detector: a.Detector,
		Catalog:  a.Store,
		Remover:  a.Pipeline,
	})
	mux := mcpserver.NewMux(server, a)
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	if cfg.Server.Mode == "http" {
		logger.Info("Starting HTTP server", "addr", addr, "mcp", "/mcp", "health", "/health")
		errCh := make(chan error, 1)
		go func() { errCh <- httpServer.ListenAndServe() }()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		return httpServer.Shutdown(shutdownCtx)
	}

	// Stdio mode still serves /health for local testing.
	go func() {
		logger.Info("Starting health server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Health server error", "error", err)
		}
	}()
	defer httpServer.Close()

	logger.Info("Starting coursemap MCP server (stdio mode)")
	return server.Run(ctx)
}
