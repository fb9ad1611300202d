// CBETA MCP Server - A Model Context Protocol gateway for CBETA Online
// Exposes the CBETA search, catalog and reading API as MCP tools
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/olgasafonova/cbeta-mcp-server/internal/config"
	"github.com/olgasafonova/cbeta-mcp-server/internal/dependency"
	"github.com/olgasafonova/cbeta-mcp-server/tracing"
)

// recoverPanic logs a recovered panic instead of crashing
func recoverPanic(logger *slog.Logger, operation string) {
	if r := recover(); r != nil {
		logger.Error("Panic recovered",
			"operation", operation,
			"panic", r,
			"stack", string(debug.Stack()))
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is a fully wired server: configuration, logger and services.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	container *dependency.Container
	shutdown  func(context.Context) error
}

// bootstrap loads configuration, configures logging and tracing, and loads
// the tool registry. It runs once per process.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	// Logging goes to stderr; stdout carries the stdio MCP protocol
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	tcfg := tracing.DefaultConfig()
	tcfg.ServiceName = dependency.ServerName
	tcfg.ServiceVersion = dependency.ServerVersion
	shutdown, err := tracing.Setup(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	container, err := dependency.New(cfg, logger)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("wire services: %w", err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		container: container,
		shutdown:  shutdown,
	}, nil
}

// Close flushes pending spans
func (a *app) Close(ctx context.Context) {
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("Tracing shutdown failed", "error", err)
	}
}
