// Package main provides the sitrep-mcp binary, an MCP server that
// exposes incident reports to AI agents over stdio.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/sitrep/pkg/cache"
	"github.com/ormasoftchile/sitrep/pkg/config"
	"github.com/ormasoftchile/sitrep/pkg/engine"
	"github.com/ormasoftchile/sitrep/pkg/irm"
	smcp "github.com/ormasoftchile/sitrep/pkg/mcp"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// stdout carries the MCP protocol, so every log line goes to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv(config.EnvConfigFile))
	if err != nil {
		return err
	}
	if err := cfg.Check(); err != nil {
		return err
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}

	client := irm.New(cfg.GrafanaURL, cfg.Token)
	client.HTTPClient.Timeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	client.Retry.MaxAttempts = cfg.MaxAttempts
	client.Logger = logger

	store, err := cache.New(cfg.CacheDir, logger)
	if err != nil {
		logger.Warn("cache unavailable, fetching without it", "dir", cfg.CacheDir, "err", err)
		store = nil
	}

	eng := engine.New(client, store)
	eng.Logger = logger
	eng.SLADays = cfg.SLADays
	eng.Concurrency = cfg.FetchConcurrency
	eng.EnrichActivity = true

	return server.ServeStdio(smcp.NewServer(version, eng))
}
