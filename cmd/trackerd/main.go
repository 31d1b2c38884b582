// Package main is the entry point for the local tracker daemon: the process
// that owns the sqlite cache, runs library scans, and serves the WebSocket
// endpoint the UI connects to.
package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mhalvorsen/achievo/internal/catalog/steamweb"
	"github.com/mhalvorsen/achievo/internal/daemon"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	port := 8091
	if portStr := os.Getenv("PORT"); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", portStr))
			os.Exit(1)
		}
	}

	dbPath := "data/achievo.db"
	if envDB := os.Getenv("DB_PATH"); envDB != "" {
		dbPath = envDB
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(dbPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// JWT_SECRET verifies session tokens from the identity provider; it
	// must match the sync server's secret.
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	cloudURL := os.Getenv("CLOUD_URL")
	if cloudURL == "" {
		cloudURL = "http://localhost:8090"
	}

	// Steam Web API credentials for the catalog client.
	apiKey := os.Getenv("STEAM_API_KEY")
	steamID := os.Getenv("STEAM_ID")
	if apiKey == "" || steamID == "" {
		logger.Error("STEAM_API_KEY and STEAM_ID are required")
		os.Exit(1)
	}

	cfg := daemon.Config{
		Port:      port,
		DBPath:    dbPath,
		JWTSecret: jwtSecret,
		CloudURL:  cloudURL,
	}

	d, err := daemon.New(cfg, steamweb.New(apiKey, steamID), logger)
	if err != nil {
		logger.Error("failed to create daemon", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := d.Start(); err != nil {
		logger.Error("daemon error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
