// Package main is the entry point for the sync server: the remote canonical
// store that daemons push snapshots to and pull them from. Configuration
// comes from the environment; all logic lives in internal packages.
package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/mhalvorsen/achievo/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	port := 8090
	if portStr := os.Getenv("PORT"); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", portStr))
			os.Exit(1)
		}
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	// JWT_SECRET must match the identity provider that issues session
	// tokens. Generate with: openssl rand -hex 32
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	// ADMIN_ACCOUNTS is a comma-separated allowlist of account ids that
	// may call the admin endpoints. Empty means no admins.
	var admins []string
	for _, id := range strings.Split(os.Getenv("ADMIN_ACCOUNTS"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			admins = append(admins, id)
		}
	}

	cfg := server.Config{
		Port:          port,
		DatabaseURL:   databaseURL,
		JWTSecret:     jwtSecret,
		AdminAccounts: admins,
	}

	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
