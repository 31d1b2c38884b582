// Package daemon wires the local tracker process: the sqlite cache, the scan
// engine, the cloud reconciler and the WebSocket endpoint the UI connects
// to. Like the server package, it is the composition root; trackerd's main
// just builds a Config and calls Start.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mhalvorsen/achievo/internal/auth"
	"github.com/mhalvorsen/achievo/internal/catalog"
	"github.com/mhalvorsen/achievo/internal/cloud"
	"github.com/mhalvorsen/achievo/internal/middleware"
	"github.com/mhalvorsen/achievo/internal/repository/sqlite"
	"github.com/mhalvorsen/achievo/internal/scan"
	"github.com/mhalvorsen/achievo/internal/transport"
)

// Config holds the daemon's configuration.
type Config struct {
	Port      int
	DBPath    string
	JWTSecret string
	CloudURL  string
}

// Daemon is the local tracker process and the dependencies it owns.
type Daemon struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqlite.DB
}

// New assembles the daemon around the given catalog client. The catalog
// client is injected rather than built here so the daemon doesn't care
// which provider backs it.
func New(cfg Config, catalogClient catalog.Client, logger *slog.Logger) (*Daemon, error) {
	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token verifier: %w", err)
	}

	engine := scan.New(catalogClient, db, logger)
	reconciler := cloud.NewReconciler(db, cloud.New(cfg.CloudURL), logger)

	wsHandler := transport.NewHandler(transport.Deps{
		Verifier: verifier,
		Store:    db,
		Engine:   engine,
		Cloud:    reconciler,
		Logger:   logger,
	})

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(logger))
	router.Handle("/ws", wsHandler)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &Daemon{router: router, config: cfg, logger: logger, db: db}, nil
}

// Start runs the daemon until SIGINT/SIGTERM, then shuts down gracefully and
// closes the cache database.
func (d *Daemon) Start() error {
	defer d.db.Close()

	srv := &http.Server{
		// Local daemon: bind loopback only, the UI connects from the
		// same machine.
		Addr:        fmt.Sprintf("127.0.0.1:%d", d.config.Port),
		Handler:     d.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		d.logger.Info("tracker daemon starting",
			slog.Int("port", d.config.Port),
			slog.String("database", d.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-quit:
		d.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		d.logger.Info("daemon stopped gracefully")
	}
	return nil
}
