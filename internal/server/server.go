// Package server wires the sync server: router, middleware, routes, and the
// dependency chain from the postgres store up through services to handlers.
// main.go stays minimal — it builds a Config and calls Start.
package server

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
	"github.com/mhalvorsen/achievo/internal/handler"
	"github.com/mhalvorsen/achievo/internal/middleware"
	"github.com/mhalvorsen/achievo/internal/repository/postgres"
	"github.com/mhalvorsen/achievo/internal/service"
	"github.com/mhalvorsen/achievo/internal/shortid"
)

// Config holds everything the sync server needs from the environment.
type Config struct {
	Port          int
	DatabaseURL   string
	JWTSecret     string
	AdminAccounts []string
}

// Server is the sync server and the dependencies it owns. The postgres pool
// is owned here and closed on shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *postgres.DB
}

// New assembles the dependency chain: postgres store, token verifier,
// services, handlers, routes.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func (s *Server) setupRoutes() error {
	verifier, err := auth.NewVerifier(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token verifier: %w", err)
	}

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	shortIDs := shortid.NewService(s.db)
	syncService := service.NewSyncService(s.db, s.config.AdminAccounts, s.logger)
	profileService := service.NewProfileService(s.db, s.db, shortIDs, s.logger)

	syncHandler := handler.NewSyncHandler(syncService, profileService)
	guestHandler := handler.NewGuestHandler(profileService)
	adminHandler := handler.NewAdminHandler(syncService, profileService)

	s.router.Route("/api", func(r chi.Router) {
		// Guest views are the one public read path.
		r.Get("/guest/{shortID}", guestHandler.Library)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSession(verifier))

			r.Route("/sync", func(r chi.Router) {
				r.Get("/status", syncHandler.Status)
				r.Get("/download", syncHandler.Download)
				r.Post("/upload", syncHandler.Upload)
				r.Delete("/", syncHandler.Delete)
			})
			r.Post("/games/batch", syncHandler.BatchGames)

			r.Route("/admin", func(r chi.Router) {
				r.Use(adminHandler.RequireAdmin)
				r.Delete("/accounts/{accountID}", adminHandler.DeleteAccount)
			})
		})
	})

	return nil
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully and
// closes the database pool.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second, // uploads of large libraries take a while
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("sync server starting", slog.Int("port", s.config.Port))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
