// Package api provides the HTTP API server for the coordinator.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gridforge/gpumesh/internal/api/handlers"
	"github.com/gridforge/gpumesh/internal/api/middleware"
	"github.com/gridforge/gpumesh/internal/auth"
	"github.com/gridforge/gpumesh/internal/engine"
	"github.com/gridforge/gpumesh/internal/statsfeed"
	"github.com/gridforge/gpumesh/internal/store"
	"github.com/gridforge/gpumesh/pkg/config"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// Server represents the HTTP API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	engine     *engine.Engine
	store      store.Store
	hub        *statsfeed.Hub
	auth       *auth.Service
	config     *config.Config
	logger     *slog.Logger
}

// NewServer creates a new API server. st and hub may be nil when the
// corresponding collaborator is disabled.
func NewServer(cfg *config.Config, eng *engine.Engine, st store.Store, hub *statsfeed.Hub, authSvc *auth.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine: eng,
		store:  st,
		hub:    hub,
		auth:   authSvc,
		config: cfg,
		logger: logger,
	}

	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// Health check (no auth required).
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		handlers.WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": Version,
		})
	})

	statsHandler := handlers.NewStatsHandler(s.engine, s.hub, s.logger)

	// Live stats feed: no auth, browsers cannot set headers on the upgrade.
	r.Get("/v1/stats/stream", statsHandler.Stream)

	r.Route("/v1", func(r chi.Router) {
		authMiddleware := middleware.NewAuthMiddleware(s.auth, s.logger)
		r.Use(authMiddleware.Authenticate)

		nodesHandler := handlers.NewNodesHandler(s.engine, s.store, s.logger)
		r.Route("/nodes", func(r chi.Router) {
			r.Post("/", nodesHandler.Register)
			r.Get("/", nodesHandler.List)
			r.Get("/{id}", nodesHandler.Get)
			r.Post("/{id}/heartbeat", nodesHandler.Heartbeat)
		})
		r.Get("/partitions", nodesHandler.Partitions)

		tasksHandler := handlers.NewTasksHandler(s.engine, s.store, s.logger)
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", tasksHandler.Submit)
			r.Get("/", tasksHandler.ListRecent)
			r.Get("/{id}", tasksHandler.Get)
			r.Post("/{id}/result", tasksHandler.SubmitResult)
		})

		r.Get("/stats", statsHandler.Get)
	})

	s.router = r
}

// Start starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.APIHost, s.config.APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router returns the underlying router, for tests.
func (s *Server) Router() chi.Router {
	return s.router
}
