// Package server assembles the chi router and HTTP server for the API
// surface.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/atmoslabs/simbatch/internal/errors"
	"github.com/atmoslabs/simbatch/internal/server/handlers"
	"github.com/atmoslabs/simbatch/internal/server/middleware"
	"github.com/atmoslabs/simbatch/pkg/orchestrator"
)

// Server is the API HTTP server.
type Server struct {
	host   string
	port   int
	router chi.Router
	http   *http.Server
}

// New builds the router. health may be nil in tests that only exercise job
// routes.
func New(host string, port int, orch *orchestrator.Orchestrator, health *handlers.HealthManager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging(logger))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.Write(w, http.StatusNotFound, apperrors.CodeNotFound,
			"no such route", middleware.GetRequestID(req.Context()))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.Write(w, http.StatusMethodNotAllowed, apperrors.CodeMethodNotAllowed,
			"method not allowed", middleware.GetRequestID(req.Context()))
	})

	if health != nil {
		r.Get("/health", health.HealthHandler)
		r.Get("/version", health.VersionHandler)
	}

	jobs := handlers.NewJobs(orch, logger)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity)
		r.Post("/jobs", jobs.Submit)
		r.Get("/jobs", jobs.List)
		r.Get("/jobs/{id}", jobs.Get)
		r.Post("/jobs/{id}/cancel", jobs.Cancel)
	})

	return &Server{host: host, port: port, router: r}
}

// Handler returns the assembled router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.port
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
