package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/knpiano/knbatch/pkg/handlers/health"
	"github.com/knpiano/knbatch/pkg/handlers/jobs"
	"github.com/knpiano/knbatch/pkg/logger"
	"github.com/knpiano/knbatch/pkg/middleware"
)

// Config wires the ops server to the running service
type Config struct {
	Port      string
	Catalogue jobs.Catalogue
	Timers    jobs.Timers
	Location  *time.Location
	// Gatherer backs /metrics; the endpoint is omitted when nil
	Gatherer prometheus.Gatherer
	Probes   map[string]health.Pinger
}

// Server is the operations HTTP server of the batch service
type Server struct {
	router   *chi.Mux
	http     *http.Server
	port     string
	logger   *logger.Logger
	handlers struct {
		health *health.Handler
		jobs   *jobs.Handler
	}
}

// New creates a new server instance
func New(cfg Config, log *logger.Logger) (*Server, error) {
	if cfg.Catalogue == nil {
		return nil, fmt.Errorf("server requires a job catalogue")
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	log = log.WithComponent("ops-server")

	server := &Server{
		router: chi.NewRouter(),
		port:   cfg.Port,
		logger: log,
	}

	server.handlers.health = health.NewHandler(log, cfg.Probes)
	server.handlers.jobs = jobs.NewHandler(cfg.Catalogue, cfg.Timers, cfg.Location, log)

	server.setupRoutes(cfg.Gatherer)

	server.http = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server, nil
}

// setupRoutes configures all the ops routes
func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.Recoverer)
	s.router.Use(middleware.RequestLogger(s.logger))

	s.router.Get("/health", s.handlers.health.HealthCheck)

	s.router.Get("/jobs", s.handlers.jobs.List)
	s.router.Get("/jobs/{id}", s.handlers.jobs.Get)

	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info().
		Str("action", "server_start").
		Str("port", s.port).
		Msg("Starting ops server")

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed to start on port %s: %w", s.port, err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones until ctx ends
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down ops server: %w", err)
	}
	s.logger.Info().Str("action", "server_stop").Msg("Ops server stopped")
	return nil
}
