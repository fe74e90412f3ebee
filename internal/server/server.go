// Package server provides the read API server setup and wiring.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/contraship/internal/config"
	deploymentsDomain "github.com/pendergraft/contraship/internal/deployments/domain"
	deploymentsTransport "github.com/pendergraft/contraship/internal/deployments/transport"
	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/observability/metrics"
	"github.com/pendergraft/contraship/internal/storage"
)

// Server serves deployment records over HTTP
type Server struct {
	cfg      *config.Config
	store    storage.Store
	registry *networks.Registry
	logger   *slog.Logger
	router   *chi.Mux

	deploymentsSvc deploymentsTransport.Service
}

// New creates a new server
func New(cfg *config.Config, store storage.Store, registry *networks.Registry, logger *slog.Logger) *Server {
	s := &Server{
		cfg:            cfg,
		store:          store,
		registry:       registry,
		logger:         logger,
		router:         chi.NewRouter(),
		deploymentsSvc: deploymentsDomain.NewService(store, registry),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)

	if s.cfg.Metrics.Enabled {
		s.router.Handle("/metrics", metrics.Handler())
	}

	deploymentsHandler := deploymentsTransport.NewHandler(s.deploymentsSvc, s.registry)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/deployments", deploymentsHandler.RegisterRoutes)
		r.Route("/networks", deploymentsHandler.RegisterNetworkRoutes)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady checks the store answers queries
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListRecords(r.Context(), storage.RecordFilter{ChainID: -1}); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
