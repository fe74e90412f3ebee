package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/contraship/internal/deployments/domain"
	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/storage"
)

// Service defines the deployment query service for HTTP transport.
type Service interface {
	Get(ctx context.Context, chainID int64, contract string) (*domain.Deployment, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Deployment, error)
}

// Handler handles HTTP requests for deployments.
type Handler struct {
	svc      Service
	registry *networks.Registry
}

// NewHandler creates a new deployments HTTP handler.
func NewHandler(svc Service, registry *networks.Registry) *Handler {
	return &Handler{svc: svc, registry: registry}
}

// RegisterRoutes registers the read-only deployment routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{chainId}/{contract}", h.handleGet)
	r.Get("/{chainId}/mock/{dependency}", h.handleGetMock)
}

// RegisterNetworkRoutes registers the network listing.
func (h *Handler) RegisterNetworkRoutes(r chi.Router) {
	r.Get("/", h.handleNetworks)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ListFilter{
		Status:       storage.Status(q.Get("status")),
		IncludeMocks: q.Get("include_mocks") == "true",
	}

	if v := q.Get("chain_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "chain_id must be a positive integer")
			return
		}
		filter.ChainID = id
	}
	if v := q.Get("verified"); v != "" {
		b := v == "true"
		filter.Verified = &b
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "status must be pending, deployed or failed")
		return
	}

	result, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list deployments")
		return
	}

	data := make([]DeploymentResponse, len(result))
	for i, d := range result {
		data[i] = toDeploymentResponse(d)
	}
	writeJSON(w, http.StatusOK, DeploymentListResponse{Data: data, Count: len(data)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	h.writeDeployment(w, r, chi.URLParam(r, "contract"))
}

// handleGetMock serves the mock deployed for a dependency on a development network
func (h *Handler) handleGetMock(w http.ResponseWriter, r *http.Request) {
	h.writeDeployment(w, r, domain.MockRecordName(chi.URLParam(r, "dependency")))
}

func (h *Handler) writeDeployment(w http.ResponseWriter, r *http.Request, contract string) {
	chainID, err := strconv.ParseInt(chi.URLParam(r, "chainId"), 10, 64)
	if err != nil || chainID <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "chainId must be a positive integer")
		return
	}

	deployment, err := h.svc.Get(r.Context(), chainID, contract)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Deployment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get deployment")
		return
	}

	writeJSON(w, http.StatusOK, toDeploymentResponse(*deployment))
}

func (h *Handler) handleNetworks(w http.ResponseWriter, r *http.Request) {
	list := h.registry.List()
	data := make([]NetworkResponse, len(list))
	for i, d := range list {
		data[i] = toNetworkResponse(d)
	}
	writeJSON(w, http.StatusOK, NetworkListResponse{Data: data})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
