package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contraship/internal/config"
	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/storage"
)

func newTestServer(t *testing.T) (*Server, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	cfg := &config.Config{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, store, networks.Defaults(), logger), store
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/health", "/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"ok"`)
	}
}

func TestServer_ServesDeployments(t *testing.T) {
	srv, store := newTestServer(t)
	_, err := store.UpsertRecord(context.Background(), &storage.DeploymentRecord{
		ContractName:    "FundMe",
		ChainID:         4,
		Address:         "0x1234567890abcdef1234567890abcdef12345678",
		ConstructorArgs: []any{"0x8A753747A1Fa494EC906cE90E9f37563A8AF630e"},
		TxHash:          "0xabc",
		Status:          storage.StatusDeployed,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/deployments/4/FundMe", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rinkeby", body["network"])
	assert.Equal(t, "deployed", body["status"])

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/networks", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_IsReadOnly(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/deployments/", strings.NewReader("{}")))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "METHOD_NOT_ALLOWED")
}

func TestServer_RateLimited(t *testing.T) {
	cfg := &config.Config{RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 1}}
	srv := New(cfg, storage.NewMemoryStore(), networks.Defaults(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	first := httptest.NewRecorder()
	srv.Handler().ServeHTTP(first, httptest.NewRequest("GET", "/api/v1/networks", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	srv.Handler().ServeHTTP(second, httptest.NewRequest("GET", "/api/v1/networks", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	health := httptest.NewRecorder()
	srv.Handler().ServeHTTP(health, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, health.Code)
}

func TestServer_MetricsDisabled(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
