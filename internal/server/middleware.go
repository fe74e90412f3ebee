package server

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/contraship/internal/middleware/logging"
	"github.com/pendergraft/contraship/internal/middleware/ratelimit"
	"github.com/pendergraft/contraship/internal/observability/metrics"
)

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(ratelimit.Middleware(s.cfg.RateLimit))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(readOnly)
}

// readOnly rejects anything but GET, HEAD and OPTIONS; the API never writes
func readOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			next.ServeHTTP(w, r)
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		default:
			w.Header().Set("Allow", "GET, HEAD, OPTIONS")
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
				"error": map[string]string{"code": "METHOD_NOT_ALLOWED", "message": "the API is read-only"},
			})
		}
	})
}
