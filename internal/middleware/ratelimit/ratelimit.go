// Package ratelimit throttles read API clients with one token bucket per client IP.
package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pendergraft/contraship/internal/config"
)

// idleAfter is how long a client's bucket is kept without requests
const idleAfter = 10 * time.Minute

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out per-client buckets. Idle buckets are swept on access, so no
// background goroutine is needed.
type Limiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
}

// New creates a limiter allowing requestsPerMin per client with the given burst
func New(requestsPerMin, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limit:   rate.Limit(float64(requestsPerMin) / 60.0),
		burst:   burst,
		now:     time.Now,
		clients: make(map[string]*client),
	}
}

// Allow reports whether key may make a request now
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > idleAfter {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > idleAfter {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// healthPaths are never throttled
var healthPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// Handler throttles by client IP. It expects RemoteAddr to already hold the real
// client address (chi's middleware.RealIP).
func (l *Limiter) Handler(next http.Handler) http.Handler {
	retryAfter := "60"
	if l.limit > 0 {
		retryAfter = strconv.Itoa(int(math.Ceil(1 / float64(l.limit))))
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthPaths[r.URL.Path] || l.Allow(clientKey(r)) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", retryAfter)
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{
				"code":    "RATE_LIMIT_EXCEEDED",
				"message": "too many requests, retry later",
			},
		})
	})
}

// Middleware returns the configured throttle, or a pass-through when disabled
func Middleware(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.RequestsPerMin <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return New(cfg.RequestsPerMin, cfg.Burst).Handler
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
