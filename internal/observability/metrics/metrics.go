// Package metrics provides Prometheus instrumentation for contraship.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Deployment metrics
	deployActionsTotal *prometheus.CounterVec
	confirmationWait   *prometheus.HistogramVec
	runsTotal          *prometheus.CounterVec

	// Verification metrics
	verificationAttemptsTotal *prometheus.CounterVec
)

// Init initializes the metrics system. It must be called at most once per process.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	constLabels := prometheus.Labels{"service": serviceName}

	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: constLabels,
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method", "path"},
	)

	// Executed plan steps
	deployActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "deploy_actions_total",
			Help:        "Total number of executed plan steps by action and outcome",
			ConstLabels: constLabels,
		},
		[]string{"chain_id", "action", "status"},
	)

	// Time spent waiting for confirmations
	confirmationWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "deploy_confirmation_wait_seconds",
			Help:        "Time from submission until the required confirmations were reached",
			Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		},
		[]string{"chain_id"},
	)

	// Orchestrator runs
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "deploy_runs_total",
			Help:        "Total number of orchestrator runs by outcome",
			ConstLabels: constLabels,
		},
		[]string{"chain_id", "result"},
	)

	// Explorer submissions
	verificationAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "verification_attempts_total",
			Help:        "Total number of explorer verification submissions by result",
			ConstLabels: constLabels,
		},
		[]string{"chain_id", "result"},
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
