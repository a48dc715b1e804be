// Package metrics holds the gateway's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Call outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

var (
	// fanoutCalls counts per-backend calls made by the fan-out executor.
	// Labels: method, backend, outcome (success, error, timeout)
	fanoutCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lsgw",
		Subsystem: "fanout",
		Name:      "calls_total",
		Help:      "Backend calls issued by fan-out, by outcome",
	}, []string{"method", "backend", "outcome"})

	// fanoutDuration measures the wall-clock time of a whole fan-out.
	// Labels: method, strategy (parallel, sequential)
	fanoutDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lsgw",
		Subsystem: "fanout",
		Name:      "duration_seconds",
		Help:      "Fan-out duration in seconds",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "strategy"})

	// handshakes counts initialize handshakes.
	// Labels: backend, outcome (success, error, timeout)
	handshakes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lsgw",
		Subsystem: "lifecycle",
		Name:      "handshakes_total",
		Help:      "Backend initialize handshakes, by outcome",
	}, []string{"backend", "outcome"})

	// handshakeDuration measures how long backends take to initialize.
	handshakeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lsgw",
		Subsystem: "lifecycle",
		Name:      "handshake_duration_seconds",
		Help:      "Backend initialize handshake duration in seconds",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"backend"})

	// backendsInitialized tracks the number of initialized backends.
	backendsInitialized = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lsgw",
		Subsystem: "lifecycle",
		Name:      "backends_initialized",
		Help:      "Number of backends that completed the handshake",
	})

	// rpcRequests counts caller requests.
	// Labels: method, status (ok, error)
	rpcRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lsgw",
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "Caller requests handled, by status",
	}, []string{"method", "status"})

	// rpcDuration measures caller request latency.
	rpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lsgw",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "Caller request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	// rpcSessions tracks open caller sessions.
	rpcSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lsgw",
		Subsystem: "rpc",
		Name:      "sessions",
		Help:      "Open caller sessions",
	})

	// fileEvents counts forwarded file events.
	// Labels: type (created, changed, deleted)
	fileEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lsgw",
		Subsystem: "watcher",
		Name:      "file_events_total",
		Help:      "File events forwarded to backends",
	}, []string{"type"})
)

// RecordFanoutCall records one backend call made during a fan-out.
func RecordFanoutCall(method, backend, outcome string) {
	fanoutCalls.WithLabelValues(method, backend, outcome).Inc()
}

// RecordFanout records the duration of a whole fan-out.
func RecordFanout(method, strategy string, durationSec float64) {
	fanoutDuration.WithLabelValues(method, strategy).Observe(durationSec)
}

// RecordHandshake records an initialize handshake and its duration.
func RecordHandshake(backend, outcome string, durationSec float64) {
	handshakes.WithLabelValues(backend, outcome).Inc()
	if outcome == OutcomeSuccess {
		handshakeDuration.WithLabelValues(backend).Observe(durationSec)
		backendsInitialized.Inc()
	}
}

// RecordRPCRequest records a caller request.
func RecordRPCRequest(method string, err error, durationSec float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	rpcRequests.WithLabelValues(method, status).Inc()
	rpcDuration.WithLabelValues(method).Observe(durationSec)
}

// SessionOpened and SessionClosed track caller sessions.
func SessionOpened() { rpcSessions.Inc() }

func SessionClosed() { rpcSessions.Dec() }

// RecordFileEvent records a forwarded file event.
func RecordFileEvent(kind string) {
	fileEvents.WithLabelValues(kind).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
