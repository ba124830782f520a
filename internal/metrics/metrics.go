// Package metrics provides Prometheus metrics for the orchestrator.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds all Prometheus metric collectors.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Snippet execution
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	BackendAvailable  *prometheus.GaugeVec

	// Preview sessions
	SessionPhase         *prometheus.GaugeVec
	MountsTotal          prometheus.Counter
	MountsSkippedTotal   prometheus.Counter
	InstallTimeoutsTotal prometheus.Counter

	// WebSocket
	WSConnectionsGauge prometheus.Gauge

	// System
	StartupTime prometheus.Gauge
}

// Get returns the singleton Metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stagebox",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by endpoint, method, and status code",
		},
		[]string{"endpoint", "method", "status"},
	)

	m.HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stagebox",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "method"},
	)

	m.ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stagebox",
			Subsystem: "execution",
			Name:      "total",
			Help:      "Total number of snippet executions by language, backend, and status",
		},
		[]string{"language", "backend", "status"},
	)

	m.ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stagebox",
			Subsystem: "execution",
			Name:      "duration_seconds",
			Help:      "Snippet execution duration in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"language", "backend"},
	)

	m.BackendAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stagebox",
			Subsystem: "execution",
			Name:      "backend_available",
			Help:      "Execution backend availability (1=healthy, 0=unhealthy)",
		},
		[]string{"backend"},
	)

	m.SessionPhase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stagebox",
			Subsystem: "preview",
			Name:      "session_phase",
			Help:      "Current preview session phase (1 for the active phase)",
		},
		[]string{"phase"},
	)

	m.MountsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stagebox",
			Subsystem: "preview",
			Name:      "mounts_total",
			Help:      "Total number of physical workspace mounts",
		},
	)

	m.MountsSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stagebox",
			Subsystem: "preview",
			Name:      "mounts_skipped_total",
			Help:      "Mounts skipped because the file-map fingerprint was unchanged",
		},
	)

	m.InstallTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stagebox",
			Subsystem: "preview",
			Name:      "install_timeouts_total",
			Help:      "Dependency installs that exceeded the bounded wait",
		},
	)

	m.WSConnectionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stagebox",
			Subsystem: "websocket",
			Name:      "connections",
			Help:      "Current number of WebSocket log-stream connections",
		},
	)

	m.StartupTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stagebox",
			Subsystem: "server",
			Name:      "startup_timestamp",
			Help:      "Server startup timestamp",
		},
	)

	m.StartupTime.Set(float64(time.Now().Unix()))
	return m
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(endpoint, method string, statusCode int, duration time.Duration) {
	status := statusCodeToLabel(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// RecordExecution records one routed snippet execution
func (m *Metrics) RecordExecution(language, backend, status string, duration time.Duration) {
	m.ExecutionsTotal.WithLabelValues(language, backend, status).Inc()
	m.ExecutionDuration.WithLabelValues(language, backend).Observe(duration.Seconds())
}

// SetBackendAvailable sets the health gauge for an execution backend
func (m *Metrics) SetBackendAvailable(backend string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.BackendAvailable.WithLabelValues(backend).Set(value)
}

// SetSessionPhase marks the active preview session phase
func (m *Metrics) SetSessionPhase(phase string) {
	m.SessionPhase.Reset()
	m.SessionPhase.WithLabelValues(phase).Set(1)
}

// RecordWSConnection records a WebSocket connection change
func (m *Metrics) RecordWSConnection(delta int) {
	m.WSConnectionsGauge.Add(float64(delta))
}

func statusCodeToLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
