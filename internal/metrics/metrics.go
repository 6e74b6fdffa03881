// Package metrics exposes Prometheus metrics for model calls, background
// tasks, the HTTP surface and live streams.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mentorjournal"

// Metrics holds the application's collectors on its own registry
type Metrics struct {
	registry *prometheus.Registry

	// Model metrics
	ModelCalls    *prometheus.CounterVec
	ModelLatency  *prometheus.HistogramVec
	ModelChunks   *prometheus.CounterVec
	ModelFailures *prometheus.CounterVec

	// Background task failures by task name
	BackgroundFailures *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec

	// Live stream metrics
	ActiveStreams        prometheus.Gauge
	WebSocketConnections prometheus.Gauge
}

// New creates the metrics on a fresh registry, including the Go runtime
// and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ModelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Total number of model calls by tier and model",
		}, []string{"tier", "model"}),

		ModelLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Model call latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"tier"}),

		ModelChunks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_chunks_total",
			Help:      "Total number of streamed chunks by tier",
		}, []string{"tier"}),

		ModelFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_failures_total",
			Help:      "Total number of failed model calls by tier",
		}, []string{"tier"}),

		BackgroundFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_task_failures_total",
			Help:      "Total number of failed background tasks by task name",
		}, []string{"task"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route pattern and status",
		}, []string{"method", "route", "status"}),

		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_streams_active",
			Help:      "Number of reply streams currently relayed to clients",
		}),

		WebSocketConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections_active",
			Help:      "Number of active WebSocket connections",
		}),
	}
}

// Registry returns the registry the metrics live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveModelCall records a finished model call
func (m *Metrics) ObserveModelCall(tier, model string, elapsed time.Duration, err error) {
	m.ModelCalls.WithLabelValues(tier, model).Inc()
	m.ModelLatency.WithLabelValues(tier).Observe(elapsed.Seconds())
	if err != nil {
		m.ModelFailures.WithLabelValues(tier).Inc()
	}
}

// ObserveModelChunk records one streamed chunk
func (m *Metrics) ObserveModelChunk(tier string) {
	m.ModelChunks.WithLabelValues(tier).Inc()
}

// RecordBackgroundFailure records a failed background task
func (m *Metrics) RecordBackgroundFailure(task string) {
	m.BackgroundFailures.WithLabelValues(task).Inc()
}

// RecordHTTPRequest records a served request
func (m *Metrics) RecordHTTPRequest(method, route string, status int) {
	m.HTTPRequests.WithLabelValues(method, route, http.StatusText(status)).Inc()
}

// StreamStarted records a stream relay starting
func (m *Metrics) StreamStarted() {
	m.ActiveStreams.Inc()
}

// StreamFinished records a stream relay ending
func (m *Metrics) StreamFinished() {
	m.ActiveStreams.Dec()
}

// RecordWebSocketConnect records a new WebSocket connection
func (m *Metrics) RecordWebSocketConnect() {
	m.WebSocketConnections.Inc()
}

// RecordWebSocketDisconnect records a WebSocket disconnection
func (m *Metrics) RecordWebSocketDisconnect() {
	m.WebSocketConnections.Dec()
}
