// Package api provides Prometheus metrics for the bank engine.
package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	registry *prometheus.Registry

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestFailures *prometheus.CounterVec
	RequestLatency  *prometheus.HistogramVec
	CommandsDropped *prometheus.CounterVec

	// System metrics
	QueuePending  prometheus.Gauge
	WorkersActive prometheus.Gauge
}

// NewMetrics creates a Metrics instance with its own registry and the
// given namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of processed requests by kind and outcome",
		}, []string{"kind", "outcome"}),
		RequestFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_failures_total",
			Help:      "Requests that failed without producing a result",
		}, []string{"kind"}),
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "Time from submission to completion in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"kind"}),
		CommandsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_rejected_total",
			Help:      "Input commands dropped before reaching the queue",
		}, []string{"reason"}),

		QueuePending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_pending",
			Help:      "Current number of requests waiting in the queue",
		}),
		WorkersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_active",
			Help:      "Number of workers processing a request",
		}),
	}
}

// Registry returns the registry holding every metric.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordResult records a request that produced a result.
func (m *Metrics) RecordResult(kind, outcome string, latency time.Duration) {
	m.RequestsTotal.WithLabelValues(kind, outcome).Inc()
	m.RequestLatency.WithLabelValues(kind).Observe(latency.Seconds())
}

// RecordFailure records a request that could not be processed.
func (m *Metrics) RecordFailure(kind string) {
	m.RequestFailures.WithLabelValues(kind).Inc()
}

// RecordRejected records a dropped input command.
func (m *Metrics) RecordRejected(reason string) {
	m.CommandsDropped.WithLabelValues(reason).Inc()
}

// UpdateQueue updates the queue gauge.
func (m *Metrics) UpdateQueue(pending int) {
	m.QueuePending.Set(float64(pending))
}

// UpdateWorkers updates the active workers gauge.
func (m *Metrics) UpdateWorkers(active int) {
	m.WorkersActive.Set(float64(active))
}

// MetricsServer runs an HTTP server exposing /metrics endpoint.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a new metrics server on the given address.
func NewMetricsServer(addr string, m *Metrics) *MetricsServer {
	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           Handler(m),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler serves /metrics from m's registry and a /health probe.
func Handler(m *Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Start starts the metrics server (blocking).
func (s *MetricsServer) Start() error {
	return s.server.ListenAndServe()
}

// StartAsync starts the metrics server in a goroutine. Errors other than
// a clean shutdown are passed to onError.
func (s *MetricsServer) StartAsync(onError func(error)) {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed && onError != nil {
			onError(err)
		}
	}()
}

// Stop gracefully stops the metrics server.
func (s *MetricsServer) Stop() error {
	return s.server.Close()
}
