// Package metrics provides Prometheus metrics export for the autopilot
// session.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports session metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	// Dive metrics
	diveLatency  *prometheus.HistogramVec
	dives        *prometheus.CounterVec
	queueDepth   prometheus.Gauge
	quickMode    prometheus.Gauge
	divesRunning prometheus.Gauge

	// Engagement metrics
	engagements *prometheus.CounterVec

	// Inference metrics
	inferenceLatency    *prometheus.HistogramVec
	inferenceRequests   *prometheus.CounterVec
	circuitTransitions  *prometheus.CounterVec
	inferenceQueueDepth *prometheus.GaugeVec
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default exporter configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 45, 90},
	}
}

// NewExporter creates an exporter and registers its collectors.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.diveLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "autopilot",
			Subsystem: "dive",
			Name:      "latency_seconds",
			Help:      "Dive task latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"status"},
	)

	e.dives = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopilot",
			Subsystem: "dive",
			Name:      "tasks_total",
			Help:      "Total number of dive tasks by outcome",
		},
		[]string{"status"},
	)

	e.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "autopilot",
			Subsystem: "dive",
			Name:      "queue_depth",
			Help:      "Number of dive tasks waiting in the queue",
		},
	)

	e.quickMode = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "autopilot",
			Subsystem: "dive",
			Name:      "quick_mode",
			Help:      "Whether quick mode is active (0 or 1)",
		},
	)

	e.divesRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "autopilot",
			Subsystem: "dive",
			Name:      "running",
			Help:      "Number of dive tasks currently executing",
		},
	)

	e.engagements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopilot",
			Subsystem: "engagement",
			Name:      "actions_total",
			Help:      "Total engagements recorded by category",
		},
		[]string{"category"},
	)

	e.inferenceLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "autopilot",
			Subsystem: "inference",
			Name:      "latency_seconds",
			Help:      "Inference request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"backend"},
	)

	e.inferenceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopilot",
			Subsystem: "inference",
			Name:      "requests_total",
			Help:      "Total inference requests by backend and outcome",
		},
		[]string{"backend", "status"},
	)

	e.circuitTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopilot",
			Subsystem: "inference",
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker state transitions by endpoint",
		},
		[]string{"endpoint", "to_state"},
	)

	e.inferenceQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "autopilot",
			Subsystem: "inference",
			Name:      "queue_depth",
			Help:      "Inference requests waiting per backend",
		},
		[]string{"backend"},
	)

	registry.MustRegister(
		e.diveLatency,
		e.dives,
		e.queueDepth,
		e.quickMode,
		e.divesRunning,
		e.engagements,
		e.inferenceLatency,
		e.inferenceRequests,
		e.circuitTransitions,
		e.inferenceQueueDepth,
	)

	return e
}

// RecordDive records one dive task outcome.
func (e *Exporter) RecordDive(status string, latency time.Duration) {
	e.dives.WithLabelValues(status).Inc()
	e.diveLatency.WithLabelValues(status).Observe(latency.Seconds())
}

// SetQueueDepth updates the dive queue depth gauge.
func (e *Exporter) SetQueueDepth(pending, running int) {
	e.queueDepth.Set(float64(pending))
	e.divesRunning.Set(float64(running))
}

// SetQuickMode flags whether quick mode is active.
func (e *Exporter) SetQuickMode(active bool) {
	if active {
		e.quickMode.Set(1)
	} else {
		e.quickMode.Set(0)
	}
}

// RecordEngagement counts one recorded engagement.
func (e *Exporter) RecordEngagement(category string) {
	e.engagements.WithLabelValues(category).Inc()
}

// RecordInference records one inference request outcome.
func (e *Exporter) RecordInference(backend string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.inferenceRequests.WithLabelValues(backend, status).Inc()
	e.inferenceLatency.WithLabelValues(backend).Observe(latency.Seconds())
}

// RecordCircuitTransition counts a breaker state change.
func (e *Exporter) RecordCircuitTransition(endpoint, toState string) {
	e.circuitTransitions.WithLabelValues(endpoint, toState).Inc()
}

// SetInferenceQueueDepth updates a backend's waiting-request gauge.
func (e *Exporter) SetInferenceQueueDepth(backend string, depth int) {
	e.inferenceQueueDepth.WithLabelValues(backend).Set(float64(depth))
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
