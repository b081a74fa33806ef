package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the execution engine.
type Metrics struct {
	config MetricsConfig

	// Batch metrics
	batchesStarted   prometheus.Counter
	batchesCompleted *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec

	// Recommendation metrics
	recommendationsCompleted *prometheus.CounterVec
	savingsApplied           prometheus.Counter

	// Step metrics
	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	compensations prometheus.Counter

	// Error metrics
	errorsByClass *prometheus.CounterVec

	// System metrics
	activeRecommendations prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		batchesStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_started_total",
				Help:      "Total number of batches started",
			},
		),
		batchesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_completed_total",
				Help:      "Total number of batches completed",
			},
			[]string{"status"},
		),
		batchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Duration of batch execution in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		recommendationsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recommendations_completed_total",
				Help:      "Total number of recommendations reaching a terminal status",
			},
			[]string{"status", "resource_kind"},
		),
		savingsApplied: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "estimated_savings_applied_total",
				Help:      "Sum of estimated monthly savings (USD) of succeeded recommendations",
			},
		),

		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_executed_total",
				Help:      "Total number of step attempts executed",
			},
			[]string{"kind", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of step execution in seconds",
				Buckets:   buckets,
			},
			[]string{"kind", "resource_kind"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Total number of step retries by error class",
			},
			[]string{"class"},
		),
		compensations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compensations_total",
				Help:      "Total number of recommendations that entered compensation",
			},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),

		activeRecommendations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_recommendations",
				Help:      "Current number of recommendations being executed",
			},
		),
	}

	registry.MustRegister(
		m.batchesStarted,
		m.batchesCompleted,
		m.batchDuration,
		m.recommendationsCompleted,
		m.savingsApplied,
		m.stepsExecuted,
		m.stepDuration,
		m.retries,
		m.compensations,
		m.errorsByClass,
		m.activeRecommendations,
	)

	return m, nil
}

// Batch Metrics

// RecordBatchStarted increments the counter for started batches.
func (m *Metrics) RecordBatchStarted() {
	if m.batchesStarted == nil {
		return
	}
	m.batchesStarted.Inc()
}

// RecordBatchCompleted records a completed batch with its status and duration.
func (m *Metrics) RecordBatchCompleted(status string, duration time.Duration) {
	if m.batchesCompleted == nil {
		return
	}
	m.batchesCompleted.WithLabelValues(status).Inc()
	m.batchDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// Recommendation Metrics

// RecordRecommendationStarted marks a recommendation as actively executing.
func (m *Metrics) RecordRecommendationStarted() {
	if m.activeRecommendations == nil {
		return
	}
	m.activeRecommendations.Inc()
}

// RecordRecommendationCompleted records a terminal recommendation outcome.
func (m *Metrics) RecordRecommendationCompleted(status, resourceKind string) {
	if m.recommendationsCompleted == nil {
		return
	}
	m.recommendationsCompleted.WithLabelValues(status, resourceKind).Inc()
	m.activeRecommendations.Dec()
}

// RecordSavingsApplied adds the estimated monthly savings of a succeeded
// recommendation.
func (m *Metrics) RecordSavingsApplied(savings float64) {
	if m.savingsApplied == nil || savings <= 0 {
		return
	}
	m.savingsApplied.Add(savings)
}

// Step Metrics

// RecordStepExecution records one step attempt.
func (m *Metrics) RecordStepExecution(stepKind, status, resourceKind string, duration time.Duration) {
	if m.stepsExecuted == nil {
		return
	}
	m.stepsExecuted.WithLabelValues(stepKind, status).Inc()
	m.stepDuration.WithLabelValues(stepKind, resourceKind).Observe(duration.Seconds())
}

// RecordRetry records a step retry by error class.
func (m *Metrics) RecordRetry(errorClass string) {
	if m.retries == nil {
		return
	}
	m.retries.WithLabelValues(errorClass).Inc()
}

// RecordCompensation records a recommendation entering compensation.
func (m *Metrics) RecordCompensation() {
	if m.compensations == nil {
		return
	}
	m.compensations.Inc()
}

// Error Metrics

// RecordError records an error by class.
func (m *Metrics) RecordError(errorClass string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
