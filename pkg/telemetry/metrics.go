package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the fel4 build pipeline.
type Metrics struct {
	config MetricsConfig

	// Build metrics
	buildsStarted   *prometheus.CounterVec
	buildsCompleted *prometheus.CounterVec
	buildDuration   *prometheus.HistogramVec

	// Step metrics
	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec

	// Resolution metrics
	resolutions      *prometheus.CounterVec
	resolutionErrors *prometheus.CounterVec

	// Tool metrics
	toolInvocations *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	toolErrors      *prometheus.CounterVec

	// Deployment metrics
	deployments    *prometheus.CounterVec
	deployDuration *prometheus.HistogramVec

	// Simulation metrics
	simulations *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// System metrics
	activeBuilds prometheus.Gauge
	queuedSteps  prometheus.Gauge

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

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Build metrics
		buildsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_started_total",
				Help:      "Total number of builds started",
			},
			[]string{"target", "platform", "profile"},
		),
		buildsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_completed_total",
				Help:      "Total number of builds completed",
			},
			[]string{"status"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Duration of build execution in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		// Step metrics
		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_executed_total",
				Help:      "Total number of pipeline steps executed",
			},
			[]string{"step", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of pipeline step execution in seconds",
				Buckets:   buckets,
			},
			[]string{"step"},
		),

		// Resolution metrics
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of manifest resolutions",
			},
			[]string{"target", "platform", "profile"},
		),
		resolutionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolution_errors_total",
				Help:      "Total number of manifest resolution errors",
			},
			[]string{"kind"},
		),

		// Tool metrics
		toolInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_invocations_total",
				Help:      "Total number of external tool invocations",
			},
			[]string{"tool"},
		),
		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_invocation_duration_seconds",
				Help:      "Duration of external tool invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"tool"},
		),
		toolErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_errors_total",
				Help:      "Total number of external tool failures",
			},
			[]string{"tool"},
		),

		// Deployment metrics
		deployments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployments_total",
				Help:      "Total number of board deployments",
			},
			[]string{"board", "status"},
		),
		deployDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "deployment_duration_seconds",
				Help:      "Duration of board deployments in seconds",
				Buckets:   buckets,
			},
			[]string{"board"},
		),

		// Simulation metrics
		simulations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "simulations_total",
				Help:      "Total number of simulator runs",
			},
			[]string{"platform", "status"},
		),

		// Error metrics
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of errors by error kind",
			},
			[]string{"kind"},
		),

		// System metrics
		activeBuilds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_builds",
				Help:      "Current number of active builds",
			},
		),
		queuedSteps: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queued_steps",
				Help:      "Current number of queued pipeline steps",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.buildsStarted,
		m.buildsCompleted,
		m.buildDuration,
		m.stepsExecuted,
		m.stepDuration,
		m.resolutions,
		m.resolutionErrors,
		m.toolInvocations,
		m.toolDuration,
		m.toolErrors,
		m.deployments,
		m.deployDuration,
		m.simulations,
		m.errorsByKind,
		m.activeBuilds,
		m.queuedSteps,
	)

	return m, nil
}

// Build Metrics

// RecordBuildStarted increments the counter for started builds.
func (m *Metrics) RecordBuildStarted(target, platform, profile string) {
	if m.buildsStarted == nil {
		return
	}
	m.buildsStarted.WithLabelValues(target, platform, profile).Inc()
	m.activeBuilds.Inc()
}

// RecordBuildCompleted records a completed build with its status and duration.
func (m *Metrics) RecordBuildCompleted(status string, duration time.Duration) {
	if m.buildsCompleted == nil {
		return
	}
	m.buildsCompleted.WithLabelValues(status).Inc()
	m.buildDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeBuilds.Dec()
}

// Step Metrics

// RecordStepExecution records the execution of a pipeline step.
func (m *Metrics) RecordStepExecution(step, status string, duration time.Duration) {
	if m.stepsExecuted == nil {
		return
	}
	m.stepsExecuted.WithLabelValues(step, status).Inc()
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// Resolution Metrics

// RecordResolution records a successful manifest resolution.
func (m *Metrics) RecordResolution(target, platform, profile string) {
	if m.resolutions == nil {
		return
	}
	m.resolutions.WithLabelValues(target, platform, profile).Inc()
}

// RecordResolutionError records a failed manifest resolution by error kind.
func (m *Metrics) RecordResolutionError(kind string) {
	if m.resolutionErrors == nil {
		return
	}
	m.resolutionErrors.WithLabelValues(kind).Inc()
}

// Tool Metrics

// RecordToolInvocation records an external tool invocation with its duration.
func (m *Metrics) RecordToolInvocation(tool string, duration time.Duration) {
	if m.toolInvocations == nil {
		return
	}
	m.toolInvocations.WithLabelValues(tool).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordToolError records an external tool failure.
func (m *Metrics) RecordToolError(tool string) {
	if m.toolErrors == nil {
		return
	}
	m.toolErrors.WithLabelValues(tool).Inc()
}

// Deployment Metrics

// RecordDeployment records a board deployment with its status and duration.
func (m *Metrics) RecordDeployment(board, status string, duration time.Duration) {
	if m.deployments == nil {
		return
	}
	m.deployments.WithLabelValues(board, status).Inc()
	m.deployDuration.WithLabelValues(board).Observe(duration.Seconds())
}

// Simulation Metrics

// RecordSimulation records a simulator run.
func (m *Metrics) RecordSimulation(platform, status string) {
	if m.simulations == nil {
		return
	}
	m.simulations.WithLabelValues(platform, status).Inc()
}

// Error Metrics

// RecordError records an error by kind.
func (m *Metrics) RecordError(kind string) {
	if m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// System Metrics

// SetActiveBuilds sets the current number of active builds.
func (m *Metrics) SetActiveBuilds(count float64) {
	if m.activeBuilds == nil {
		return
	}
	m.activeBuilds.Set(count)
}

// SetQueuedSteps sets the current number of queued pipeline steps.
func (m *Metrics) SetQueuedSteps(count float64) {
	if m.queuedSteps == nil {
		return
	}
	m.queuedSteps.Set(count)
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
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
