// Package telemetry provides observability instrumentation for the fel4
// build pipeline.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), metrics (Prometheus), and event publishing into a
// unified system for monitoring and debugging fel4 operations.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Async event system for history and notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context
// propagation:
//
//	logger := tel.Logger.NewComponentLogger("pipeline")
//	logger = logger.WithBuildID("build-123").WithStepID("compile-kernel")
//	logger.Info("Starting kernel compilation")
//	logger.WithError(err).Error("Compilation failed")
//
// Log levels: trace, debug, info, warn, error, fatal. The FEL4_LOG_LEVEL
// environment variable overrides the configured level.
//
// # Distributed Tracing
//
// Tracing provides visibility into build flow and performance:
//
//	ctx, span := tel.Tracer.StartBuildSpan(ctx, buildID, target, platform, profile)
//	defer span.End()
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (CI), Stdout (development), None (testing)
//
// # Metrics
//
// Prometheus metrics track pipeline behavior:
//
//	tel.Metrics.RecordBuildStarted(target, platform, profile)
//	tel.Metrics.RecordBuildCompleted("succeeded", duration)
//	tel.Metrics.RecordStepExecution("compile-kernel", "succeeded", duration)
//	tel.Metrics.RecordToolInvocation("cmake", duration)
//	tel.Metrics.RecordResolutionError("duplicate_property")
//
// Key metrics exposed:
//
//   - fel4_builds_started_total{target,platform,profile}
//   - fel4_builds_completed_total{status}
//   - fel4_build_duration_seconds{status}
//   - fel4_steps_executed_total{step,status}
//   - fel4_step_duration_seconds{step}
//   - fel4_resolutions_total{target,platform,profile}
//   - fel4_resolution_errors_total{kind}
//   - fel4_tool_invocations_total{tool}
//   - fel4_deployments_total{board,status}
//   - fel4_active_builds
//
// Metrics are exposed via HTTP at /metrics (default: :9464/metrics)
//
// # Event Publishing
//
// The event system provides async publishing with buffering and filtering:
//
//	tel.Events.PublishBuildStarted(buildID, target, platform, profile)
//	tel.Events.PublishStepCompleted(buildID, stepID, duration)
//
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// Event filters: FilterByLevel, FilterByType, FilterByBuildID, FilterByBoard
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	// Build context
//	ctx = telemetry.WithBuildContext(ctx, buildID, target, platform, profile)
//	defer telemetry.EndBuildContext(ctx, buildID, status, err)
//
//	// Step context
//	ctx = telemetry.WithStepContext(ctx, buildID, stepID, tool)
//	defer telemetry.EndStepContext(ctx, buildID, stepID, status, err)
//
//	// External tool invocation
//	err := telemetry.RecordToolOperation(ctx, "qemu", "simulate", func() error {
//	    return runner.Run(ctx)
//	})
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (console output, debug level, stdout traces)
//	cfg := telemetry.DevelopmentConfig()
//
//	// CI (JSON logs, OTLP traces, metrics endpoint)
//	cfg := telemetry.CIConfig()
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
package telemetry
