// Package telemetry provides observability instrumentation for SpendOptimo:
// structured logging (zerolog), metrics (Prometheus), and distributed tracing
// (OpenTelemetry).
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// # Structured Logging
//
// The Logger wraps zerolog with domain field helpers:
//
//	logger := tel.Logger.NewComponentLogger("engine")
//	logger = logger.WithBatchID(batchID).WithResourceID(resourceID)
//	logger.Info("Executing recommendation")
//
// # Metrics
//
// Metrics cover the execution pipeline: batches and recommendations started
// and completed, step executions and durations by kind, retries by error
// class, compensations, and applied savings. They are exposed on /metrics
// via Handler or StartMetricsServer. A disabled MetricsConfig yields a no-op
// collector so callers never need nil checks.
//
// # Tracing
//
// The Tracer nests batch, recommendation, and step spans with stdout and
// OTLP/gRPC exporters selected by configuration. Helpers RecordError and
// RecordSuccess set span status consistently.
//
// # Context Helpers
//
// StartOperation bundles span, logger, and timer for one instrumented
// operation:
//
//	ic := telemetry.StartOperation(ctx, "batch.execute")
//	defer ic.End(err)
//	ic.Logger.Info("Starting batch")
//
// DevelopmentConfig and ProductionConfig give tuned presets; ProductionConfig
// uses JSON logs, OTLP export, and 10% sampling.
package telemetry
