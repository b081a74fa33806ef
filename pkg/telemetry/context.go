package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the logger, tracer, and metrics of one process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

type telemetryContextKey struct{}

// NewTelemetry validates the configuration and builds all three components.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tel := &Telemetry{Config: cfg}
	var err error
	if tel.Logger, err = NewLogger(cfg.Logging); err != nil {
		return nil, err
	}
	if tel.Tracer, err = NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment); err != nil {
		return nil, err
	}
	if tel.Metrics, err = NewMetrics(cfg.Metrics); err != nil {
		return nil, err
	}
	return tel, nil
}

// WithContext stores the telemetry bundle and its logger in the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry bundle from the context, or
// nil when none is stored.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown flushes and stops the tracer. The metrics server stays up; it
// serves until the process exits.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.Tracer.Shutdown(ctx)
}

// Flush exports all pending spans without shutting down.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer serves /metrics if metrics are enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// InstrumentedContext carries the span, correlated logger, and timer of one
// instrumented operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation. Without telemetry in the
// context it degrades to a logger and timer with no span.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	ic := &InstrumentedContext{Ctx: ctx, Logger: FromContext(ctx), Timer: NewTimer()}

	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ic
	}

	ic.Ctx, ic.Span = tel.Tracer.StartSpan(ctx, operation, attrs...)
	ic.Logger = tel.Logger.WithField("operation", operation)
	if sc := ic.Span.SpanContext(); sc.IsValid() {
		ic.Logger = ic.Logger.WithFields(map[string]interface{}{
			"trace_id": sc.TraceID().String(),
			"span_id":  sc.SpanID().String(),
		})
	}
	return ic
}

// End closes the operation, recording success or failure on its span.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span == nil {
		return
	}
	if err != nil {
		RecordError(ic.Span, err)
	} else {
		RecordSuccess(ic.Span)
	}
	ic.Span.End()
}
