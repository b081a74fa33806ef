package telemetry

import (
	"context"
	"errors"
	"testing"
)

func quietConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tracing.Enabled = false
	cfg.Metrics.Enabled = false
	return cfg
}

func TestNewTelemetry(t *testing.T) {
	tel, err := NewTelemetry(quietConfig())
	if err != nil {
		t.Fatalf("NewTelemetry failed: %v", err)
	}
	if tel.Logger == nil || tel.Tracer == nil || tel.Metrics == nil {
		t.Fatal("Telemetry components should all be initialized")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestNewTelemetryRejectsInvalidConfig(t *testing.T) {
	cfg := quietConfig()
	cfg.ServiceName = ""
	if _, err := NewTelemetry(cfg); err == nil {
		t.Error("Expected error for empty service name")
	}
}

func TestTelemetryContextRoundTrip(t *testing.T) {
	tel, err := NewTelemetry(quietConfig())
	if err != nil {
		t.Fatalf("NewTelemetry failed: %v", err)
	}

	ctx := tel.WithContext(context.Background())
	if got := FromTelemetryContext(ctx); got != tel {
		t.Error("FromTelemetryContext should return the stored instance")
	}
	if got := FromTelemetryContext(context.Background()); got != nil {
		t.Error("FromTelemetryContext on a bare context should return nil")
	}
}

func TestStartOperationWithTelemetry(t *testing.T) {
	tel, err := NewTelemetry(quietConfig())
	if err != nil {
		t.Fatalf("NewTelemetry failed: %v", err)
	}
	ctx := tel.WithContext(context.Background())

	ic := StartOperation(ctx, "batch.execute")
	if ic.Logger == nil {
		t.Error("Operation logger should be set")
	}
	if ic.Timer == nil {
		t.Error("Operation timer should be set")
	}
	if ic.Timer.Duration() < 0 {
		t.Error("Timer duration should not be negative")
	}
	ic.End(errors.New("boom"))
}

func TestStartOperationWithoutTelemetry(t *testing.T) {
	ic := StartOperation(context.Background(), "batch.execute")
	if ic.Span != nil {
		t.Error("Span should be nil without telemetry in context")
	}
	if ic.Logger == nil || ic.Timer == nil {
		t.Error("Logger and timer should still be set")
	}
	ic.End(nil)
}
