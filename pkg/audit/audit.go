// Package audit records every step attempt the workflow engine makes. Sinks
// are append-only: records are never updated or deleted, and a failed
// execution is reconstructed from its trail.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

// Status is the outcome of one recorded step attempt.
type Status string

const (
	// StatusStarted marks the beginning of a step attempt.
	StatusStarted Status = "started"

	// StatusSucceeded marks a successful attempt.
	StatusSucceeded Status = "succeeded"

	// StatusFailed marks a failed attempt.
	StatusFailed Status = "failed"

	// StatusSkipped marks a step the engine decided not to run.
	StatusSkipped Status = "skipped"
)

// Record is one audit trail entry.
type Record struct {
	// ID is assigned by persistent sinks.
	ID int64 `json:"id,omitempty"`

	// BatchID correlates records of one batch invocation.
	BatchID string `json:"batch_id"`

	// RecommendationID identifies the recommendation within the batch.
	RecommendationID string `json:"recommendation_id"`

	// ResourceKind is the kind of the target resource.
	ResourceKind optimizer.ResourceKind `json:"resource_kind"`

	// ResourceID is the target resource.
	ResourceID string `json:"resource_id"`

	// StepKind is the kind of the recorded step.
	StepKind optimizer.StepKind `json:"step_kind"`

	// StepName is the step's operation name.
	StepName string `json:"step_name"`

	// IdempotencyKey is the step's idempotency key, when it has one.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// Attempt is the 1-based attempt number.
	Attempt int `json:"attempt"`

	// Status is the attempt outcome.
	Status Status `json:"status"`

	// Error holds the error message for failed attempts.
	Error string `json:"error,omitempty"`

	// StartedAt and CompletedAt bound the attempt.
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// DurationMS is the attempt duration in milliseconds.
	DurationMS int64 `json:"duration_ms"`
}

// Sink receives audit records. Implementations must be safe for concurrent
// use; the engine appends from multiple workers.
type Sink interface {
	// Record appends one record.
	Record(ctx context.Context, rec *Record) error

	// Close flushes and releases the sink.
	Close() error
}

// NopSink discards all records.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(context.Context, *Record) error { return nil }

// Close implements Sink.
func (NopSink) Close() error { return nil }

// LogSink writes audit records to a zerolog logger.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink logging each record at debug level (error level
// for failed attempts).
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "audit").Logger()}
}

// Record implements Sink.
func (s *LogSink) Record(_ context.Context, rec *Record) error {
	evt := s.logger.Debug()
	if rec.Status == StatusFailed {
		evt = s.logger.Error()
	}
	evt.
		Str("batch_id", rec.BatchID).
		Str("recommendation_id", rec.RecommendationID).
		Str("resource_id", rec.ResourceID).
		Str("step_kind", string(rec.StepKind)).
		Str("step_name", rec.StepName).
		Int("attempt", rec.Attempt).
		Str("status", string(rec.Status)).
		Int64("duration_ms", rec.DurationMS).
		Str("error", rec.Error).
		Msg("Step attempt recorded")
	return nil
}

// Close implements Sink.
func (s *LogSink) Close() error { return nil }

// MultiSink fans records out to several sinks. The first error wins but all
// sinks still receive the record.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink that forwards to each given sink in order.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Record implements Sink.
func (m *MultiSink) Record(ctx context.Context, rec *Record) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Record(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close implements Sink.
func (m *MultiSink) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
