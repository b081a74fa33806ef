package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// AsyncSink decouples the engine's hot path from a slow sink by buffering
// records through a channel and writing them from a background worker.
// Records are never dropped: when the buffer is full, Record blocks until
// the worker catches up or the caller's context is cancelled.
type AsyncSink struct {
	inner  Sink
	ch     chan *Record
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncSink wraps a sink with a buffered writer. The wrapped sink is owned
// by the AsyncSink and closed on Close.
func NewAsyncSink(inner Sink, bufferSize int, logger zerolog.Logger) *AsyncSink {
	if bufferSize <= 0 {
		bufferSize = 256
	}

	s := &AsyncSink{
		inner:  inner,
		ch:     make(chan *Record, bufferSize),
		logger: logger.With().Str("component", "audit-async").Logger(),
	}

	s.wg.Add(1)
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer s.wg.Done()
	for rec := range s.ch {
		if err := s.inner.Record(context.Background(), rec); err != nil {
			s.logger.Error().Err(err).
				Str("batch_id", rec.BatchID).
				Str("resource_id", rec.ResourceID).
				Msg("Failed to persist audit record")
		}
	}
}

// Record implements Sink.
func (s *AsyncSink) Record(ctx context.Context, rec *Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("audit sink closed")
	}

	select {
	case s.ch <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains buffered records into the wrapped sink and closes it.
func (s *AsyncSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	s.wg.Wait()
	return s.inner.Close()
}
