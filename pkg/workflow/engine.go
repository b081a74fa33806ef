package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ajosephmass/spendoptimo-agent/pkg/adapter"
	"github.com/ajosephmass/spendoptimo-agent/pkg/audit"
	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
	"github.com/ajosephmass/spendoptimo-agent/pkg/telemetry"
)

// Options configures one batch execution.
type Options struct {
	// MaxParallel bounds how many recommendations execute concurrently.
	MaxParallel int

	// MaxAttempts bounds retries per step, counting the first attempt.
	MaxAttempts int

	// BaseBackoff is the base delay for exponential retry backoff.
	// Throttled errors use a larger multiple of it.
	BaseBackoff time.Duration

	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration

	// RecommendationTimeout bounds the total executing time of one
	// recommendation. Exceeding it aborts the plan and compensates.
	RecommendationTimeout time.Duration

	// DryRun validates and plans but skips all mutate and verify steps.
	DryRun bool
}

func (o Options) withDefaults() Options {
	if o.MaxParallel <= 0 {
		o.MaxParallel = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = time.Minute
	}
	if o.RecommendationTimeout <= 0 {
		o.RecommendationTimeout = 30 * time.Minute
	}
	return o
}

// Engine orchestrates recommendation batches: admission, planning, bounded
// concurrent plan execution with per-resource mutual exclusion, retry with
// backoff, compensation of applied mutations on failure, and per-attempt
// auditing.
type Engine struct {
	validator *Validator
	planner   *Planner
	registry  *adapter.Registry
	audit     audit.Sink
	metrics   *telemetry.Metrics
	tracer    *telemetry.Tracer
	logger    zerolog.Logger
	locks     keyedMutex
}

// NewEngine creates a workflow engine. The tracer may be nil; the audit sink
// must not be (use audit.NopSink to discard).
func NewEngine(validator *Validator, planner *Planner, registry *adapter.Registry, sink audit.Sink, metrics *telemetry.Metrics, tracer *telemetry.Tracer, logger zerolog.Logger) *Engine {
	return &Engine{
		validator: validator,
		planner:   planner,
		registry:  registry,
		audit:     sink,
		metrics:   metrics,
		tracer:    tracer,
		logger:    logger.With().Str("component", "engine").Logger(),
	}
}

// ExecuteBatch runs a batch of recommendations to terminal state and returns
// the report. Every input recommendation appears in the report exactly once;
// one recommendation's failure never affects another's outcome. Cancelling
// ctx rejects not-yet-executing recommendations and lets executing ones
// finish their current step before compensating.
func (e *Engine) ExecuteBatch(ctx context.Context, recs []optimizer.Recommendation, opts Options) (*optimizer.BatchReport, error) {
	opts = opts.withDefaults()

	batchID := uuid.New().String()
	for i := range recs {
		if recs[i].ID == "" {
			recs[i].ID = uuid.New().String()
		}
	}

	if e.tracer != nil {
		newCtx, span := e.tracer.StartBatchSpan(ctx, batchID)
		ctx = newCtx
		defer span.End()
	}

	startedAt := time.Now().UTC()
	e.metrics.RecordBatchStarted()
	e.logger.Info().
		Str("batch_id", batchID).
		Int("recommendations", len(recs)).
		Int("max_parallel", opts.MaxParallel).
		Bool("dry_run", opts.DryRun).
		Msg("Batch execution started")

	entries := make([]optimizer.ReportEntry, len(recs))

	jobs := make(chan int, len(recs))
	for i := range recs {
		jobs <- i
	}
	close(jobs)

	workers := opts.MaxParallel
	if len(recs) < workers {
		workers = len(recs)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				entries[i] = e.executeRecommendation(ctx, batchID, &recs[i], opts)
			}
		}()
	}
	wg.Wait()

	report := &optimizer.BatchReport{
		BatchID:     batchID,
		Entries:     entries,
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
	}
	if !opts.DryRun {
		for _, entry := range entries {
			if entry.Status == optimizer.StatusSucceeded {
				report.TotalEstimatedSavingsApplied += entry.Recommendation.EstimatedMonthlySavings
			}
		}
	}

	status := "failed"
	switch {
	case report.Succeeded() == len(entries):
		status = "succeeded"
	case report.Succeeded() > 0:
		status = "partial"
	}
	e.metrics.RecordBatchCompleted(status, report.CompletedAt.Sub(startedAt))
	e.logger.Info().
		Str("batch_id", batchID).
		Str("status", status).
		Int("succeeded", report.Succeeded()).
		Int("total", len(entries)).
		Float64("savings_applied", report.TotalEstimatedSavingsApplied).
		Msg("Batch execution completed")

	return report, nil
}

// executeRecommendation drives one recommendation from admission to a
// terminal state.
func (e *Engine) executeRecommendation(ctx context.Context, batchID string, rec *optimizer.Recommendation, opts Options) optimizer.ReportEntry {
	logger := e.logger.With().
		Str("batch_id", batchID).
		Str("recommendation_id", rec.ID).
		Str("resource_id", rec.ResourceID).
		Str("resource_kind", string(rec.ResourceKind)).
		Logger()

	if e.tracer != nil {
		newCtx, span := e.tracer.StartRecommendationSpan(ctx, batchID, rec.ID, rec.ResourceID)
		ctx = newCtx
		defer span.End()
	}

	state := optimizer.NewExecutionState()
	e.metrics.RecordRecommendationStarted()
	defer func() {
		e.metrics.RecordRecommendationCompleted(string(state.Status), string(rec.ResourceKind))
	}()

	reject := func(reason string) optimizer.ReportEntry {
		_ = state.Transition(optimizer.StatusRejected)
		logger.Warn().Str("reason", reason).Msg("Recommendation rejected")
		return e.reportEntry(rec, state, reason, "rejected: "+reason)
	}

	if ctx.Err() != nil {
		return reject("batch cancelled")
	}

	_ = state.Transition(optimizer.StatusValidating)
	if rejection := e.validator.Validate(ctx, rec); rejection != nil {
		return reject(rejection.Reason)
	}

	_ = state.Transition(optimizer.StatusPlanning)
	plan, err := e.planner.Plan(rec)
	if err != nil {
		return reject(err.Error())
	}

	// Serialize on the resource: two recommendations naming the same
	// resource must never interleave mutations.
	unlock := e.locks.lock(rec.ResourceID)
	defer unlock()

	if ctx.Err() != nil {
		return reject("batch cancelled")
	}

	_ = state.Transition(optimizer.StatusExecuting)
	state.StartedAt = time.Now().UTC()
	logger.Info().Int("steps", len(plan.Steps)).Msg("Executing plan")

	// Adapter calls run on a detached context so batch cancellation never
	// interrupts a step mid-flight; cancellation is honored between steps.
	stepCtx, cancelSteps := context.WithDeadline(context.WithoutCancel(ctx), state.StartedAt.Add(opts.RecommendationTimeout))
	defer cancelSteps()

	var compensations []*optimizer.Step
	var execErr *optimizer.Error
	mutationsSkipped := 0

	for i := range plan.Steps {
		st := plan.Steps[i]
		state.CurrentStep = i

		if ctx.Err() != nil {
			execErr = optimizer.NewTransientError("batch cancelled", ctx.Err()).
				WithCode(optimizer.ErrCodeCancelled).WithResource(rec.ResourceID).WithStep(st.Name)
			break
		}
		if stepCtx.Err() != nil {
			execErr = optimizer.NewTransientError("recommendation timeout exceeded", stepCtx.Err()).
				WithCode(optimizer.ErrCodeTimeout).WithResource(rec.ResourceID).WithStep(st.Name)
			break
		}

		// Dry runs stop short of anything that would touch the resource.
		if opts.DryRun && (st.Kind == optimizer.StepMutate || st.Kind == optimizer.StepVerify) {
			e.recordAttempt(stepCtx, batchID, rec, st, 1, audit.StatusSkipped, "", time.Now().UTC(), 0)
			if st.Kind == optimizer.StepMutate {
				mutationsSkipped++
			}
			state.StepsCompleted++
			continue
		}

		receipt, stepErr := e.executeStepWithRetries(stepCtx, batchID, rec, state, i, st, opts, logger)
		if stepErr != nil {
			execErr = stepErr
			break
		}
		state.StepsCompleted++
		if receipt != nil && receipt.Applied && receipt.Compensation != nil {
			compensations = append(compensations, receipt.Compensation)
		}
	}

	if execErr != nil {
		state.LastError = execErr
		logger.Error().Err(execErr).Int("step", state.CurrentStep).Msg("Plan execution failed")

		if len(compensations) > 0 {
			_ = state.Transition(optimizer.StatusCompensating)
			e.metrics.RecordCompensation()
			if compErr := e.compensate(stepCtx, batchID, rec, state, compensations, opts, logger); compErr != nil {
				state.CompensationError = compErr
			}
		}
		_ = state.Transition(optimizer.StatusFailed)

		reason := execErr.Error()
		summary := fmt.Sprintf("failed at step %d (%s): %s", state.CurrentStep, plan.Steps[state.CurrentStep].Name, execErr.Message)
		if state.CompensationError != nil {
			reason += "; compensation failed: " + state.CompensationError.Error()
			summary += "; compensation failed, manual intervention required"
		} else if len(compensations) > 0 {
			summary += "; applied mutations rolled back"
		}
		return e.reportEntry(rec, state, reason, summary)
	}

	if opts.DryRun {
		_ = state.Transition(optimizer.StatusSucceeded)
		summary := fmt.Sprintf("dry run: plan valid, %d mutation steps skipped", mutationsSkipped)
		return e.reportEntry(rec, state, "", summary)
	}

	state.FinalConfig = map[string]string{}
	for k, v := range rec.TargetConfig {
		state.FinalConfig[k] = v
	}
	_ = state.Transition(optimizer.StatusSucceeded)

	e.metrics.RecordSavingsApplied(rec.EstimatedMonthlySavings)
	logger.Info().Float64("estimated_savings", rec.EstimatedMonthlySavings).Msg("Recommendation succeeded")
	summary := fmt.Sprintf("applied %s optimization to %s (estimated $%.2f/month)",
		rec.ResourceKind, rec.ResourceID, rec.EstimatedMonthlySavings)
	return e.reportEntry(rec, state, "", summary)
}

// executeStepWithRetries runs one step with bounded retries. Only transient
// and throttled errors retry.
func (e *Engine) executeStepWithRetries(ctx context.Context, batchID string, rec *optimizer.Recommendation, state *optimizer.ExecutionState, stepIndex int, st optimizer.Step, opts Options, logger zerolog.Logger) (*optimizer.MutationReceipt, *optimizer.Error) {
	for attempt := 1; ; attempt++ {
		state.Attempts[stepIndex] = attempt

		startedAt := time.Now().UTC()
		receipt, stepErr := e.runStep(ctx, rec, st, logger)
		duration := time.Since(startedAt)

		status := audit.StatusSucceeded
		errMsg := ""
		if stepErr != nil {
			status = audit.StatusFailed
			errMsg = stepErr.Error()
		}
		e.recordAttempt(ctx, batchID, rec, st, attempt, status, errMsg, startedAt, duration)
		e.metrics.RecordStepExecution(string(st.Kind), string(status), string(rec.ResourceKind), duration)

		if stepErr == nil {
			return receipt, nil
		}
		e.metrics.RecordError(string(stepErr.Class))

		if !optimizer.IsRetryable(stepErr) || attempt >= opts.MaxAttempts {
			return nil, stepErr
		}

		backoff := calculateBackoff(attempt, stepErr, opts)
		e.metrics.RecordRetry(string(stepErr.Class))
		logger.Warn().
			Err(stepErr).
			Str("step", st.Name).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Step failed, retrying")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, optimizer.NewTransientError("retry interrupted", ctx.Err()).
				WithResource(rec.ResourceID).WithStep(st.Name)
		}
	}
}

// runStep dispatches one step attempt to the resource adapter.
func (e *Engine) runStep(ctx context.Context, rec *optimizer.Recommendation, st optimizer.Step, logger zerolog.Logger) (*optimizer.MutationReceipt, *optimizer.Error) {
	a, err := e.registry.ForKind(rec.ResourceKind)
	if err != nil {
		return nil, optimizer.NewPermanentError("adapter lookup failed", err).
			WithCode(optimizer.ErrCodeUnknownKind).WithResource(rec.ResourceID).WithStep(st.Name)
	}

	if e.tracer != nil {
		newCtx, span := e.tracer.StartStepSpan(ctx, string(st.Kind), st.Name, rec.ResourceID)
		ctx = newCtx
		defer span.End()
	}

	switch st.Kind {
	case optimizer.StepDescribe:
		current, err := a.Describe(ctx, rec.ResourceID)
		if err != nil {
			return nil, classify(err, rec.ResourceID, st.Name)
		}
		if !current.Exists {
			return nil, optimizer.NewPermanentError("resource not found", nil).
				WithCode(optimizer.ErrCodeNotFound).WithResource(rec.ResourceID).WithStep(st.Name)
		}
		return nil, nil

	case optimizer.StepPrecondition:
		current, err := a.Describe(ctx, rec.ResourceID)
		if err != nil {
			return nil, classify(err, rec.ResourceID, st.Name)
		}
		if !current.Exists {
			return nil, optimizer.NewPermanentError("resource not found", nil).
				WithCode(optimizer.ErrCodeNotFound).WithResource(rec.ResourceID).WithStep(st.Name)
		}
		if err := checkPrecondition(current.Config, st.Payload); err != nil {
			return nil, err.WithResource(rec.ResourceID).WithStep(st.Name)
		}
		return nil, nil

	case optimizer.StepMutate, optimizer.StepCompensate:
		receipt, err := a.Mutate(ctx, rec.ResourceID, st)
		if err != nil {
			return nil, classify(err, rec.ResourceID, st.Name)
		}
		if !receipt.Applied {
			logger.Debug().Str("step", st.Name).Msg("Mutation already in effect, no-op")
		}
		return &receipt, nil

	case optimizer.StepVerify:
		ok, err := a.Verify(ctx, rec.ResourceID, st.Payload)
		if err != nil {
			return nil, classify(err, rec.ResourceID, st.Name)
		}
		if !ok {
			return nil, optimizer.NewVerificationError("resource configuration does not match target", nil).
				WithResource(rec.ResourceID).WithStep(st.Name)
		}
		return nil, nil

	default:
		return nil, optimizer.NewPermanentError("unknown step kind "+string(st.Kind), nil).
			WithResource(rec.ResourceID).WithStep(st.Name)
	}
}

// compensate rolls back applied mutations in reverse order, each with its
// own bounded retries. Every inverse step is attempted even after an earlier
// one fails; the first failure is reported.
func (e *Engine) compensate(ctx context.Context, batchID string, rec *optimizer.Recommendation, state *optimizer.ExecutionState, compensations []*optimizer.Step, opts Options, logger zerolog.Logger) *optimizer.Error {
	logger.Warn().Int("steps", len(compensations)).Msg("Compensating applied mutations")

	var firstErr *optimizer.Error
	for i := len(compensations) - 1; i >= 0; i-- {
		st := *compensations[i]
		_, err := e.executeStepWithRetries(ctx, batchID, rec, state, state.CurrentStep, st, opts, logger)
		if err != nil && firstErr == nil {
			firstErr = optimizer.NewCompensationError("rollback step "+st.Name+" failed", err).
				WithResource(rec.ResourceID).WithStep(st.Name)
		}
	}
	if firstErr != nil {
		logger.Error().Err(firstErr).Msg("Compensation failed, manual intervention required")
	}
	return firstErr
}

func (e *Engine) recordAttempt(ctx context.Context, batchID string, rec *optimizer.Recommendation, st optimizer.Step, attempt int, status audit.Status, errMsg string, startedAt time.Time, duration time.Duration) {
	record := &audit.Record{
		BatchID:          batchID,
		RecommendationID: rec.ID,
		ResourceKind:     rec.ResourceKind,
		ResourceID:       rec.ResourceID,
		StepKind:         st.Kind,
		StepName:         st.Name,
		IdempotencyKey:   st.IdempotencyKey,
		Attempt:          attempt,
		Status:           status,
		Error:            errMsg,
		StartedAt:        startedAt,
		CompletedAt:      startedAt.Add(duration),
		DurationMS:       duration.Milliseconds(),
	}
	if err := e.audit.Record(ctx, record); err != nil {
		e.logger.Error().Err(err).Str("batch_id", batchID).Msg("Failed to write audit record")
	}
}

func (e *Engine) reportEntry(rec *optimizer.Recommendation, state *optimizer.ExecutionState, reason, summary string) optimizer.ReportEntry {
	return optimizer.ReportEntry{
		Recommendation: *rec,
		ResourceID:     rec.ResourceID,
		Status:         state.Status,
		StepsCompleted: state.StepsCompleted,
		Error:          reason,
		FinalConfig:    state.FinalConfig,
		Summary:        summary,
	}
}

// checkPrecondition matches observed config values against the step's
// expectations. Each payload value is a pipe-separated list of acceptable
// values.
func checkPrecondition(observed, expectations map[string]string) *optimizer.Error {
	for key, allowed := range expectations {
		got := observed[key]
		if !valueAllowed(got, allowed) {
			return optimizer.NewPreconditionError(
				fmt.Sprintf("%s is %q, requires one of %q", key, got, allowed), nil).
				WithCode(optimizer.ErrCodeBadState)
		}
	}
	return nil
}

func valueAllowed(got, allowed string) bool {
	start := 0
	for i := 0; i <= len(allowed); i++ {
		if i == len(allowed) || allowed[i] == '|' {
			if got == allowed[start:i] {
				return true
			}
			start = i + 1
		}
	}
	return false
}

// classify wraps adapter errors that are not already classified.
func classify(err error, resourceID, step string) *optimizer.Error {
	var cerr *optimizer.Error
	if errors.As(err, &cerr) {
		return cerr
	}
	return optimizer.NewPermanentError("step failed", err).WithResource(resourceID).WithStep(step)
}

// calculateBackoff computes exponential backoff with jitter. Throttled
// errors start from a larger base delay.
func calculateBackoff(attempt int, err error, opts Options) time.Duration {
	base := opts.BaseBackoff
	if optimizer.IsThrottled(err) {
		base = 5 * opts.BaseBackoff
	}

	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if delay > opts.MaxBackoff {
		delay = opts.MaxBackoff
	}

	// ±25% jitter
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay*3/4 + jitter
}

// keyedMutex serializes execution per resource ID.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
