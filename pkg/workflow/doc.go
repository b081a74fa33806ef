// Package workflow implements the SpendOptimo execution pipeline: validation,
// planning, and batch execution of cost optimization recommendations.
//
// # Pipeline
//
// A batch moves through three components:
//
//  1. Validator - admission checks: shape, registered adapter, typed cost
//     policy checks with exemption tags, and the OPA gate
//  2. Planner - expands each recommendation into its fixed per-kind step
//     sequence with deterministic idempotency keys
//  3. Engine - executes plans concurrently with retries, compensation, and
//     a full audit trail
//
// # Engine Guarantees
//
//   - Bounded parallelism: a worker pool of Options.MaxParallel goroutines
//   - Per-resource mutual exclusion: two recommendations targeting the same
//     resource never execute concurrently
//   - Isolation: one recommendation's failure never affects another's outcome
//   - Retries: transient and throttled errors retry with jittered exponential
//     backoff, throttled errors with a larger base delay
//   - Compensation: when a step fails after mutations were applied, their
//     inverse steps run in reverse order before the recommendation fails
//   - Reporting: the BatchReport enumerates every input exactly once, in
//     input order
//
// Cancelling the batch context rejects recommendations that have not started
// and stops executing ones at the next step boundary, compensating anything
// already applied. In-flight adapter calls are never interrupted.
//
// # Usage
//
//	engine := workflow.NewEngine(validator, planner, registry, sink,
//	    metrics, tracer, logger)
//	report, err := engine.ExecuteBatch(ctx, recommendations, workflow.Options{
//	    MaxParallel: 4,
//	    MaxAttempts: 3,
//	})
//
// With Options.DryRun set, describe and precondition steps run for real while
// mutate and verify steps are skipped, so a plan can be rehearsed against live
// resources without changing them.
package workflow
