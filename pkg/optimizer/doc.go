// Package optimizer defines the core domain types for the SpendOptimo
// execution engine.
//
// # Core Domain Types
//
//   - Recommendation: A proposed cost optimization for a single cloud resource
//   - Plan: The ordered remediation steps derived from a recommendation
//   - Step: One unit of work (describe/precondition_check/mutate/verify/compensate)
//   - ExecutionState: Per-recommendation state machine snapshot with attempts
//   - MutationReceipt: The outcome of a mutation, carrying its inverse step
//   - BatchReport: The final per-recommendation outcomes of one batch
//
// # Execution Status
//
// ExecutionStatus models the recommendation lifecycle: pending, validating,
// planning, and executing in order, finishing in succeeded, or in failed
// after an optional compensating phase.
//
// Rejected is reachable from any pre-executing status; succeeded, failed,
// and rejected are terminal. CanTransition enforces that statuses only move
// forward, and ExecutionState.Transition rejects illegal moves.
//
// # Error Classification
//
// Errors are classified for retry decisions:
//
//   - validation: terminal, recommendation is rejected
//   - transient, throttled: retryable with backoff
//   - precondition, verification: non-retryable, trigger compensation
//   - compensation: rollback itself failed, manual intervention needed
//   - permanent: non-recoverable
//
// Use the predicate helpers to inspect errors:
//
//	if optimizer.IsRetryable(err) {
//	    // back off and retry the step
//	}
//
// # Idempotency
//
// IdempotencyKey derives a stable key from the resource ID and step name, so
// a retried step presents the same key to the adapter as its first attempt.
package optimizer
