package optimizer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Recommendation is the immutable input record describing one proposed
// resource change. It is produced by the external analysis collaborator and
// never mutated after admission.
type Recommendation struct {
	// ID uniquely identifies the recommendation within a batch. Assigned
	// at admission when the producer leaves it empty.
	ID string `json:"id,omitempty"`

	// ResourceKind selects the adapter and plan shape.
	ResourceKind ResourceKind `json:"resource_kind"`

	// ResourceID is the provider identifier of the target resource.
	ResourceID string `json:"resource_id"`

	// CurrentConfig is the analysis collaborator's view of the resource
	// configuration before the change.
	CurrentConfig map[string]string `json:"current_config,omitempty"`

	// TargetConfig is the desired configuration after the change.
	TargetConfig map[string]string `json:"target_config"`

	// EstimatedMonthlySavings is the projected monthly saving in USD.
	EstimatedMonthlySavings float64 `json:"estimated_monthly_savings"`

	// Reason is the analysis collaborator's justification.
	Reason string `json:"reason,omitempty"`
}

// Step is one unit of a remediation plan.
type Step struct {
	// Kind is the step type.
	Kind StepKind `json:"kind"`

	// Name identifies the operation within the kind (e.g. "stop",
	// "change-type", "put-lifecycle-policy").
	Name string `json:"name"`

	// Payload carries resource-kind-specific parameters.
	Payload map[string]string `json:"payload,omitempty"`

	// IdempotencyKey is deterministic from the resource ID and step name.
	// A retried step carries the same key so the adapter can dedupe.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// IdempotencyKey derives the deterministic key for a step of a resource.
func IdempotencyKey(resourceID, stepName string) string {
	sum := sha256.Sum256([]byte(resourceID + "|" + stepName))
	return hex.EncodeToString(sum[:8])
}

// Plan is the ordered step sequence derived from one recommendation. It is
// owned by the workflow engine for the duration of execution.
type Plan struct {
	// ResourceKind is the kind the plan was built for.
	ResourceKind ResourceKind `json:"resource_kind"`

	// ResourceID is the target resource.
	ResourceID string `json:"resource_id"`

	// Steps is the fixed, ordered step sequence.
	Steps []Step `json:"steps"`
}

// MutateSteps returns the number of Mutate steps in the plan.
func (p *Plan) MutateSteps() int {
	n := 0
	for _, s := range p.Steps {
		if s.Kind == StepMutate {
			n++
		}
	}
	return n
}

// CurrentState is a read-only snapshot of a resource taken by an adapter's
// Describe call.
type CurrentState struct {
	// ResourceID is the described resource.
	ResourceID string `json:"resource_id"`

	// Exists reports whether the resource was found at the provider.
	Exists bool `json:"exists"`

	// Config is the observed configuration, keyed the same way as
	// Recommendation configs (e.g. "type", "memory_mb", "volume_type").
	Config map[string]string `json:"config,omitempty"`

	// ObservedAt is when the snapshot was taken.
	ObservedAt time.Time `json:"observed_at"`
}

// MutationReceipt is returned by a successful adapter Mutate call.
type MutationReceipt struct {
	// Applied is false when the resource already matched the step target
	// and the adapter no-oped (idempotent replay).
	Applied bool `json:"applied"`

	// NewConfig is the configuration after the mutation.
	NewConfig map[string]string `json:"new_config,omitempty"`

	// Compensation is the inverse step that undoes this mutation, or nil
	// when there is nothing to undo. Supplied by the adapter as part of
	// its Mutate contract.
	Compensation *Step `json:"compensation,omitempty"`
}

// StepOutcome records the terminal result of one executed step.
type StepOutcome struct {
	// Step is the executed step.
	Step Step `json:"step"`

	// Attempts is how many attempts the step took.
	Attempts int `json:"attempts"`

	// Err is the terminal error, nil on success.
	Err *Error `json:"error,omitempty"`

	// StartedAt and CompletedAt bound the final attempt.
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// ExecutionState is the mutable per-recommendation state owned by the worker
// executing it. It is created on batch admission and snapshotted into the
// batch report once terminal.
type ExecutionState struct {
	// Status is the current lifecycle status.
	Status ExecutionStatus `json:"status"`

	// CurrentStep is the index of the step being executed.
	CurrentStep int `json:"current_step"`

	// StepsCompleted counts steps that reached a successful terminal
	// outcome (compensation steps excluded).
	StepsCompleted int `json:"steps_completed"`

	// Attempts maps step index to attempt count.
	Attempts map[int]int `json:"attempts,omitempty"`

	// LastError is the error that ended execution, if any.
	LastError *Error `json:"last_error,omitempty"`

	// CompensationError is set when rollback itself failed. It is always
	// reported alongside LastError, never instead of it.
	CompensationError *Error `json:"compensation_error,omitempty"`

	// FinalConfig is the verified configuration after success.
	FinalConfig map[string]string `json:"final_config,omitempty"`

	// StartedAt is when execution (not admission) began.
	StartedAt time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the state became terminal.
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// NewExecutionState returns a fresh state in StatusPending.
func NewExecutionState() *ExecutionState {
	return &ExecutionState{
		Status:   StatusPending,
		Attempts: make(map[int]int),
	}
}

// Transition moves the state to next, enforcing the legal transition set.
func (s *ExecutionState) Transition(next ExecutionStatus) error {
	if !s.Status.CanTransition(next) {
		return fmt.Errorf("illegal status transition %s -> %s", s.Status, next)
	}
	s.Status = next
	if next.IsTerminal() {
		s.CompletedAt = time.Now().UTC()
	}
	return nil
}

// ReportEntry is one recommendation's line in a batch report.
type ReportEntry struct {
	// Recommendation is the input record, unchanged.
	Recommendation Recommendation `json:"recommendation"`

	// ResourceID is duplicated at the top level for report consumers.
	ResourceID string `json:"resource_id"`

	// Status is the terminal execution status.
	Status ExecutionStatus `json:"status"`

	// StepsCompleted counts successfully completed plan steps.
	StepsCompleted int `json:"steps_completed"`

	// Error is a human-readable reason for any non-succeeded entry.
	Error string `json:"error,omitempty"`

	// FinalConfig is the verified post-change configuration, present only
	// on success.
	FinalConfig map[string]string `json:"final_config,omitempty"`

	// Summary is a one-line human-readable outcome.
	Summary string `json:"summary"`
}

// BatchReport is the immutable output of one batch execution. Every input
// recommendation appears exactly once.
type BatchReport struct {
	// BatchID identifies the batch invocation.
	BatchID string `json:"batch_id"`

	// Entries holds one entry per input recommendation, in input order.
	Entries []ReportEntry `json:"entries"`

	// TotalEstimatedSavingsApplied sums the estimated monthly savings of
	// succeeded recommendations.
	TotalEstimatedSavingsApplied float64 `json:"total_estimated_savings_applied"`

	// StartedAt and CompletedAt bound the batch execution.
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Succeeded returns the number of succeeded entries.
func (r *BatchReport) Succeeded() int {
	n := 0
	for _, e := range r.Entries {
		if e.Status == StatusSucceeded {
			n++
		}
	}
	return n
}
