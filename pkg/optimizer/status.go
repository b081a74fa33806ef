package optimizer

import (
	"encoding/json"
	"fmt"
)

// ResourceKind identifies the class of cloud resource a recommendation
// targets. The set is closed: each kind has exactly one registered adapter
// and one canonical remediation plan shape.
type ResourceKind string

const (
	// KindCompute is a virtual machine instance (rightsizing via
	// stop / modify type / start).
	KindCompute ResourceKind = "compute"

	// KindObjectStore is an object storage bucket (lifecycle policy).
	KindObjectStore ResourceKind = "object_store"

	// KindFunction is a serverless function (memory, timeout, concurrency).
	KindFunction ResourceKind = "function"

	// KindDatabase is a managed database instance (instance class).
	KindDatabase ResourceKind = "database"

	// KindVolume is a block storage volume (type and size).
	KindVolume ResourceKind = "volume"
)

// Kinds returns all valid resource kinds in a stable order.
func Kinds() []ResourceKind {
	return []ResourceKind{KindCompute, KindObjectStore, KindFunction, KindDatabase, KindVolume}
}

// Validate checks that the resource kind is one of the closed set.
func (k ResourceKind) Validate() error {
	switch k {
	case KindCompute, KindObjectStore, KindFunction, KindDatabase, KindVolume:
		return nil
	default:
		return fmt.Errorf("invalid resource kind: %q", string(k))
	}
}

// UnmarshalJSON implements JSON unmarshaling with validation.
func (k *ResourceKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*k = ResourceKind(s)
	return k.Validate()
}

// StepKind is the type of a single remediation step.
type StepKind string

const (
	// StepDescribe takes a read-only snapshot of the resource.
	StepDescribe StepKind = "describe"

	// StepPrecondition checks the resource is in a state compatible with
	// the planned mutation.
	StepPrecondition StepKind = "precondition_check"

	// StepMutate performs one idempotent remediation change.
	StepMutate StepKind = "mutate"

	// StepVerify confirms a mutation took effect.
	StepVerify StepKind = "verify"

	// StepCompensate undoes a previously applied mutation.
	StepCompensate StepKind = "compensate"
)

// Validate checks that the step kind is valid.
func (s StepKind) Validate() error {
	switch s {
	case StepDescribe, StepPrecondition, StepMutate, StepVerify, StepCompensate:
		return nil
	default:
		return fmt.Errorf("invalid step kind: %q", string(s))
	}
}

// ExecutionStatus is the lifecycle status of one recommendation inside a
// batch. Transitions are monotonic forward, with two exceptions: Executing
// may fall back to Compensating, and any non-terminal state may move to
// Failed.
type ExecutionStatus string

const (
	// StatusPending indicates the recommendation is admitted but not yet
	// picked up by a worker.
	StatusPending ExecutionStatus = "pending"

	// StatusValidating indicates admission checks are running.
	StatusValidating ExecutionStatus = "validating"

	// StatusPlanning indicates the step sequence is being built.
	StatusPlanning ExecutionStatus = "planning"

	// StatusExecuting indicates plan steps are running.
	StatusExecuting ExecutionStatus = "executing"

	// StatusCompensating indicates applied mutations are being rolled back.
	StatusCompensating ExecutionStatus = "compensating"

	// StatusSucceeded indicates every step completed and verification passed.
	StatusSucceeded ExecutionStatus = "succeeded"

	// StatusFailed indicates the plan could not complete; any applied
	// mutations have been compensated (or the compensation failure is
	// recorded).
	StatusFailed ExecutionStatus = "failed"

	// StatusRejected indicates the recommendation never entered execution.
	StatusRejected ExecutionStatus = "rejected"
)

// IsTerminal reports whether the status is final.
func (s ExecutionStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusRejected
}

// Validate checks that the execution status is valid.
func (s ExecutionStatus) Validate() error {
	switch s {
	case StatusPending, StatusValidating, StatusPlanning, StatusExecuting,
		StatusCompensating, StatusSucceeded, StatusFailed, StatusRejected:
		return nil
	default:
		return fmt.Errorf("invalid execution status: %q", string(s))
	}
}

// CanTransition reports whether a transition from s to next is legal.
// Terminal states never transition. Forward progress only, except
// Executing -> Compensating and any active state -> Failed.
func (s ExecutionStatus) CanTransition(next ExecutionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusValidating || next == StatusRejected || next == StatusFailed
	case StatusValidating:
		return next == StatusPlanning || next == StatusRejected || next == StatusFailed
	case StatusPlanning:
		return next == StatusExecuting || next == StatusRejected || next == StatusFailed
	case StatusExecuting:
		return next == StatusSucceeded || next == StatusCompensating || next == StatusFailed
	case StatusCompensating:
		return next == StatusFailed
	default:
		return false
	}
}

// MarshalJSON implements type-safe enum serialization.
func (s ExecutionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements JSON unmarshaling with validation.
func (s *ExecutionStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ExecutionStatus(str)
	return s.Validate()
}
