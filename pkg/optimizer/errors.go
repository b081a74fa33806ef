// Package optimizer defines the core types for the SpendOptimo execution
// engine: recommendations, remediation plans, execution state, and the
// classified error model shared by the validator, planner, workflow engine,
// and resource adapters.
package optimizer

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an error for the engine's retry and recovery logic.
type ErrorClass string

const (
	// ErrorClassValidation indicates a malformed or policy-violating
	// recommendation. Never retried; the recommendation is rejected.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassTransient indicates a temporary provider failure that may
	// succeed on retry. Examples: network timeouts, 5xx responses.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates provider-side rate limiting.
	// Retried with a longer backoff than plain transient failures.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassPrecondition indicates the resource is in a state
	// incompatible with the requested mutation. Non-retryable; triggers
	// compensation of any mutations already applied.
	ErrorClassPrecondition ErrorClass = "precondition"

	// ErrorClassVerification indicates a mutation appeared to succeed but
	// the post-mutation check disagrees. Triggers compensation.
	ErrorClassVerification ErrorClass = "verification"

	// ErrorClassCompensation indicates a rollback step itself failed.
	// Always surfaced alongside the original error, never swallowed.
	ErrorClassCompensation ErrorClass = "compensation"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: resource not found, permission denied.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Error is a classified error with resource and step context.
type Error struct {
	// Class is the error classification driving retry and compensation.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional provider or engine error code.
	Code string `json:"code,omitempty"`

	// Resource is the resource ID involved, if applicable.
	Resource string `json:"resource,omitempty"`

	// Step is the step name being executed when the error occurred.
	Step string `json:"step,omitempty"`

	// Err is the underlying cause.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if cause := e.unwrapMessage(); cause != "" {
		msg = fmt.Sprintf("%s: %s", msg, cause)
	}
	if e.Resource != "" && e.Step != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, step=%s)", e.Class, msg, e.Resource, e.Step)
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s)", e.Class, msg, e.Resource)
	}
	return fmt.Sprintf("[%s] %s", e.Class, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality for errors.Is: two classified errors match
// when their class and code match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewValidationError creates a validation error.
func NewValidationError(message string, err error) *Error {
	return &Error{Class: ErrorClassValidation, Message: message, Err: err}
}

// NewTransientError creates a transient error.
func NewTransientError(message string, err error) *Error {
	return &Error{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewThrottledError creates a throttled error.
func NewThrottledError(message string, err error) *Error {
	return &Error{Class: ErrorClassThrottled, Message: message, Err: err}
}

// NewPreconditionError creates a precondition-failed error.
func NewPreconditionError(message string, err error) *Error {
	return &Error{Class: ErrorClassPrecondition, Message: message, Err: err}
}

// NewVerificationError creates a verification-mismatch error.
func NewVerificationError(message string, err error) *Error {
	return &Error{Class: ErrorClassVerification, Message: message, Err: err}
}

// NewCompensationError creates a compensation-failure error wrapping the
// rollback failure.
func NewCompensationError(message string, err error) *Error {
	return &Error{Class: ErrorClassCompensation, Message: message, Err: err}
}

// NewPermanentError creates a permanent error.
func NewPermanentError(message string, err error) *Error {
	return &Error{Class: ErrorClassPermanent, Message: message, Err: err}
}

// WithResource adds resource context to the error.
func (e *Error) WithResource(resourceID string) *Error {
	e.Resource = resourceID
	return e
}

// WithStep adds step context to the error.
func (e *Error) WithStep(step string) *Error {
	e.Step = step
	return e
}

// WithCode adds an error code to the error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// Classify returns the class of err, or ErrorClassPermanent when err carries
// no classification.
func Classify(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ErrorClassPermanent
}

// IsTransient reports whether err is classified as transient.
func IsTransient(err error) bool {
	return Classify(err) == ErrorClassTransient
}

// IsThrottled reports whether err is classified as throttled.
func IsThrottled(err error) bool {
	return Classify(err) == ErrorClassThrottled
}

// IsPrecondition reports whether err is classified as a precondition failure.
func IsPrecondition(err error) bool {
	return Classify(err) == ErrorClassPrecondition
}

// IsVerification reports whether err is classified as a verification mismatch.
func IsVerification(err error) bool {
	return Classify(err) == ErrorClassVerification
}

// IsRetryable reports whether the step that produced err may be retried.
// Only transient and throttled errors are retryable.
func IsRetryable(err error) bool {
	c := Classify(err)
	return c == ErrorClassTransient || c == ErrorClassThrottled
}

// Common error codes.
const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeThrottled        = "THROTTLED"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeBadState         = "INCOMPATIBLE_STATE"
	ErrCodePolicyViolation  = "POLICY_VIOLATION"
	ErrCodeUnknownKind      = "UNKNOWN_RESOURCE_KIND"
	ErrCodeCancelled        = "BATCH_CANCELLED"
)
