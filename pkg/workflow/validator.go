// Package workflow contains the execution pipeline for recommendation
// batches: admission validation, deterministic planning, and the workflow
// engine that drives plans through their state machine with retry,
// compensation, and auditing.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ajosephmass/spendoptimo-agent/pkg/adapter"
	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
	"github.com/ajosephmass/spendoptimo-agent/pkg/policy"
)

// Rejection is the terminal admission outcome for a recommendation that
// never enters execution.
type Rejection struct {
	Reason string
}

// Validator performs admission checks on incoming recommendations. It is
// side-effect-free and never touches an adapter's provider calls.
type Validator struct {
	policies *policy.Store
	gate     *policy.Gate
	registry *adapter.Registry
	logger   zerolog.Logger
}

// NewValidator creates a validator over the given policy store, OPA gate,
// and adapter registry.
func NewValidator(policies *policy.Store, gate *policy.Gate, registry *adapter.Registry, logger zerolog.Logger) *Validator {
	return &Validator{
		policies: policies,
		gate:     gate,
		registry: registry,
		logger:   logger.With().Str("component", "validator").Logger(),
	}
}

// Validate checks one recommendation for admission. A nil result means the
// recommendation is accepted.
func (v *Validator) Validate(ctx context.Context, rec *optimizer.Recommendation) *Rejection {
	if rec.ResourceID == "" {
		return &Rejection{Reason: "resource_id is empty"}
	}
	if err := rec.ResourceKind.Validate(); err != nil {
		return &Rejection{Reason: err.Error()}
	}
	if _, err := v.registry.ForKind(rec.ResourceKind); err != nil {
		return &Rejection{Reason: fmt.Sprintf("no adapter registered for resource kind %q", rec.ResourceKind)}
	}
	if rec.EstimatedMonthlySavings < 0 {
		return &Rejection{Reason: fmt.Sprintf("estimated monthly savings is negative (%.2f)", rec.EstimatedMonthlySavings)}
	}
	if len(rec.TargetConfig) == 0 {
		return &Rejection{Reason: "target_config is empty"}
	}

	pol, err := v.policies.Lookup(rec.ResourceKind)
	if err != nil {
		return &Rejection{Reason: fmt.Sprintf("no policy for resource kind %q", rec.ResourceKind)}
	}

	// Resources carrying an exception tag are exempt from policy checks;
	// the change is still planned and executed.
	if pol.Exempt(rec.CurrentConfig) {
		v.logger.Info().
			Str("resource_id", rec.ResourceID).
			Str("resource_kind", string(rec.ResourceKind)).
			Msg("Resource exempt from policy checks via exception tag")
		return nil
	}

	if violations := pol.CheckTarget(rec.TargetConfig); len(violations) > 0 {
		return &Rejection{Reason: "target config violates policy: " + joinViolations(violations)}
	}

	gateViolations, err := v.gate.Evaluate(ctx, rec, pol)
	if err != nil {
		return &Rejection{Reason: fmt.Sprintf("policy evaluation failed: %v", err)}
	}
	if len(gateViolations) > 0 {
		return &Rejection{Reason: "policy denied: " + joinViolations(gateViolations)}
	}

	return nil
}

func joinViolations(violations []policy.Violation) string {
	msgs := make([]string, 0, len(violations))
	for _, viol := range violations {
		msgs = append(msgs, viol.Message)
	}
	return strings.Join(msgs, "; ")
}
