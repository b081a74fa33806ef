package workflow

import (
	"github.com/ajosephmass/spendoptimo-agent/pkg/adapter"
	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

// Step names for the non-mutate steps the engine executes itself.
const (
	stepDescribe               = "describe"
	stepCheckInstanceState     = "check-instance-state"
	stepCheckModificationState = "check-modification-state"
	stepVerify                 = "verify"
)

// verifyKeys lists, per kind, the target config keys the final verify step
// confirms against the live resource.
var verifyKeys = map[optimizer.ResourceKind][]string{
	optimizer.KindCompute:     {"instance_type"},
	optimizer.KindObjectStore: {"lifecycle_storage_class", "lifecycle_transition_days"},
	optimizer.KindFunction:    {"memory_mb", "timeout_seconds", "reserved_concurrency"},
	optimizer.KindDatabase:    {"instance_class", "storage_type", "allocated_storage_gb", "multi_az", "backup_retention_days"},
	optimizer.KindVolume:      {"volume_type", "size_gb"},
}

// Planner expands a validated recommendation into its canonical step
// sequence. Planning is pure: the sequence is fixed per kind, and all
// conditional behavior (retries, preconditions, compensation) belongs to the
// engine.
type Planner struct{}

// NewPlanner creates a planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// Plan builds the remediation plan for one recommendation.
func (p *Planner) Plan(rec *optimizer.Recommendation) (*optimizer.Plan, error) {
	var steps []optimizer.Step
	switch rec.ResourceKind {
	case optimizer.KindCompute:
		target, ok := rec.TargetConfig["instance_type"]
		if !ok || target == "" {
			return nil, optimizer.NewValidationError("compute recommendation has no target instance_type", nil).
				WithResource(rec.ResourceID)
		}
		steps = []optimizer.Step{
			step(rec, optimizer.StepDescribe, stepDescribe, nil),
			// The instance must be in a state the stop/start cycle can
			// work from.
			step(rec, optimizer.StepPrecondition, stepCheckInstanceState, map[string]string{"state": "running|stopped"}),
			step(rec, optimizer.StepMutate, adapter.OpStop, nil),
			step(rec, optimizer.StepMutate, adapter.OpChangeType, map[string]string{"instance_type": target}),
			step(rec, optimizer.StepMutate, adapter.OpStart, nil),
			step(rec, optimizer.StepVerify, stepVerify, verifyPayload(rec)),
		}

	case optimizer.KindObjectStore:
		if rec.TargetConfig["lifecycle_storage_class"] == "" {
			return nil, optimizer.NewValidationError("object store recommendation has no target lifecycle_storage_class", nil).
				WithResource(rec.ResourceID)
		}
		steps = []optimizer.Step{
			step(rec, optimizer.StepDescribe, stepDescribe, nil),
			step(rec, optimizer.StepMutate, adapter.OpPutLifecycle, pick(rec.TargetConfig, "lifecycle_storage_class", "lifecycle_transition_days")),
			step(rec, optimizer.StepVerify, stepVerify, verifyPayload(rec)),
		}

	case optimizer.KindFunction:
		config := pick(rec.TargetConfig, "memory_mb", "timeout_seconds")
		concurrency := pick(rec.TargetConfig, "reserved_concurrency")
		if len(config) == 0 && len(concurrency) == 0 {
			return nil, optimizer.NewValidationError("function recommendation has no target configuration", nil).
				WithResource(rec.ResourceID)
		}
		steps = []optimizer.Step{step(rec, optimizer.StepDescribe, stepDescribe, nil)}
		if len(config) > 0 {
			steps = append(steps, step(rec, optimizer.StepMutate, adapter.OpUpdateConfig, config))
		}
		if len(concurrency) > 0 {
			steps = append(steps, step(rec, optimizer.StepMutate, adapter.OpSetConcurrency, concurrency))
		}
		steps = append(steps, step(rec, optimizer.StepVerify, stepVerify, verifyPayload(rec)))

	case optimizer.KindDatabase:
		payload := pick(rec.TargetConfig, verifyKeys[optimizer.KindDatabase]...)
		if len(payload) == 0 {
			return nil, optimizer.NewValidationError("database recommendation has no target configuration", nil).
				WithResource(rec.ResourceID)
		}
		steps = []optimizer.Step{
			step(rec, optimizer.StepDescribe, stepDescribe, nil),
			step(rec, optimizer.StepMutate, adapter.OpModifyInstance, payload),
			step(rec, optimizer.StepVerify, stepVerify, verifyPayload(rec)),
		}

	case optimizer.KindVolume:
		payload := pick(rec.TargetConfig, "volume_type", "size_gb")
		if len(payload) == 0 {
			return nil, optimizer.NewValidationError("volume recommendation has no target configuration", nil).
				WithResource(rec.ResourceID)
		}
		steps = []optimizer.Step{
			step(rec, optimizer.StepDescribe, stepDescribe, nil),
			step(rec, optimizer.StepPrecondition, stepCheckModificationState, map[string]string{"modification_state": "none"}),
			step(rec, optimizer.StepMutate, adapter.OpModifyVolume, payload),
			step(rec, optimizer.StepVerify, stepVerify, verifyPayload(rec)),
		}

	default:
		return nil, optimizer.NewValidationError("unknown resource kind "+string(rec.ResourceKind), nil).
			WithCode(optimizer.ErrCodeUnknownKind).WithResource(rec.ResourceID)
	}

	return &optimizer.Plan{
		ResourceKind: rec.ResourceKind,
		ResourceID:   rec.ResourceID,
		Steps:        steps,
	}, nil
}

func step(rec *optimizer.Recommendation, kind optimizer.StepKind, name string, payload map[string]string) optimizer.Step {
	return optimizer.Step{
		Kind:           kind,
		Name:           name,
		Payload:        payload,
		IdempotencyKey: optimizer.IdempotencyKey(rec.ResourceID, name),
	}
}

// verifyPayload filters the target config down to the keys the kind's
// adapter can observe.
func verifyPayload(rec *optimizer.Recommendation) map[string]string {
	return pick(rec.TargetConfig, verifyKeys[rec.ResourceKind]...)
}

func pick(m map[string]string, keys ...string) map[string]string {
	out := map[string]string{}
	for _, k := range keys {
		if v, ok := m[k]; ok && v != "" {
			out[k] = v
		}
	}
	return out
}
