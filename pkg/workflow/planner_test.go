package workflow

import (
	"errors"
	"testing"

	"github.com/ajosephmass/spendoptimo-agent/pkg/adapter"
	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

func mustPlan(t *testing.T, rec optimizer.Recommendation) *optimizer.Plan {
	t.Helper()
	plan, err := NewPlanner().Plan(&rec)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	return plan
}

func stepNames(plan *optimizer.Plan) []string {
	names := make([]string, len(plan.Steps))
	for i, s := range plan.Steps {
		names[i] = s.Name
	}
	return names
}

func assertSequence(t *testing.T, plan *optimizer.Plan, want []string) {
	t.Helper()
	got := stepNames(plan)
	if len(got) != len(want) {
		t.Fatalf("Steps = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Steps = %v, want %v", got, want)
		}
	}
}

func TestPlanCompute(t *testing.T) {
	plan := mustPlan(t, optimizer.Recommendation{
		ResourceKind: optimizer.KindCompute,
		ResourceID:   "i-001",
		TargetConfig: map[string]string{"instance_type": "t3.medium"},
	})

	assertSequence(t, plan, []string{
		stepDescribe, stepCheckInstanceState,
		adapter.OpStop, adapter.OpChangeType, adapter.OpStart,
		stepVerify,
	})

	if plan.Steps[1].Kind != optimizer.StepPrecondition {
		t.Errorf("Step 1 kind = %s, want precondition", plan.Steps[1].Kind)
	}
	if plan.Steps[1].Payload["state"] != "running|stopped" {
		t.Errorf("Precondition payload = %v", plan.Steps[1].Payload)
	}
	if plan.Steps[3].Payload["instance_type"] != "t3.medium" {
		t.Errorf("Change-type payload = %v", plan.Steps[3].Payload)
	}
	if got := plan.Steps[5].Payload; got["instance_type"] != "t3.medium" || len(got) != 1 {
		t.Errorf("Verify payload = %v, want instance_type only", got)
	}
	if plan.MutateSteps() != 3 {
		t.Errorf("MutateSteps = %d, want 3", plan.MutateSteps())
	}
}

func TestPlanComputeMissingTarget(t *testing.T) {
	_, err := NewPlanner().Plan(&optimizer.Recommendation{
		ResourceKind: optimizer.KindCompute,
		ResourceID:   "i-001",
		TargetConfig: map[string]string{"state": "stopped"},
	})
	if optimizer.Classify(err) != optimizer.ErrorClassValidation {
		t.Errorf("Missing instance_type should be a validation error, got %v", err)
	}
}

func TestPlanObjectStore(t *testing.T) {
	plan := mustPlan(t, optimizer.Recommendation{
		ResourceKind: optimizer.KindObjectStore,
		ResourceID:   "logs-bucket",
		TargetConfig: map[string]string{
			"lifecycle_storage_class":   "INTELLIGENT_TIERING",
			"lifecycle_transition_days": "30",
		},
	})

	assertSequence(t, plan, []string{stepDescribe, adapter.OpPutLifecycle, stepVerify})
	payload := plan.Steps[1].Payload
	if payload["lifecycle_storage_class"] != "INTELLIGENT_TIERING" || payload["lifecycle_transition_days"] != "30" {
		t.Errorf("Lifecycle payload = %v", payload)
	}
}

func TestPlanFunction(t *testing.T) {
	both := mustPlan(t, optimizer.Recommendation{
		ResourceKind: optimizer.KindFunction,
		ResourceID:   "report-fn",
		TargetConfig: map[string]string{
			"memory_mb":            "1024",
			"reserved_concurrency": "10",
		},
	})
	assertSequence(t, both, []string{stepDescribe, adapter.OpUpdateConfig, adapter.OpSetConcurrency, stepVerify})

	configOnly := mustPlan(t, optimizer.Recommendation{
		ResourceKind: optimizer.KindFunction,
		ResourceID:   "report-fn",
		TargetConfig: map[string]string{"memory_mb": "1024"},
	})
	assertSequence(t, configOnly, []string{stepDescribe, adapter.OpUpdateConfig, stepVerify})

	concurrencyOnly := mustPlan(t, optimizer.Recommendation{
		ResourceKind: optimizer.KindFunction,
		ResourceID:   "report-fn",
		TargetConfig: map[string]string{"reserved_concurrency": "10"},
	})
	assertSequence(t, concurrencyOnly, []string{stepDescribe, adapter.OpSetConcurrency, stepVerify})

	_, err := NewPlanner().Plan(&optimizer.Recommendation{
		ResourceKind: optimizer.KindFunction,
		ResourceID:   "report-fn",
		TargetConfig: map[string]string{"unrelated": "x"},
	})
	if err == nil {
		t.Error("A function recommendation without usable targets should fail")
	}
}

func TestPlanDatabase(t *testing.T) {
	plan := mustPlan(t, optimizer.Recommendation{
		ResourceKind: optimizer.KindDatabase,
		ResourceID:   "orders-db",
		TargetConfig: map[string]string{
			"instance_class": "db.t3.medium",
			"storage_type":   "gp3",
		},
	})

	assertSequence(t, plan, []string{stepDescribe, adapter.OpModifyInstance, stepVerify})
	payload := plan.Steps[1].Payload
	if payload["instance_class"] != "db.t3.medium" || payload["storage_type"] != "gp3" {
		t.Errorf("Modify payload = %v", payload)
	}
}

func TestPlanVolume(t *testing.T) {
	plan := mustPlan(t, optimizer.Recommendation{
		ResourceKind: optimizer.KindVolume,
		ResourceID:   "vol-001",
		TargetConfig: map[string]string{"volume_type": "gp3"},
	})

	assertSequence(t, plan, []string{stepDescribe, stepCheckModificationState, adapter.OpModifyVolume, stepVerify})
	if plan.Steps[1].Payload["modification_state"] != "none" {
		t.Errorf("Precondition payload = %v", plan.Steps[1].Payload)
	}
}

func TestPlanUnknownKind(t *testing.T) {
	_, err := NewPlanner().Plan(&optimizer.Recommendation{
		ResourceKind: optimizer.ResourceKind("cluster"),
		ResourceID:   "x",
		TargetConfig: map[string]string{"a": "b"},
	})
	var cerr *optimizer.Error
	if !errors.As(err, &cerr) || cerr.Code != optimizer.ErrCodeUnknownKind {
		t.Errorf("Expected %s, got %v", optimizer.ErrCodeUnknownKind, err)
	}
}

func TestPlanIdempotencyKeysDeterministic(t *testing.T) {
	rec := optimizer.Recommendation{
		ResourceKind: optimizer.KindCompute,
		ResourceID:   "i-001",
		TargetConfig: map[string]string{"instance_type": "t3.medium"},
	}

	first := mustPlan(t, rec)
	second := mustPlan(t, rec)

	for i := range first.Steps {
		key := first.Steps[i].IdempotencyKey
		if len(key) != 16 {
			t.Errorf("Step %s: key %q is not 16 hex chars", first.Steps[i].Name, key)
		}
		if key != second.Steps[i].IdempotencyKey {
			t.Errorf("Step %s: key differs across plans", first.Steps[i].Name)
		}
	}

	// Keys are scoped to the resource.
	other := rec
	other.ResourceID = "i-002"
	otherPlan := mustPlan(t, other)
	if first.Steps[0].IdempotencyKey == otherPlan.Steps[0].IdempotencyKey {
		t.Error("Different resources should produce different keys")
	}
}
