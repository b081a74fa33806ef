package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ajosephmass/spendoptimo-agent/pkg/adapter"
	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
	"github.com/ajosephmass/spendoptimo-agent/pkg/policy"
)

func newTestValidator(t *testing.T, adapters ...adapter.Adapter) *Validator {
	t.Helper()

	gate, err := policy.NewGate(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewGate failed: %v", err)
	}
	store, err := policy.NewStore(zerolog.Nop(), gate)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewValidator(store, gate, adapter.NewRegistry(adapters...), zerolog.Nop())
}

func TestValidateAccepts(t *testing.T) {
	v := newTestValidator(t, newFakeCompute("r5.large"))

	rec := computeRec("i-001", "r5.large", "t3.medium", 42.50)
	if rej := v.Validate(context.Background(), &rec); rej != nil {
		t.Errorf("Valid recommendation rejected: %s", rej.Reason)
	}
}

func TestValidateRejectsMalformed(t *testing.T) {
	v := newTestValidator(t, newFakeCompute("r5.large"))

	tests := []struct {
		name string
		rec  optimizer.Recommendation
		want string
	}{
		{
			name: "empty resource id",
			rec:  computeRec("", "r5.large", "t3.medium", 10),
			want: "resource_id",
		},
		{
			name: "unknown kind",
			rec: optimizer.Recommendation{
				ResourceKind: optimizer.ResourceKind("cluster"),
				ResourceID:   "x",
				TargetConfig: map[string]string{"a": "b"},
			},
			want: "resource kind",
		},
		{
			name: "negative savings",
			rec:  computeRec("i-001", "r5.large", "t3.medium", -5),
			want: "negative",
		},
		{
			name: "empty target config",
			rec: optimizer.Recommendation{
				ResourceKind: optimizer.KindCompute,
				ResourceID:   "i-001",
			},
			want: "target_config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rej := v.Validate(context.Background(), &tt.rec)
			if rej == nil {
				t.Fatal("Expected rejection")
			}
			if !strings.Contains(rej.Reason, tt.want) {
				t.Errorf("Reason %q should mention %q", rej.Reason, tt.want)
			}
		})
	}
}

func TestValidateRejectsUnregisteredKind(t *testing.T) {
	// Registry with no adapters: even a well-formed recommendation has
	// nowhere to execute.
	v := newTestValidator(t)

	rec := computeRec("i-001", "r5.large", "t3.medium", 10)
	rej := v.Validate(context.Background(), &rec)
	if rej == nil || !strings.Contains(rej.Reason, "no adapter") {
		t.Errorf("Expected an adapter rejection, got %v", rej)
	}
}

func TestValidateRejectsPolicyViolation(t *testing.T) {
	v := newTestValidator(t, newFakeCompute("t3.medium"))

	rec := computeRec("i-001", "t3.medium", "r5.xlarge", 10)
	rej := v.Validate(context.Background(), &rec)
	if rej == nil {
		t.Fatal("Upsizing into a disallowed family should reject")
	}
	if !strings.Contains(rej.Reason, "disallowed") {
		t.Errorf("Reason should name the violation, got %q", rej.Reason)
	}
}

func TestValidateExemptionTag(t *testing.T) {
	v := newTestValidator(t, newFakeCompute("r5.large"))

	rec := computeRec("i-001", "r5.large", "r5.xlarge", 10)
	rec.CurrentConfig["tag:Environment"] = "production"

	if rej := v.Validate(context.Background(), &rec); rej != nil {
		t.Errorf("A production-tagged resource is exempt from type policy, got rejection: %s", rej.Reason)
	}

	// The same target without the tag is rejected.
	plain := computeRec("i-002", "r5.large", "r5.xlarge", 10)
	if rej := v.Validate(context.Background(), &plain); rej == nil {
		t.Error("Without the exception tag the target must reject")
	}
}

func TestValidateVolumePolicy(t *testing.T) {
	fake := newFakeCompute("r5.large")
	fake.kind = optimizer.KindVolume
	v := newTestValidator(t, fake)

	rec := optimizer.Recommendation{
		ResourceKind: optimizer.KindVolume,
		ResourceID:   "vol-001",
		TargetConfig: map[string]string{"volume_type": "io1"},
	}
	rej := v.Validate(context.Background(), &rec)
	if rej == nil || !strings.Contains(rej.Reason, "io1") {
		t.Errorf("Provisioned IOPS volume target should reject, got %v", rej)
	}

	rec.TargetConfig["volume_type"] = "gp3"
	if rej := v.Validate(context.Background(), &rec); rej != nil {
		t.Errorf("gp3 target should pass, got %s", rej.Reason)
	}
}
