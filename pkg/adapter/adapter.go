// Package adapter implements the per-resource-kind remediation adapters that
// translate plan steps into cloud provider calls. Adapters are the only
// component that talks to the provider; the workflow engine drives them
// through the narrow Adapter interface and never sees an SDK type.
package adapter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

// Mutate operation names dispatched by the adapters. The planner emits steps
// carrying these names; compensation steps reuse them.
const (
	OpStop             = "stop"
	OpStart            = "start"
	OpChangeType       = "change-type"
	OpPutLifecycle     = "put-lifecycle-policy"
	OpDeleteLifecycle  = "delete-lifecycle-rule"
	OpUpdateConfig     = "update-configuration"
	OpSetConcurrency   = "set-concurrency"
	OpClearConcurrency = "clear-concurrency"
	OpModifyInstance   = "modify-instance"
	OpModifyVolume     = "modify-volume"
)

// Adapter applies one resource kind's optimizations against the provider.
//
// Mutate must be idempotent: it describes the resource first and returns a
// receipt with Applied=false when the resource already matches the step
// target. Receipts for applied mutations carry the inverse step used for
// compensation.
type Adapter interface {
	// Kind returns the resource kind this adapter serves.
	Kind() optimizer.ResourceKind

	// Describe takes a read-only snapshot of the resource. A cleanly
	// missing resource returns Exists=false with a nil error.
	Describe(ctx context.Context, resourceID string) (optimizer.CurrentState, error)

	// Mutate applies one plan step to the resource.
	Mutate(ctx context.Context, resourceID string, step optimizer.Step) (optimizer.MutationReceipt, error)

	// Verify reports whether the resource matches the expected
	// configuration. A clean mismatch returns (false, nil); errors are
	// reserved for provider failures.
	Verify(ctx context.Context, resourceID string, expected map[string]string) (bool, error)
}

// Registry maps resource kinds to their adapters.
type Registry struct {
	adapters map[optimizer.ResourceKind]Adapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{
		adapters: make(map[optimizer.ResourceKind]Adapter, len(adapters)),
	}
	for _, a := range adapters {
		r.adapters[a.Kind()] = a
	}
	return r
}

// NewRegistryFromClients builds the full adapter set over one client set.
func NewRegistryFromClients(clients *Clients, logger zerolog.Logger) *Registry {
	return NewRegistry(
		NewComputeAdapter(clients.EC2, logger),
		NewObjectStoreAdapter(clients.S3, logger),
		NewFunctionAdapter(clients.Lambda, logger),
		NewDatabaseAdapter(clients.RDS, logger),
		NewVolumeAdapter(clients.EC2, logger),
	)
}

// Register adds or replaces the adapter for its kind.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Kind()] = a
}

// ForKind returns the adapter registered for kind.
func (r *Registry) ForKind(kind optimizer.ResourceKind) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, optimizer.NewValidationError("no adapter registered for resource kind "+string(kind), nil).
			WithCode(optimizer.ErrCodeUnknownKind)
	}
	return a, nil
}

// Kinds returns the registered kinds in enum order.
func (r *Registry) Kinds() []optimizer.ResourceKind {
	kinds := []optimizer.ResourceKind{}
	for _, k := range optimizer.Kinds() {
		if _, ok := r.adapters[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// configMatches checks the expected values against an observed config,
// considering only the keys the adapter reports. Expected keys outside the
// key set are ignored.
func configMatches(observed, expected map[string]string, keys []string) bool {
	for _, k := range keys {
		want, ok := expected[k]
		if !ok {
			continue
		}
		if observed[k] != want {
			return false
		}
	}
	return true
}

// compensationStep builds the inverse step recorded in a mutation receipt.
func compensationStep(resourceID, name string, payload map[string]string) *optimizer.Step {
	return &optimizer.Step{
		Kind:           optimizer.StepCompensate,
		Name:           name,
		Payload:        payload,
		IdempotencyKey: optimizer.IdempotencyKey(resourceID, name),
	}
}
