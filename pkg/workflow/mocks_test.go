package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajosephmass/spendoptimo-agent/pkg/adapter"
	"github.com/ajosephmass/spendoptimo-agent/pkg/audit"
	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

// fakeAdapter is an in-memory compute-style adapter. It applies stop, start,
// and change-type mutations to a config map, returns inverse compensation
// steps, and can be primed to fail specific operations.
type fakeAdapter struct {
	kind optimizer.ResourceKind

	mu        sync.Mutex
	exists    bool
	config    map[string]string
	mutations []string
	failures  map[string][]error
	onMutate  func(name string)

	active int32
	raced  atomic.Bool
}

func newFakeCompute(instanceType string) *fakeAdapter {
	return &fakeAdapter{
		kind:   optimizer.KindCompute,
		exists: true,
		config: map[string]string{
			"instance_type": instanceType,
			"state":         "running",
		},
		failures: map[string][]error{},
	}
}

// fail queues errors for an operation name; each queued error is consumed by
// one call before the operation behaves normally again.
func (f *fakeAdapter) fail(name string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[name] = append(f.failures[name], errs...)
}

func (f *fakeAdapter) popFailure(name string) error {
	queue := f.failures[name]
	if len(queue) == 0 {
		return nil
	}
	f.failures[name] = queue[1:]
	return queue[0]
}

func (f *fakeAdapter) snapshot() map[string]string {
	cfg := make(map[string]string, len(f.config))
	for k, v := range f.config {
		cfg[k] = v
	}
	return cfg
}

func (f *fakeAdapter) appliedMutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.mutations))
	copy(out, f.mutations)
	return out
}

func (f *fakeAdapter) Kind() optimizer.ResourceKind { return f.kind }

func (f *fakeAdapter) Describe(_ context.Context, resourceID string) (optimizer.CurrentState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popFailure("describe"); err != nil {
		return optimizer.CurrentState{}, err
	}
	return optimizer.CurrentState{
		ResourceID: resourceID,
		Exists:     f.exists,
		Config:     f.snapshot(),
		ObservedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeAdapter) Mutate(_ context.Context, resourceID string, step optimizer.Step) (optimizer.MutationReceipt, error) {
	// Detects interleaved mutations on the same adapter; the engine must
	// serialize recommendations per resource.
	if atomic.AddInt32(&f.active, 1) != 1 {
		f.raced.Store(true)
	}
	time.Sleep(time.Millisecond)
	defer atomic.AddInt32(&f.active, -1)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.onMutate != nil {
		f.onMutate(step.Name)
	}
	if err := f.popFailure(step.Name); err != nil {
		return optimizer.MutationReceipt{}, err
	}

	var compensation *optimizer.Step
	switch step.Name {
	case adapter.OpStop:
		if f.config["state"] == "stopped" {
			return optimizer.MutationReceipt{Applied: false, NewConfig: f.snapshot()}, nil
		}
		f.config["state"] = "stopped"
		compensation = &optimizer.Step{Kind: optimizer.StepCompensate, Name: adapter.OpStart}

	case adapter.OpStart:
		if f.config["state"] == "running" {
			return optimizer.MutationReceipt{Applied: false, NewConfig: f.snapshot()}, nil
		}
		f.config["state"] = "running"
		compensation = &optimizer.Step{Kind: optimizer.StepCompensate, Name: adapter.OpStop}

	case adapter.OpChangeType:
		target := step.Payload["instance_type"]
		if f.config["instance_type"] == target {
			return optimizer.MutationReceipt{Applied: false, NewConfig: f.snapshot()}, nil
		}
		prior := f.config["instance_type"]
		f.config["instance_type"] = target
		compensation = &optimizer.Step{
			Kind:    optimizer.StepCompensate,
			Name:    adapter.OpChangeType,
			Payload: map[string]string{"instance_type": prior},
		}

	default:
		return optimizer.MutationReceipt{}, optimizer.NewPermanentError("unknown operation "+step.Name, nil).
			WithResource(resourceID).WithStep(step.Name)
	}

	f.mutations = append(f.mutations, step.Name)
	return optimizer.MutationReceipt{
		Applied:      true,
		NewConfig:    f.snapshot(),
		Compensation: compensation,
	}, nil
}

func (f *fakeAdapter) Verify(_ context.Context, _ string, expected map[string]string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popFailure("verify"); err != nil {
		return false, err
	}
	for k, v := range expected {
		if f.config[k] != v {
			return false, nil
		}
	}
	return true, nil
}

// collectSink is an in-memory audit sink.
type collectSink struct {
	mu      sync.Mutex
	records []audit.Record
}

func (s *collectSink) Record(_ context.Context, rec *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

func (s *collectSink) Close() error { return nil }

func (s *collectSink) byStep(name string) []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Record
	for _, r := range s.records {
		if r.StepName == name {
			out = append(out, r)
		}
	}
	return out
}

func (s *collectSink) withStatus(status audit.Status) []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Record
	for _, r := range s.records {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}
