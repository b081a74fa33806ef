package adapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

// fakeInstance backs a mockEC2 with a tiny stateful instance.
type fakeInstance struct {
	mu           sync.Mutex
	instanceType string
	state        string
	tags         map[string]string
}

func (f *fakeInstance) describe(_ *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst := ec2types.Instance{
		InstanceType: ec2types.InstanceType(f.instanceType),
		State:        &ec2types.InstanceState{Name: ec2types.InstanceStateName(f.state)},
	}
	for k, v := range f.tags {
		inst.Tags = append(inst.Tags, ec2types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return &ec2.DescribeInstancesOutput{
		Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{inst}}},
	}, nil
}

func (f *fakeInstance) setState(s string) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func newComputeAdapterForTest(client EC2API) *ComputeAdapter {
	a := NewComputeAdapter(client, zerolog.Nop())
	a.pollInterval = time.Millisecond
	a.pollTimeout = time.Second
	return a
}

func TestComputeDescribe(t *testing.T) {
	inst := &fakeInstance{instanceType: "r5.large", state: "running", tags: map[string]string{"Environment": "dev"}}
	a := newComputeAdapterForTest(&mockEC2{describeInstances: inst.describe})

	state, err := a.Describe(context.Background(), "i-abc")
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if !state.Exists {
		t.Fatal("Instance should exist")
	}
	if state.Config["instance_type"] != "r5.large" || state.Config["state"] != "running" {
		t.Errorf("Unexpected config: %v", state.Config)
	}
	if state.Config["tag:Environment"] != "dev" {
		t.Errorf("Tags should be surfaced: %v", state.Config)
	}
}

func TestComputeDescribeNotFound(t *testing.T) {
	client := &mockEC2{describeInstances: func(_ *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
		return nil, &smithy.GenericAPIError{Code: "InvalidInstanceID.NotFound", Message: "not found"}
	}}
	a := newComputeAdapterForTest(client)

	state, err := a.Describe(context.Background(), "i-missing")
	if err != nil {
		t.Fatalf("A missing instance should not be an error: %v", err)
	}
	if state.Exists {
		t.Error("Missing instance should report Exists=false")
	}
}

func TestComputeStop(t *testing.T) {
	inst := &fakeInstance{instanceType: "r5.large", state: "running"}
	client := &mockEC2{
		describeInstances: inst.describe,
		stopInstances: func(_ *ec2.StopInstancesInput) (*ec2.StopInstancesOutput, error) {
			inst.setState("stopped")
			return &ec2.StopInstancesOutput{}, nil
		},
	}
	a := newComputeAdapterForTest(client)

	receipt, err := a.Mutate(context.Background(), "i-abc", optimizer.Step{Kind: optimizer.StepMutate, Name: OpStop})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if !receipt.Applied {
		t.Error("Stop of a running instance should apply")
	}
	if receipt.NewConfig["state"] != "stopped" {
		t.Errorf("Expected stopped state, got %v", receipt.NewConfig)
	}
	if receipt.Compensation == nil || receipt.Compensation.Name != OpStart {
		t.Errorf("Stop compensation should be start, got %+v", receipt.Compensation)
	}
}

func TestComputeStopIdempotent(t *testing.T) {
	inst := &fakeInstance{instanceType: "r5.large", state: "stopped"}
	stopCalled := false
	client := &mockEC2{
		describeInstances: inst.describe,
		stopInstances: func(_ *ec2.StopInstancesInput) (*ec2.StopInstancesOutput, error) {
			stopCalled = true
			return &ec2.StopInstancesOutput{}, nil
		},
	}
	a := newComputeAdapterForTest(client)

	receipt, err := a.Mutate(context.Background(), "i-abc", optimizer.Step{Kind: optimizer.StepMutate, Name: OpStop})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if receipt.Applied {
		t.Error("Stop of a stopped instance should no-op")
	}
	if receipt.Compensation != nil {
		t.Error("A no-op needs no compensation")
	}
	if stopCalled {
		t.Error("StopInstances should not be called for a stopped instance")
	}
}

func TestComputeChangeType(t *testing.T) {
	inst := &fakeInstance{instanceType: "r5.large", state: "stopped"}
	client := &mockEC2{
		describeInstances: inst.describe,
		modifyInstanceAttribute: func(params *ec2.ModifyInstanceAttributeInput) (*ec2.ModifyInstanceAttributeOutput, error) {
			inst.mu.Lock()
			inst.instanceType = aws.ToString(params.InstanceType.Value)
			inst.mu.Unlock()
			return &ec2.ModifyInstanceAttributeOutput{}, nil
		},
	}
	a := newComputeAdapterForTest(client)

	step := optimizer.Step{Kind: optimizer.StepMutate, Name: OpChangeType, Payload: map[string]string{"instance_type": "t3.medium"}}
	receipt, err := a.Mutate(context.Background(), "i-abc", step)
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if !receipt.Applied || receipt.NewConfig["instance_type"] != "t3.medium" {
		t.Errorf("Unexpected receipt: %+v", receipt)
	}
	if receipt.Compensation == nil || receipt.Compensation.Payload["instance_type"] != "r5.large" {
		t.Errorf("Compensation should restore r5.large, got %+v", receipt.Compensation)
	}
}

func TestComputeChangeTypeRequiresStopped(t *testing.T) {
	inst := &fakeInstance{instanceType: "r5.large", state: "running"}
	a := newComputeAdapterForTest(&mockEC2{describeInstances: inst.describe})

	step := optimizer.Step{Kind: optimizer.StepMutate, Name: OpChangeType, Payload: map[string]string{"instance_type": "t3.medium"}}
	_, err := a.Mutate(context.Background(), "i-abc", step)
	if !optimizer.IsPrecondition(err) {
		t.Errorf("Expected precondition error, got %v", err)
	}
}

func TestComputeThrottledStop(t *testing.T) {
	inst := &fakeInstance{instanceType: "r5.large", state: "running"}
	client := &mockEC2{
		describeInstances: inst.describe,
		stopInstances: func(_ *ec2.StopInstancesInput) (*ec2.StopInstancesOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "RequestLimitExceeded", Message: "rate exceeded"}
		},
	}
	a := newComputeAdapterForTest(client)

	_, err := a.Mutate(context.Background(), "i-abc", optimizer.Step{Kind: optimizer.StepMutate, Name: OpStop})
	if !optimizer.IsThrottled(err) {
		t.Errorf("Expected throttled error, got %v", err)
	}
	if !optimizer.IsRetryable(err) {
		t.Error("Throttled errors should be retryable")
	}
}

func TestComputeVerify(t *testing.T) {
	inst := &fakeInstance{instanceType: "t3.medium", state: "running"}
	a := newComputeAdapterForTest(&mockEC2{describeInstances: inst.describe})

	ok, err := a.Verify(context.Background(), "i-abc", map[string]string{"instance_type": "t3.medium"})
	if err != nil || !ok {
		t.Errorf("Expected match, got ok=%v err=%v", ok, err)
	}

	inst.setState("stopped")
	ok, err = a.Verify(context.Background(), "i-abc", map[string]string{"instance_type": "t3.medium"})
	if err != nil || ok {
		t.Errorf("A stopped instance should not verify, got ok=%v err=%v", ok, err)
	}

	inst.setState("running")
	ok, err = a.Verify(context.Background(), "i-abc", map[string]string{"instance_type": "t3.large"})
	if err != nil || ok {
		t.Errorf("A type mismatch should not verify, got ok=%v err=%v", ok, err)
	}
}
