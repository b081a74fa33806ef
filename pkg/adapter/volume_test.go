package adapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

type fakeVolume struct {
	mu         sync.Mutex
	volumeType string
	sizeGB     int32
	modState   ec2types.VolumeModificationState
}

func (f *fakeVolume) describe(_ *ec2.DescribeVolumesInput) (*ec2.DescribeVolumesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &ec2.DescribeVolumesOutput{
		Volumes: []ec2types.Volume{{
			VolumeType: ec2types.VolumeType(f.volumeType),
			Size:       aws.Int32(f.sizeGB),
			State:      ec2types.VolumeStateInUse,
		}},
	}, nil
}

func (f *fakeVolume) describeModifications(_ *ec2.DescribeVolumesModificationsInput) (*ec2.DescribeVolumesModificationsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.modState == "" {
		return &ec2.DescribeVolumesModificationsOutput{}, nil
	}
	return &ec2.DescribeVolumesModificationsOutput{
		VolumesModifications: []ec2types.VolumeModification{{ModificationState: f.modState}},
	}, nil
}

func newVolumeAdapterForTest(client EC2API) *VolumeAdapter {
	a := NewVolumeAdapter(client, zerolog.Nop())
	a.pollInterval = time.Millisecond
	a.pollTimeout = 50 * time.Millisecond
	return a
}

func TestVolumeDescribe(t *testing.T) {
	vol := &fakeVolume{volumeType: "io1", sizeGB: 500}
	a := newVolumeAdapterForTest(&mockEC2{
		describeVolumes:              vol.describe,
		describeVolumesModifications: vol.describeModifications,
	})

	state, err := a.Describe(context.Background(), "vol-abc")
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if state.Config["volume_type"] != "io1" || state.Config["size_gb"] != "500" {
		t.Errorf("Unexpected config: %v", state.Config)
	}
	if state.Config["modification_state"] != "none" {
		t.Errorf("Fresh volume should report no modification: %v", state.Config)
	}
}

func TestVolumeDescribeCompletedModification(t *testing.T) {
	vol := &fakeVolume{volumeType: "gp3", sizeGB: 500, modState: ec2types.VolumeModificationStateCompleted}
	a := newVolumeAdapterForTest(&mockEC2{
		describeVolumes:              vol.describe,
		describeVolumesModifications: vol.describeModifications,
	})

	state, err := a.Describe(context.Background(), "vol-abc")
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if state.Config["modification_state"] != "none" {
		t.Errorf("A completed modification should not block, got %v", state.Config["modification_state"])
	}
}

func TestVolumeModify(t *testing.T) {
	vol := &fakeVolume{volumeType: "io1", sizeGB: 500}
	var modifyInput *ec2.ModifyVolumeInput
	client := &mockEC2{
		describeVolumes:              vol.describe,
		describeVolumesModifications: vol.describeModifications,
		modifyVolume: func(params *ec2.ModifyVolumeInput) (*ec2.ModifyVolumeOutput, error) {
			modifyInput = params
			return &ec2.ModifyVolumeOutput{}, nil
		},
	}
	a := newVolumeAdapterForTest(client)

	step := optimizer.Step{
		Kind:    optimizer.StepMutate,
		Name:    OpModifyVolume,
		Payload: map[string]string{"volume_type": "gp3", "size_gb": "600"},
	}
	receipt, err := a.Mutate(context.Background(), "vol-abc", step)
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if !receipt.Applied {
		t.Error("Modification should apply")
	}
	if modifyInput.VolumeType != ec2types.VolumeTypeGp3 || aws.ToInt32(modifyInput.Size) != 600 {
		t.Errorf("Unexpected modify input: %+v", modifyInput)
	}
	if receipt.Compensation == nil || receipt.Compensation.Payload["volume_type"] != "io1" {
		t.Errorf("Compensation should restore io1, got %+v", receipt.Compensation)
	}
	if _, ok := receipt.Compensation.Payload["size_gb"]; ok {
		t.Error("Size growth is irreversible and must not appear in compensation")
	}
}

func TestVolumeCannotShrink(t *testing.T) {
	vol := &fakeVolume{volumeType: "gp3", sizeGB: 500}
	a := newVolumeAdapterForTest(&mockEC2{
		describeVolumes:              vol.describe,
		describeVolumesModifications: vol.describeModifications,
	})

	step := optimizer.Step{
		Kind:    optimizer.StepMutate,
		Name:    OpModifyVolume,
		Payload: map[string]string{"size_gb": "100"},
	}
	_, err := a.Mutate(context.Background(), "vol-abc", step)
	if !optimizer.IsPrecondition(err) {
		t.Errorf("Shrinking should fail the precondition, got %v", err)
	}
}

func TestVolumeModifyBlockedByInProgress(t *testing.T) {
	vol := &fakeVolume{volumeType: "io1", sizeGB: 500, modState: ec2types.VolumeModificationStateModifying}
	a := newVolumeAdapterForTest(&mockEC2{
		describeVolumes:              vol.describe,
		describeVolumesModifications: vol.describeModifications,
	})

	step := optimizer.Step{
		Kind:    optimizer.StepMutate,
		Name:    OpModifyVolume,
		Payload: map[string]string{"volume_type": "gp3"},
	}
	_, err := a.Mutate(context.Background(), "vol-abc", step)
	if !optimizer.IsPrecondition(err) {
		t.Errorf("An in-progress modification should block, got %v", err)
	}
}

func TestVolumeModifyIdempotent(t *testing.T) {
	vol := &fakeVolume{volumeType: "gp3", sizeGB: 600}
	called := false
	client := &mockEC2{
		describeVolumes:              vol.describe,
		describeVolumesModifications: vol.describeModifications,
		modifyVolume: func(_ *ec2.ModifyVolumeInput) (*ec2.ModifyVolumeOutput, error) {
			called = true
			return &ec2.ModifyVolumeOutput{}, nil
		},
	}
	a := newVolumeAdapterForTest(client)

	step := optimizer.Step{
		Kind:    optimizer.StepMutate,
		Name:    OpModifyVolume,
		Payload: map[string]string{"volume_type": "gp3", "size_gb": "600"},
	}
	receipt, err := a.Mutate(context.Background(), "vol-abc", step)
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if receipt.Applied || called {
		t.Error("A matching volume should no-op")
	}
}

func TestVolumeVerifyPolls(t *testing.T) {
	vol := &fakeVolume{volumeType: "io1", sizeGB: 500}
	a := newVolumeAdapterForTest(&mockEC2{
		describeVolumes:              vol.describe,
		describeVolumesModifications: vol.describeModifications,
	})

	go func() {
		time.Sleep(10 * time.Millisecond)
		vol.mu.Lock()
		vol.volumeType = "gp3"
		vol.mu.Unlock()
	}()

	ok, err := a.Verify(context.Background(), "vol-abc", map[string]string{"volume_type": "gp3"})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Error("Verify should succeed once the type change lands")
	}
}
