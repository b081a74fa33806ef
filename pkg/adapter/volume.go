package adapter

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

var volumeKeys = []string{"volume_type", "size_gb"}

// VolumeAdapter migrates EBS volumes between types and grows them. EBS
// allows one modification at a time per volume, so the planner inserts a
// modification-state precondition ahead of the mutate step.
type VolumeAdapter struct {
	client EC2API
	logger zerolog.Logger

	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewVolumeAdapter creates the EBS volume adapter.
func NewVolumeAdapter(client EC2API, logger zerolog.Logger) *VolumeAdapter {
	return &VolumeAdapter{
		client:       client,
		logger:       logger.With().Str("component", "adapter-volume").Logger(),
		pollInterval: 10 * time.Second,
		pollTimeout:  10 * time.Minute,
	}
}

// Kind implements Adapter.
func (a *VolumeAdapter) Kind() optimizer.ResourceKind {
	return optimizer.KindVolume
}

// Describe implements Adapter.
func (a *VolumeAdapter) Describe(ctx context.Context, resourceID string) (optimizer.CurrentState, error) {
	state := optimizer.CurrentState{ResourceID: resourceID, ObservedAt: time.Now().UTC()}

	out, err := a.client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		VolumeIds: []string{resourceID},
	})
	if err != nil {
		if isAPIErrorCode(err, "InvalidVolume.NotFound") {
			return state, nil
		}
		return state, classifyAWSError("describe volume", err).WithResource(resourceID)
	}
	if len(out.Volumes) == 0 {
		return state, nil
	}

	vol := out.Volumes[0]
	state.Exists = true
	state.Config = map[string]string{
		"volume_type":        string(vol.VolumeType),
		"size_gb":            strconv.Itoa(int(aws.ToInt32(vol.Size))),
		"state":              string(vol.State),
		"modification_state": "none",
	}
	for _, tag := range vol.Tags {
		state.Config["tag:"+aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}

	mods, err := a.client.DescribeVolumesModifications(ctx, &ec2.DescribeVolumesModificationsInput{
		VolumeIds: []string{resourceID},
	})
	if err != nil {
		// Volumes that were never modified have no modification record.
		if isAPIErrorCode(err, "InvalidVolumeModification.NotFound") {
			return state, nil
		}
		return state, classifyAWSError("describe volume modifications", err).WithResource(resourceID)
	}
	if len(mods.VolumesModifications) > 0 {
		modState := string(mods.VolumesModifications[0].ModificationState)
		// Completed and failed modifications no longer block a new one.
		if modState == string(ec2types.VolumeModificationStateCompleted) ||
			modState == string(ec2types.VolumeModificationStateFailed) {
			modState = "none"
		}
		state.Config["modification_state"] = modState
	}
	return state, nil
}

// Mutate implements Adapter.
func (a *VolumeAdapter) Mutate(ctx context.Context, resourceID string, step optimizer.Step) (optimizer.MutationReceipt, error) {
	if step.Name != OpModifyVolume {
		return optimizer.MutationReceipt{}, optimizer.NewValidationError("unknown volume operation "+step.Name, nil).
			WithResource(resourceID).WithStep(step.Name)
	}

	state, err := a.Describe(ctx, resourceID)
	if err != nil {
		return optimizer.MutationReceipt{}, err
	}
	if !state.Exists {
		return optimizer.MutationReceipt{}, optimizer.NewPermanentError("volume not found", nil).
			WithCode(optimizer.ErrCodeNotFound).WithResource(resourceID).WithStep(OpModifyVolume)
	}
	if configMatches(state.Config, step.Payload, volumeKeys) {
		return optimizer.MutationReceipt{Applied: false, NewConfig: state.Config}, nil
	}
	if modState := state.Config["modification_state"]; modState != "none" {
		return optimizer.MutationReceipt{}, optimizer.NewPreconditionError("volume modification already in progress ("+modState+")", nil).
			WithCode(optimizer.ErrCodeBadState).WithResource(resourceID).WithStep(OpModifyVolume)
	}

	input := &ec2.ModifyVolumeInput{VolumeId: aws.String(resourceID)}
	newConfig := map[string]string{}
	for k, v := range state.Config {
		newConfig[k] = v
	}
	priorType := state.Config["volume_type"]
	typeChanged := false

	if v, ok := step.Payload["volume_type"]; ok && v != priorType {
		input.VolumeType = ec2types.VolumeType(v)
		newConfig["volume_type"] = v
		typeChanged = true
	}
	if v, ok := step.Payload["size_gb"]; ok && v != state.Config["size_gb"] {
		target, err := strconv.Atoi(v)
		if err != nil {
			return optimizer.MutationReceipt{}, optimizer.NewValidationError("invalid size_gb "+v, err).
				WithResource(resourceID).WithStep(OpModifyVolume)
		}
		current, _ := strconv.Atoi(state.Config["size_gb"])
		// EBS volumes only grow.
		if target < current {
			return optimizer.MutationReceipt{}, optimizer.NewPreconditionError("volume size cannot shrink", nil).
				WithCode(optimizer.ErrCodeBadState).WithResource(resourceID).WithStep(OpModifyVolume)
		}
		input.Size = aws.Int32(int32(target))
		newConfig["size_gb"] = v
	}

	a.logger.Info().
		Str("resource_id", resourceID).
		Interface("payload", step.Payload).
		Msg("Modifying volume")
	if _, err := a.client.ModifyVolume(ctx, input); err != nil {
		return optimizer.MutationReceipt{}, classifyAWSError("modify volume", err).
			WithResource(resourceID).WithStep(OpModifyVolume)
	}

	// Size growth is irreversible, so compensation only restores the type.
	var compensation *optimizer.Step
	if typeChanged {
		compensation = compensationStep(resourceID, OpModifyVolume, map[string]string{"volume_type": priorType})
	}

	newConfig["modification_state"] = "modifying"
	return optimizer.MutationReceipt{Applied: true, NewConfig: newConfig, Compensation: compensation}, nil
}

// Verify implements Adapter. Volume modifications take effect while the
// modification is still optimizing, so Verify polls the volume itself.
func (a *VolumeAdapter) Verify(ctx context.Context, resourceID string, expected map[string]string) (bool, error) {
	deadline := time.Now().Add(a.pollTimeout)
	for {
		state, err := a.Describe(ctx, resourceID)
		if err != nil {
			return false, err
		}
		if !state.Exists {
			return false, nil
		}
		if configMatches(state.Config, expected, volumeKeys) {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, optimizer.NewTransientError("cancelled waiting for volume modification", ctx.Err()).
				WithResource(resourceID)
		case <-time.After(a.pollInterval):
		}
	}
}
