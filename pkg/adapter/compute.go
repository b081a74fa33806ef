package adapter

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

var computeKeys = []string{"instance_type"}

// ComputeAdapter rightsizes EC2 instances. A type change is a three-step
// sequence (stop, change-type, start); each step is individually idempotent
// so a retried or replayed step observes the instance and no-ops when its
// effect is already in place.
type ComputeAdapter struct {
	client EC2API
	logger zerolog.Logger

	// State transition polling. Tests shrink these.
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewComputeAdapter creates the EC2 instance adapter.
func NewComputeAdapter(client EC2API, logger zerolog.Logger) *ComputeAdapter {
	return &ComputeAdapter{
		client:       client,
		logger:       logger.With().Str("component", "adapter-compute").Logger(),
		pollInterval: 10 * time.Second,
		pollTimeout:  5 * time.Minute,
	}
}

// Kind implements Adapter.
func (a *ComputeAdapter) Kind() optimizer.ResourceKind {
	return optimizer.KindCompute
}

// Describe implements Adapter.
func (a *ComputeAdapter) Describe(ctx context.Context, resourceID string) (optimizer.CurrentState, error) {
	state := optimizer.CurrentState{ResourceID: resourceID, ObservedAt: time.Now().UTC()}

	out, err := a.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{resourceID},
	})
	if err != nil {
		if isAPIErrorCode(err, "InvalidInstanceID.NotFound") {
			return state, nil
		}
		return state, classifyAWSError("describe instance", err).WithResource(resourceID)
	}
	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return state, nil
	}

	inst := out.Reservations[0].Instances[0]
	cfg := map[string]string{
		"instance_type": string(inst.InstanceType),
	}
	if inst.State != nil {
		cfg["state"] = string(inst.State.Name)
	}
	for _, tag := range inst.Tags {
		cfg["tag:"+aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}

	state.Exists = true
	state.Config = cfg
	return state, nil
}

// Mutate implements Adapter.
func (a *ComputeAdapter) Mutate(ctx context.Context, resourceID string, step optimizer.Step) (optimizer.MutationReceipt, error) {
	switch step.Name {
	case OpStop:
		return a.stop(ctx, resourceID)
	case OpStart:
		return a.start(ctx, resourceID)
	case OpChangeType:
		return a.changeType(ctx, resourceID, step.Payload["instance_type"])
	default:
		return optimizer.MutationReceipt{}, optimizer.NewValidationError("unknown compute operation "+step.Name, nil).
			WithResource(resourceID).WithStep(step.Name)
	}
}

func (a *ComputeAdapter) stop(ctx context.Context, resourceID string) (optimizer.MutationReceipt, error) {
	state, err := a.Describe(ctx, resourceID)
	if err != nil {
		return optimizer.MutationReceipt{}, err
	}
	if !state.Exists {
		return optimizer.MutationReceipt{}, optimizer.NewPermanentError("instance not found", nil).
			WithCode(optimizer.ErrCodeNotFound).WithResource(resourceID).WithStep(OpStop)
	}
	if state.Config["state"] == "stopped" {
		return optimizer.MutationReceipt{Applied: false, NewConfig: state.Config}, nil
	}
	if s := state.Config["state"]; s != "running" && s != "stopping" {
		return optimizer.MutationReceipt{}, optimizer.NewPreconditionError("instance in state "+s+" cannot be stopped", nil).
			WithCode(optimizer.ErrCodeBadState).WithResource(resourceID).WithStep(OpStop)
	}

	a.logger.Info().Str("resource_id", resourceID).Msg("Stopping instance")
	if _, err := a.client.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{resourceID}}); err != nil {
		return optimizer.MutationReceipt{}, classifyAWSError("stop instance", err).
			WithResource(resourceID).WithStep(OpStop)
	}

	cfg, err := a.waitForInstanceState(ctx, resourceID, "stopped")
	if err != nil {
		return optimizer.MutationReceipt{}, err
	}
	return optimizer.MutationReceipt{
		Applied:      true,
		NewConfig:    cfg,
		Compensation: compensationStep(resourceID, OpStart, nil),
	}, nil
}

func (a *ComputeAdapter) start(ctx context.Context, resourceID string) (optimizer.MutationReceipt, error) {
	state, err := a.Describe(ctx, resourceID)
	if err != nil {
		return optimizer.MutationReceipt{}, err
	}
	if !state.Exists {
		return optimizer.MutationReceipt{}, optimizer.NewPermanentError("instance not found", nil).
			WithCode(optimizer.ErrCodeNotFound).WithResource(resourceID).WithStep(OpStart)
	}
	if state.Config["state"] == "running" {
		return optimizer.MutationReceipt{Applied: false, NewConfig: state.Config}, nil
	}

	a.logger.Info().Str("resource_id", resourceID).Msg("Starting instance")
	if _, err := a.client.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{resourceID}}); err != nil {
		return optimizer.MutationReceipt{}, classifyAWSError("start instance", err).
			WithResource(resourceID).WithStep(OpStart)
	}

	cfg, err := a.waitForInstanceState(ctx, resourceID, "running")
	if err != nil {
		return optimizer.MutationReceipt{}, err
	}
	return optimizer.MutationReceipt{
		Applied:      true,
		NewConfig:    cfg,
		Compensation: compensationStep(resourceID, OpStop, nil),
	}, nil
}

func (a *ComputeAdapter) changeType(ctx context.Context, resourceID, targetType string) (optimizer.MutationReceipt, error) {
	if targetType == "" {
		return optimizer.MutationReceipt{}, optimizer.NewValidationError("change-type requires instance_type", nil).
			WithResource(resourceID).WithStep(OpChangeType)
	}

	state, err := a.Describe(ctx, resourceID)
	if err != nil {
		return optimizer.MutationReceipt{}, err
	}
	if !state.Exists {
		return optimizer.MutationReceipt{}, optimizer.NewPermanentError("instance not found", nil).
			WithCode(optimizer.ErrCodeNotFound).WithResource(resourceID).WithStep(OpChangeType)
	}
	previousType := state.Config["instance_type"]
	if previousType == targetType {
		return optimizer.MutationReceipt{Applied: false, NewConfig: state.Config}, nil
	}
	if state.Config["state"] != "stopped" {
		return optimizer.MutationReceipt{}, optimizer.NewPreconditionError("instance must be stopped to change type", nil).
			WithCode(optimizer.ErrCodeBadState).WithResource(resourceID).WithStep(OpChangeType)
	}

	a.logger.Info().
		Str("resource_id", resourceID).
		Str("from", previousType).
		Str("to", targetType).
		Msg("Changing instance type")
	_, err = a.client.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
		InstanceId:   aws.String(resourceID),
		InstanceType: &ec2types.AttributeValue{Value: aws.String(targetType)},
	})
	if err != nil {
		return optimizer.MutationReceipt{}, classifyAWSError("modify instance type", err).
			WithResource(resourceID).WithStep(OpChangeType)
	}

	cfg := map[string]string{}
	for k, v := range state.Config {
		cfg[k] = v
	}
	cfg["instance_type"] = targetType
	return optimizer.MutationReceipt{
		Applied:      true,
		NewConfig:    cfg,
		Compensation: compensationStep(resourceID, OpChangeType, map[string]string{"instance_type": previousType}),
	}, nil
}

// waitForInstanceState polls until the instance reaches target.
func (a *ComputeAdapter) waitForInstanceState(ctx context.Context, resourceID, target string) (map[string]string, error) {
	deadline := time.Now().Add(a.pollTimeout)
	for {
		state, err := a.Describe(ctx, resourceID)
		if err != nil {
			return nil, err
		}
		if state.Exists && state.Config["state"] == target {
			return state.Config, nil
		}
		if time.Now().After(deadline) {
			return nil, optimizer.NewTransientError("timed out waiting for instance state "+target, nil).
				WithCode(optimizer.ErrCodeTimeout).WithResource(resourceID)
		}
		select {
		case <-ctx.Done():
			return nil, optimizer.NewTransientError("cancelled waiting for instance state "+target, ctx.Err()).
				WithResource(resourceID)
		case <-time.After(a.pollInterval):
		}
	}
}

// Verify implements Adapter. The instance must match the expected type and
// be back in the running state.
func (a *ComputeAdapter) Verify(ctx context.Context, resourceID string, expected map[string]string) (bool, error) {
	state, err := a.Describe(ctx, resourceID)
	if err != nil {
		return false, err
	}
	if !state.Exists {
		return false, nil
	}
	if !configMatches(state.Config, expected, computeKeys) {
		return false, nil
	}
	return state.Config["state"] == "running", nil
}
