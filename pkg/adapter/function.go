package adapter

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/rs/zerolog"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

var functionKeys = []string{"memory_mb", "timeout_seconds", "reserved_concurrency"}

// FunctionAdapter rightsizes Lambda functions: memory, timeout, and reserved
// concurrency.
type FunctionAdapter struct {
	client LambdaAPI
	logger zerolog.Logger
}

// NewFunctionAdapter creates the Lambda function adapter.
func NewFunctionAdapter(client LambdaAPI, logger zerolog.Logger) *FunctionAdapter {
	return &FunctionAdapter{
		client: client,
		logger: logger.With().Str("component", "adapter-function").Logger(),
	}
}

// Kind implements Adapter.
func (a *FunctionAdapter) Kind() optimizer.ResourceKind {
	return optimizer.KindFunction
}

// Describe implements Adapter.
func (a *FunctionAdapter) Describe(ctx context.Context, resourceID string) (optimizer.CurrentState, error) {
	state := optimizer.CurrentState{ResourceID: resourceID, ObservedAt: time.Now().UTC()}

	out, err := a.client.GetFunctionConfiguration(ctx, &lambda.GetFunctionConfigurationInput{
		FunctionName: aws.String(resourceID),
	})
	if err != nil {
		if isAPIErrorCode(err, "ResourceNotFoundException") {
			return state, nil
		}
		return state, classifyAWSError("get function configuration", err).WithResource(resourceID)
	}

	state.Exists = true
	state.Config = map[string]string{
		"memory_mb":       strconv.Itoa(int(aws.ToInt32(out.MemorySize))),
		"timeout_seconds": strconv.Itoa(int(aws.ToInt32(out.Timeout))),
	}

	conc, err := a.client.GetFunctionConcurrency(ctx, &lambda.GetFunctionConcurrencyInput{
		FunctionName: aws.String(resourceID),
	})
	if err != nil {
		return state, classifyAWSError("get function concurrency", err).WithResource(resourceID)
	}
	if conc.ReservedConcurrentExecutions != nil {
		state.Config["reserved_concurrency"] = strconv.Itoa(int(aws.ToInt32(conc.ReservedConcurrentExecutions)))
	}
	return state, nil
}

// Mutate implements Adapter.
func (a *FunctionAdapter) Mutate(ctx context.Context, resourceID string, step optimizer.Step) (optimizer.MutationReceipt, error) {
	switch step.Name {
	case OpUpdateConfig:
		return a.updateConfiguration(ctx, resourceID, step.Payload)
	case OpSetConcurrency:
		return a.setConcurrency(ctx, resourceID, step.Payload)
	case OpClearConcurrency:
		return a.clearConcurrency(ctx, resourceID)
	default:
		return optimizer.MutationReceipt{}, optimizer.NewValidationError("unknown function operation "+step.Name, nil).
			WithResource(resourceID).WithStep(step.Name)
	}
}

func (a *FunctionAdapter) updateConfiguration(ctx context.Context, resourceID string, payload map[string]string) (optimizer.MutationReceipt, error) {
	memory, hasMemory, err := payloadInt(payload, "memory_mb")
	if err != nil {
		return optimizer.MutationReceipt{}, optimizer.NewValidationError("invalid memory_mb", err).
			WithResource(resourceID).WithStep(OpUpdateConfig)
	}
	timeout, hasTimeout, err := payloadInt(payload, "timeout_seconds")
	if err != nil {
		return optimizer.MutationReceipt{}, optimizer.NewValidationError("invalid timeout_seconds", err).
			WithResource(resourceID).WithStep(OpUpdateConfig)
	}
	if !hasMemory && !hasTimeout {
		return optimizer.MutationReceipt{}, optimizer.NewValidationError("update-configuration requires memory_mb or timeout_seconds", nil).
			WithResource(resourceID).WithStep(OpUpdateConfig)
	}

	state, err := a.Describe(ctx, resourceID)
	if err != nil {
		return optimizer.MutationReceipt{}, err
	}
	if !state.Exists {
		return optimizer.MutationReceipt{}, optimizer.NewPermanentError("function not found", nil).
			WithCode(optimizer.ErrCodeNotFound).WithResource(resourceID).WithStep(OpUpdateConfig)
	}
	if configMatches(state.Config, payload, []string{"memory_mb", "timeout_seconds"}) {
		return optimizer.MutationReceipt{Applied: false, NewConfig: state.Config}, nil
	}

	input := &lambda.UpdateFunctionConfigurationInput{FunctionName: aws.String(resourceID)}
	priorPayload := map[string]string{}
	if hasMemory {
		input.MemorySize = aws.Int32(int32(memory))
		priorPayload["memory_mb"] = state.Config["memory_mb"]
	}
	if hasTimeout {
		input.Timeout = aws.Int32(int32(timeout))
		priorPayload["timeout_seconds"] = state.Config["timeout_seconds"]
	}

	a.logger.Info().
		Str("resource_id", resourceID).
		Interface("payload", payload).
		Msg("Updating function configuration")
	if _, err := a.client.UpdateFunctionConfiguration(ctx, input); err != nil {
		return optimizer.MutationReceipt{}, classifyAWSError("update function configuration", err).
			WithResource(resourceID).WithStep(OpUpdateConfig)
	}

	cfg := map[string]string{}
	for k, v := range state.Config {
		cfg[k] = v
	}
	if hasMemory {
		cfg["memory_mb"] = strconv.Itoa(memory)
	}
	if hasTimeout {
		cfg["timeout_seconds"] = strconv.Itoa(timeout)
	}
	return optimizer.MutationReceipt{
		Applied:      true,
		NewConfig:    cfg,
		Compensation: compensationStep(resourceID, OpUpdateConfig, priorPayload),
	}, nil
}

func (a *FunctionAdapter) setConcurrency(ctx context.Context, resourceID string, payload map[string]string) (optimizer.MutationReceipt, error) {
	target, ok, err := payloadInt(payload, "reserved_concurrency")
	if err != nil || !ok {
		return optimizer.MutationReceipt{}, optimizer.NewValidationError("set-concurrency requires reserved_concurrency", err).
			WithResource(resourceID).WithStep(OpSetConcurrency)
	}

	state, err := a.Describe(ctx, resourceID)
	if err != nil {
		return optimizer.MutationReceipt{}, err
	}
	if !state.Exists {
		return optimizer.MutationReceipt{}, optimizer.NewPermanentError("function not found", nil).
			WithCode(optimizer.ErrCodeNotFound).WithResource(resourceID).WithStep(OpSetConcurrency)
	}
	prior, hadPrior := state.Config["reserved_concurrency"]
	if hadPrior && prior == strconv.Itoa(target) {
		return optimizer.MutationReceipt{Applied: false, NewConfig: state.Config}, nil
	}

	a.logger.Info().
		Str("resource_id", resourceID).
		Int("reserved_concurrency", target).
		Msg("Setting reserved concurrency")
	_, err = a.client.PutFunctionConcurrency(ctx, &lambda.PutFunctionConcurrencyInput{
		FunctionName:                 aws.String(resourceID),
		ReservedConcurrentExecutions: aws.Int32(int32(target)),
	})
	if err != nil {
		return optimizer.MutationReceipt{}, classifyAWSError("put function concurrency", err).
			WithResource(resourceID).WithStep(OpSetConcurrency)
	}

	var compensation *optimizer.Step
	if hadPrior {
		compensation = compensationStep(resourceID, OpSetConcurrency, map[string]string{"reserved_concurrency": prior})
	} else {
		compensation = compensationStep(resourceID, OpClearConcurrency, nil)
	}

	cfg := map[string]string{}
	for k, v := range state.Config {
		cfg[k] = v
	}
	cfg["reserved_concurrency"] = strconv.Itoa(target)
	return optimizer.MutationReceipt{Applied: true, NewConfig: cfg, Compensation: compensation}, nil
}

func (a *FunctionAdapter) clearConcurrency(ctx context.Context, resourceID string) (optimizer.MutationReceipt, error) {
	state, err := a.Describe(ctx, resourceID)
	if err != nil {
		return optimizer.MutationReceipt{}, err
	}
	if !state.Exists {
		return optimizer.MutationReceipt{}, optimizer.NewPermanentError("function not found", nil).
			WithCode(optimizer.ErrCodeNotFound).WithResource(resourceID).WithStep(OpClearConcurrency)
	}
	if _, reserved := state.Config["reserved_concurrency"]; !reserved {
		return optimizer.MutationReceipt{Applied: false, NewConfig: state.Config}, nil
	}

	a.logger.Info().Str("resource_id", resourceID).Msg("Clearing reserved concurrency")
	_, err = a.client.DeleteFunctionConcurrency(ctx, &lambda.DeleteFunctionConcurrencyInput{
		FunctionName: aws.String(resourceID),
	})
	if err != nil {
		return optimizer.MutationReceipt{}, classifyAWSError("delete function concurrency", err).
			WithResource(resourceID).WithStep(OpClearConcurrency)
	}

	cfg := map[string]string{}
	for k, v := range state.Config {
		if k != "reserved_concurrency" {
			cfg[k] = v
		}
	}
	return optimizer.MutationReceipt{Applied: true, NewConfig: cfg}, nil
}

// Verify implements Adapter.
func (a *FunctionAdapter) Verify(ctx context.Context, resourceID string, expected map[string]string) (bool, error) {
	state, err := a.Describe(ctx, resourceID)
	if err != nil {
		return false, err
	}
	if !state.Exists {
		return false, nil
	}
	return configMatches(state.Config, expected, functionKeys), nil
}

// payloadInt parses an optional integer payload value.
func payloadInt(payload map[string]string, key string) (int, bool, error) {
	raw, ok := payload[key]
	if !ok || raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
