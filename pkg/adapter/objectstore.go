package adapter

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

// lifecycleRuleID marks the lifecycle rule owned by this agent. Rules with
// other IDs are never touched.
const lifecycleRuleID = "SpendOptimo-Lifecycle"

var objectStoreKeys = []string{"lifecycle_storage_class", "lifecycle_transition_days"}

// ObjectStoreAdapter manages S3 bucket lifecycle configurations.
type ObjectStoreAdapter struct {
	client S3API
	logger zerolog.Logger
}

// NewObjectStoreAdapter creates the S3 bucket adapter.
func NewObjectStoreAdapter(client S3API, logger zerolog.Logger) *ObjectStoreAdapter {
	return &ObjectStoreAdapter{
		client: client,
		logger: logger.With().Str("component", "adapter-objectstore").Logger(),
	}
}

// Kind implements Adapter.
func (a *ObjectStoreAdapter) Kind() optimizer.ResourceKind {
	return optimizer.KindObjectStore
}

// Describe implements Adapter.
func (a *ObjectStoreAdapter) Describe(ctx context.Context, resourceID string) (optimizer.CurrentState, error) {
	state := optimizer.CurrentState{ResourceID: resourceID, ObservedAt: time.Now().UTC()}

	if _, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(resourceID)}); err != nil {
		if isAPIErrorCode(err, "NotFound", "NoSuchBucket") {
			return state, nil
		}
		return state, classifyAWSError("head bucket", err).WithResource(resourceID)
	}

	state.Exists = true
	state.Config = map[string]string{}

	out, err := a.client.GetBucketLifecycleConfiguration(ctx, &s3.GetBucketLifecycleConfigurationInput{
		Bucket: aws.String(resourceID),
	})
	if err != nil {
		// A bucket with no lifecycle configuration is a normal state.
		if isAPIErrorCode(err, "NoSuchLifecycleConfiguration") {
			return state, nil
		}
		return state, classifyAWSError("get bucket lifecycle", err).WithResource(resourceID)
	}

	for _, rule := range out.Rules {
		if aws.ToString(rule.ID) != lifecycleRuleID || rule.Status != s3types.ExpirationStatusEnabled {
			continue
		}
		if len(rule.Transitions) > 0 {
			t := rule.Transitions[0]
			state.Config["lifecycle_storage_class"] = string(t.StorageClass)
			state.Config["lifecycle_transition_days"] = strconv.Itoa(int(aws.ToInt32(t.Days)))
		}
	}
	return state, nil
}

// Mutate implements Adapter.
func (a *ObjectStoreAdapter) Mutate(ctx context.Context, resourceID string, step optimizer.Step) (optimizer.MutationReceipt, error) {
	switch step.Name {
	case OpPutLifecycle:
		return a.putLifecycle(ctx, resourceID, step.Payload)
	case OpDeleteLifecycle:
		return a.deleteLifecycle(ctx, resourceID)
	default:
		return optimizer.MutationReceipt{}, optimizer.NewValidationError("unknown object store operation "+step.Name, nil).
			WithResource(resourceID).WithStep(step.Name)
	}
}

func (a *ObjectStoreAdapter) putLifecycle(ctx context.Context, resourceID string, payload map[string]string) (optimizer.MutationReceipt, error) {
	storageClass := payload["lifecycle_storage_class"]
	if storageClass == "" {
		return optimizer.MutationReceipt{}, optimizer.NewValidationError("put-lifecycle-policy requires lifecycle_storage_class", nil).
			WithResource(resourceID).WithStep(OpPutLifecycle)
	}
	days := 0
	if raw := payload["lifecycle_transition_days"]; raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return optimizer.MutationReceipt{}, optimizer.NewValidationError("invalid lifecycle_transition_days "+raw, err).
				WithResource(resourceID).WithStep(OpPutLifecycle)
		}
		days = parsed
	}

	state, err := a.Describe(ctx, resourceID)
	if err != nil {
		return optimizer.MutationReceipt{}, err
	}
	if !state.Exists {
		return optimizer.MutationReceipt{}, optimizer.NewPermanentError("bucket not found", nil).
			WithCode(optimizer.ErrCodeNotFound).WithResource(resourceID).WithStep(OpPutLifecycle)
	}
	if state.Config["lifecycle_storage_class"] == storageClass &&
		state.Config["lifecycle_transition_days"] == strconv.Itoa(days) {
		return optimizer.MutationReceipt{Applied: false, NewConfig: state.Config}, nil
	}

	a.logger.Info().
		Str("resource_id", resourceID).
		Str("storage_class", storageClass).
		Int("transition_days", days).
		Msg("Applying lifecycle policy")
	_, err = a.client.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
		Bucket: aws.String(resourceID),
		LifecycleConfiguration: &s3types.BucketLifecycleConfiguration{
			Rules: []s3types.LifecycleRule{{
				ID:     aws.String(lifecycleRuleID),
				Status: s3types.ExpirationStatusEnabled,
				Filter: &s3types.LifecycleRuleFilter{Prefix: aws.String("")},
				Transitions: []s3types.Transition{{
					Days:         aws.Int32(int32(days)),
					StorageClass: s3types.TransitionStorageClass(storageClass),
				}},
			}},
		},
	})
	if err != nil {
		return optimizer.MutationReceipt{}, classifyAWSError("put bucket lifecycle", err).
			WithResource(resourceID).WithStep(OpPutLifecycle)
	}

	var compensation *optimizer.Step
	if prior := state.Config["lifecycle_storage_class"]; prior != "" {
		compensation = compensationStep(resourceID, OpPutLifecycle, map[string]string{
			"lifecycle_storage_class":   prior,
			"lifecycle_transition_days": state.Config["lifecycle_transition_days"],
		})
	} else {
		compensation = compensationStep(resourceID, OpDeleteLifecycle, nil)
	}

	return optimizer.MutationReceipt{
		Applied: true,
		NewConfig: map[string]string{
			"lifecycle_storage_class":   storageClass,
			"lifecycle_transition_days": strconv.Itoa(days),
		},
		Compensation: compensation,
	}, nil
}

func (a *ObjectStoreAdapter) deleteLifecycle(ctx context.Context, resourceID string) (optimizer.MutationReceipt, error) {
	state, err := a.Describe(ctx, resourceID)
	if err != nil {
		return optimizer.MutationReceipt{}, err
	}
	if !state.Exists {
		return optimizer.MutationReceipt{}, optimizer.NewPermanentError("bucket not found", nil).
			WithCode(optimizer.ErrCodeNotFound).WithResource(resourceID).WithStep(OpDeleteLifecycle)
	}
	if state.Config["lifecycle_storage_class"] == "" {
		return optimizer.MutationReceipt{Applied: false, NewConfig: state.Config}, nil
	}

	a.logger.Info().Str("resource_id", resourceID).Msg("Removing lifecycle policy")
	if _, err := a.client.DeleteBucketLifecycle(ctx, &s3.DeleteBucketLifecycleInput{Bucket: aws.String(resourceID)}); err != nil {
		return optimizer.MutationReceipt{}, classifyAWSError("delete bucket lifecycle", err).
			WithResource(resourceID).WithStep(OpDeleteLifecycle)
	}
	return optimizer.MutationReceipt{Applied: true, NewConfig: map[string]string{}}, nil
}

// Verify implements Adapter.
func (a *ObjectStoreAdapter) Verify(ctx context.Context, resourceID string, expected map[string]string) (bool, error) {
	state, err := a.Describe(ctx, resourceID)
	if err != nil {
		return false, err
	}
	if !state.Exists {
		return false, nil
	}
	return configMatches(state.Config, expected, objectStoreKeys), nil
}
