package adapter

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/rs/zerolog"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

var databaseKeys = []string{
	"instance_class",
	"storage_type",
	"allocated_storage_gb",
	"multi_az",
	"backup_retention_days",
}

// DatabaseAdapter rightsizes RDS instances. Modifications apply immediately;
// Verify polls until the instance settles back into the available state.
type DatabaseAdapter struct {
	client RDSAPI
	logger zerolog.Logger

	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewDatabaseAdapter creates the RDS instance adapter.
func NewDatabaseAdapter(client RDSAPI, logger zerolog.Logger) *DatabaseAdapter {
	return &DatabaseAdapter{
		client:       client,
		logger:       logger.With().Str("component", "adapter-database").Logger(),
		pollInterval: 15 * time.Second,
		pollTimeout:  20 * time.Minute,
	}
}

// Kind implements Adapter.
func (a *DatabaseAdapter) Kind() optimizer.ResourceKind {
	return optimizer.KindDatabase
}

// Describe implements Adapter.
func (a *DatabaseAdapter) Describe(ctx context.Context, resourceID string) (optimizer.CurrentState, error) {
	state := optimizer.CurrentState{ResourceID: resourceID, ObservedAt: time.Now().UTC()}

	out, err := a.client.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(resourceID),
	})
	if err != nil {
		if isAPIErrorCode(err, "DBInstanceNotFound", "DBInstanceNotFoundFault") {
			return state, nil
		}
		return state, classifyAWSError("describe db instance", err).WithResource(resourceID)
	}
	if len(out.DBInstances) == 0 {
		return state, nil
	}

	db := out.DBInstances[0]
	state.Exists = true
	state.Config = map[string]string{
		"instance_class":        aws.ToString(db.DBInstanceClass),
		"storage_type":          aws.ToString(db.StorageType),
		"allocated_storage_gb":  strconv.Itoa(int(aws.ToInt32(db.AllocatedStorage))),
		"multi_az":              strconv.FormatBool(aws.ToBool(db.MultiAZ)),
		"backup_retention_days": strconv.Itoa(int(aws.ToInt32(db.BackupRetentionPeriod))),
		"status":                aws.ToString(db.DBInstanceStatus),
	}
	return state, nil
}

// Mutate implements Adapter.
func (a *DatabaseAdapter) Mutate(ctx context.Context, resourceID string, step optimizer.Step) (optimizer.MutationReceipt, error) {
	if step.Name != OpModifyInstance {
		return optimizer.MutationReceipt{}, optimizer.NewValidationError("unknown database operation "+step.Name, nil).
			WithResource(resourceID).WithStep(step.Name)
	}

	state, err := a.Describe(ctx, resourceID)
	if err != nil {
		return optimizer.MutationReceipt{}, err
	}
	if !state.Exists {
		return optimizer.MutationReceipt{}, optimizer.NewPermanentError("db instance not found", nil).
			WithCode(optimizer.ErrCodeNotFound).WithResource(resourceID).WithStep(OpModifyInstance)
	}
	if configMatches(state.Config, step.Payload, databaseKeys) {
		return optimizer.MutationReceipt{Applied: false, NewConfig: state.Config}, nil
	}
	if status := state.Config["status"]; status != "available" {
		return optimizer.MutationReceipt{}, optimizer.NewPreconditionError("db instance in status "+status+" cannot be modified", nil).
			WithCode(optimizer.ErrCodeBadState).WithResource(resourceID).WithStep(OpModifyInstance)
	}

	input := &rds.ModifyDBInstanceInput{
		DBInstanceIdentifier: aws.String(resourceID),
		ApplyImmediately:     aws.Bool(true),
	}
	priorPayload := map[string]string{}
	newConfig := map[string]string{}
	for k, v := range state.Config {
		newConfig[k] = v
	}

	if v, ok := step.Payload["instance_class"]; ok && v != state.Config["instance_class"] {
		input.DBInstanceClass = aws.String(v)
		priorPayload["instance_class"] = state.Config["instance_class"]
		newConfig["instance_class"] = v
	}
	if v, ok := step.Payload["storage_type"]; ok && v != state.Config["storage_type"] {
		input.StorageType = aws.String(v)
		priorPayload["storage_type"] = state.Config["storage_type"]
		newConfig["storage_type"] = v
	}
	if v, ok := step.Payload["allocated_storage_gb"]; ok && v != state.Config["allocated_storage_gb"] {
		size, err := strconv.Atoi(v)
		if err != nil {
			return optimizer.MutationReceipt{}, optimizer.NewValidationError("invalid allocated_storage_gb "+v, err).
				WithResource(resourceID).WithStep(OpModifyInstance)
		}
		input.AllocatedStorage = aws.Int32(int32(size))
		priorPayload["allocated_storage_gb"] = state.Config["allocated_storage_gb"]
		newConfig["allocated_storage_gb"] = v
	}
	if v, ok := step.Payload["multi_az"]; ok && v != state.Config["multi_az"] {
		multiAZ, err := strconv.ParseBool(v)
		if err != nil {
			return optimizer.MutationReceipt{}, optimizer.NewValidationError("invalid multi_az "+v, err).
				WithResource(resourceID).WithStep(OpModifyInstance)
		}
		input.MultiAZ = aws.Bool(multiAZ)
		priorPayload["multi_az"] = state.Config["multi_az"]
		newConfig["multi_az"] = v
	}
	if v, ok := step.Payload["backup_retention_days"]; ok && v != state.Config["backup_retention_days"] {
		days, err := strconv.Atoi(v)
		if err != nil {
			return optimizer.MutationReceipt{}, optimizer.NewValidationError("invalid backup_retention_days "+v, err).
				WithResource(resourceID).WithStep(OpModifyInstance)
		}
		input.BackupRetentionPeriod = aws.Int32(int32(days))
		priorPayload["backup_retention_days"] = state.Config["backup_retention_days"]
		newConfig["backup_retention_days"] = v
	}

	a.logger.Info().
		Str("resource_id", resourceID).
		Interface("payload", step.Payload).
		Msg("Modifying db instance")
	if _, err := a.client.ModifyDBInstance(ctx, input); err != nil {
		return optimizer.MutationReceipt{}, classifyAWSError("modify db instance", err).
			WithResource(resourceID).WithStep(OpModifyInstance)
	}

	newConfig["status"] = "modifying"
	return optimizer.MutationReceipt{
		Applied:      true,
		NewConfig:    newConfig,
		Compensation: compensationStep(resourceID, OpModifyInstance, priorPayload),
	}, nil
}

// Verify implements Adapter. The modification applies asynchronously, so
// Verify polls until the instance is available again and then compares.
func (a *DatabaseAdapter) Verify(ctx context.Context, resourceID string, expected map[string]string) (bool, error) {
	deadline := time.Now().Add(a.pollTimeout)
	for {
		state, err := a.Describe(ctx, resourceID)
		if err != nil {
			return false, err
		}
		if !state.Exists {
			return false, nil
		}
		if state.Config["status"] == "available" {
			return configMatches(state.Config, expected, databaseKeys), nil
		}
		if time.Now().After(deadline) {
			return false, optimizer.NewTransientError("timed out waiting for db instance to become available", nil).
				WithCode(optimizer.ErrCodeTimeout).WithResource(resourceID)
		}
		select {
		case <-ctx.Done():
			return false, optimizer.NewTransientError("cancelled waiting for db instance", ctx.Err()).
				WithResource(resourceID)
		case <-time.After(a.pollInterval):
		}
	}
}
