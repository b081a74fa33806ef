package adapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/rs/zerolog"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

type fakeDBInstance struct {
	mu            sync.Mutex
	instanceClass string
	storageType   string
	storageGB     int32
	status        string
}

func (f *fakeDBInstance) describe(_ *rds.DescribeDBInstancesInput) (*rds.DescribeDBInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &rds.DescribeDBInstancesOutput{
		DBInstances: []rdstypes.DBInstance{{
			DBInstanceClass:       aws.String(f.instanceClass),
			StorageType:           aws.String(f.storageType),
			AllocatedStorage:      aws.Int32(f.storageGB),
			MultiAZ:               aws.Bool(false),
			BackupRetentionPeriod: aws.Int32(7),
			DBInstanceStatus:      aws.String(f.status),
		}},
	}, nil
}

func newDatabaseAdapterForTest(client RDSAPI) *DatabaseAdapter {
	a := NewDatabaseAdapter(client, zerolog.Nop())
	a.pollInterval = time.Millisecond
	a.pollTimeout = time.Second
	return a
}

func TestDatabaseDescribe(t *testing.T) {
	db := &fakeDBInstance{instanceClass: "db.r5.xlarge", storageType: "io1", storageGB: 200, status: "available"}
	a := newDatabaseAdapterForTest(&mockRDS{describeDBInstances: db.describe})

	state, err := a.Describe(context.Background(), "orders-db")
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if state.Config["instance_class"] != "db.r5.xlarge" ||
		state.Config["storage_type"] != "io1" ||
		state.Config["allocated_storage_gb"] != "200" ||
		state.Config["multi_az"] != "false" ||
		state.Config["backup_retention_days"] != "7" {
		t.Errorf("Unexpected config: %v", state.Config)
	}
}

func TestDatabaseModifyInstance(t *testing.T) {
	db := &fakeDBInstance{instanceClass: "db.r5.xlarge", storageType: "io1", storageGB: 200, status: "available"}
	var modifyInput *rds.ModifyDBInstanceInput
	client := &mockRDS{
		describeDBInstances: db.describe,
		modifyDBInstance: func(params *rds.ModifyDBInstanceInput) (*rds.ModifyDBInstanceOutput, error) {
			modifyInput = params
			return &rds.ModifyDBInstanceOutput{}, nil
		},
	}
	a := newDatabaseAdapterForTest(client)

	step := optimizer.Step{
		Kind:    optimizer.StepMutate,
		Name:    OpModifyInstance,
		Payload: map[string]string{"instance_class": "db.r6g.large", "storage_type": "gp3"},
	}
	receipt, err := a.Mutate(context.Background(), "orders-db", step)
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if !receipt.Applied {
		t.Error("Modification should apply")
	}
	if modifyInput == nil || !aws.ToBool(modifyInput.ApplyImmediately) {
		t.Error("Modification should apply immediately")
	}
	if aws.ToString(modifyInput.DBInstanceClass) != "db.r6g.large" || aws.ToString(modifyInput.StorageType) != "gp3" {
		t.Errorf("Unexpected modify input: %+v", modifyInput)
	}
	if receipt.Compensation == nil ||
		receipt.Compensation.Payload["instance_class"] != "db.r5.xlarge" ||
		receipt.Compensation.Payload["storage_type"] != "io1" {
		t.Errorf("Compensation should restore prior values: %+v", receipt.Compensation)
	}
}

func TestDatabaseModifyRequiresAvailable(t *testing.T) {
	db := &fakeDBInstance{instanceClass: "db.r5.xlarge", storageType: "gp3", storageGB: 200, status: "backing-up"}
	a := newDatabaseAdapterForTest(&mockRDS{describeDBInstances: db.describe})

	step := optimizer.Step{
		Kind:    optimizer.StepMutate,
		Name:    OpModifyInstance,
		Payload: map[string]string{"instance_class": "db.r6g.large"},
	}
	_, err := a.Mutate(context.Background(), "orders-db", step)
	if !optimizer.IsPrecondition(err) {
		t.Errorf("Expected precondition error, got %v", err)
	}
}

func TestDatabaseModifyIdempotent(t *testing.T) {
	db := &fakeDBInstance{instanceClass: "db.r6g.large", storageType: "gp3", storageGB: 200, status: "available"}
	called := false
	client := &mockRDS{
		describeDBInstances: db.describe,
		modifyDBInstance: func(_ *rds.ModifyDBInstanceInput) (*rds.ModifyDBInstanceOutput, error) {
			called = true
			return &rds.ModifyDBInstanceOutput{}, nil
		},
	}
	a := newDatabaseAdapterForTest(client)

	step := optimizer.Step{
		Kind:    optimizer.StepMutate,
		Name:    OpModifyInstance,
		Payload: map[string]string{"instance_class": "db.r6g.large", "storage_type": "gp3"},
	}
	receipt, err := a.Mutate(context.Background(), "orders-db", step)
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if receipt.Applied || called {
		t.Error("A matching instance should no-op")
	}
}

func TestDatabaseVerifyPollsUntilAvailable(t *testing.T) {
	db := &fakeDBInstance{instanceClass: "db.r6g.large", storageType: "gp3", storageGB: 200, status: "modifying"}
	a := newDatabaseAdapterForTest(&mockRDS{describeDBInstances: db.describe})

	go func() {
		time.Sleep(20 * time.Millisecond)
		db.mu.Lock()
		db.status = "available"
		db.mu.Unlock()
	}()

	ok, err := a.Verify(context.Background(), "orders-db", map[string]string{"instance_class": "db.r6g.large"})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Error("Verify should succeed once the instance is available")
	}
}

func TestDatabaseVerifyTimeout(t *testing.T) {
	db := &fakeDBInstance{instanceClass: "db.r6g.large", storageType: "gp3", storageGB: 200, status: "modifying"}
	a := newDatabaseAdapterForTest(&mockRDS{describeDBInstances: db.describe})
	a.pollTimeout = 10 * time.Millisecond

	_, err := a.Verify(context.Background(), "orders-db", map[string]string{"instance_class": "db.r6g.large"})
	if !optimizer.IsTransient(err) {
		t.Errorf("A verify timeout should be transient, got %v", err)
	}
}
