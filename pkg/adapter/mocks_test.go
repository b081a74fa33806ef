package adapter

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type mockEC2 struct {
	describeInstances            func(*ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error)
	stopInstances                func(*ec2.StopInstancesInput) (*ec2.StopInstancesOutput, error)
	startInstances               func(*ec2.StartInstancesInput) (*ec2.StartInstancesOutput, error)
	modifyInstanceAttribute      func(*ec2.ModifyInstanceAttributeInput) (*ec2.ModifyInstanceAttributeOutput, error)
	describeVolumes              func(*ec2.DescribeVolumesInput) (*ec2.DescribeVolumesOutput, error)
	modifyVolume                 func(*ec2.ModifyVolumeInput) (*ec2.ModifyVolumeOutput, error)
	describeVolumesModifications func(*ec2.DescribeVolumesModificationsInput) (*ec2.DescribeVolumesModificationsOutput, error)
}

func (m *mockEC2) DescribeInstances(_ context.Context, params *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if m.describeInstances != nil {
		return m.describeInstances(params)
	}
	return &ec2.DescribeInstancesOutput{}, nil
}

func (m *mockEC2) StopInstances(_ context.Context, params *ec2.StopInstancesInput, _ ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	if m.stopInstances != nil {
		return m.stopInstances(params)
	}
	return &ec2.StopInstancesOutput{}, nil
}

func (m *mockEC2) StartInstances(_ context.Context, params *ec2.StartInstancesInput, _ ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	if m.startInstances != nil {
		return m.startInstances(params)
	}
	return &ec2.StartInstancesOutput{}, nil
}

func (m *mockEC2) ModifyInstanceAttribute(_ context.Context, params *ec2.ModifyInstanceAttributeInput, _ ...func(*ec2.Options)) (*ec2.ModifyInstanceAttributeOutput, error) {
	if m.modifyInstanceAttribute != nil {
		return m.modifyInstanceAttribute(params)
	}
	return &ec2.ModifyInstanceAttributeOutput{}, nil
}

func (m *mockEC2) DescribeVolumes(_ context.Context, params *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	if m.describeVolumes != nil {
		return m.describeVolumes(params)
	}
	return &ec2.DescribeVolumesOutput{}, nil
}

func (m *mockEC2) ModifyVolume(_ context.Context, params *ec2.ModifyVolumeInput, _ ...func(*ec2.Options)) (*ec2.ModifyVolumeOutput, error) {
	if m.modifyVolume != nil {
		return m.modifyVolume(params)
	}
	return &ec2.ModifyVolumeOutput{}, nil
}

func (m *mockEC2) DescribeVolumesModifications(_ context.Context, params *ec2.DescribeVolumesModificationsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesModificationsOutput, error) {
	if m.describeVolumesModifications != nil {
		return m.describeVolumesModifications(params)
	}
	return &ec2.DescribeVolumesModificationsOutput{}, nil
}

type mockS3 struct {
	headBucket            func(*s3.HeadBucketInput) (*s3.HeadBucketOutput, error)
	getBucketLifecycle    func(*s3.GetBucketLifecycleConfigurationInput) (*s3.GetBucketLifecycleConfigurationOutput, error)
	putBucketLifecycle    func(*s3.PutBucketLifecycleConfigurationInput) (*s3.PutBucketLifecycleConfigurationOutput, error)
	deleteBucketLifecycle func(*s3.DeleteBucketLifecycleInput) (*s3.DeleteBucketLifecycleOutput, error)
}

func (m *mockS3) HeadBucket(_ context.Context, params *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if m.headBucket != nil {
		return m.headBucket(params)
	}
	return &s3.HeadBucketOutput{}, nil
}

func (m *mockS3) GetBucketLifecycleConfiguration(_ context.Context, params *s3.GetBucketLifecycleConfigurationInput, _ ...func(*s3.Options)) (*s3.GetBucketLifecycleConfigurationOutput, error) {
	if m.getBucketLifecycle != nil {
		return m.getBucketLifecycle(params)
	}
	return &s3.GetBucketLifecycleConfigurationOutput{}, nil
}

func (m *mockS3) PutBucketLifecycleConfiguration(_ context.Context, params *s3.PutBucketLifecycleConfigurationInput, _ ...func(*s3.Options)) (*s3.PutBucketLifecycleConfigurationOutput, error) {
	if m.putBucketLifecycle != nil {
		return m.putBucketLifecycle(params)
	}
	return &s3.PutBucketLifecycleConfigurationOutput{}, nil
}

func (m *mockS3) DeleteBucketLifecycle(_ context.Context, params *s3.DeleteBucketLifecycleInput, _ ...func(*s3.Options)) (*s3.DeleteBucketLifecycleOutput, error) {
	if m.deleteBucketLifecycle != nil {
		return m.deleteBucketLifecycle(params)
	}
	return &s3.DeleteBucketLifecycleOutput{}, nil
}

type mockLambda struct {
	getFunctionConfiguration    func(*lambda.GetFunctionConfigurationInput) (*lambda.GetFunctionConfigurationOutput, error)
	updateFunctionConfiguration func(*lambda.UpdateFunctionConfigurationInput) (*lambda.UpdateFunctionConfigurationOutput, error)
	getFunctionConcurrency      func(*lambda.GetFunctionConcurrencyInput) (*lambda.GetFunctionConcurrencyOutput, error)
	putFunctionConcurrency      func(*lambda.PutFunctionConcurrencyInput) (*lambda.PutFunctionConcurrencyOutput, error)
	deleteFunctionConcurrency   func(*lambda.DeleteFunctionConcurrencyInput) (*lambda.DeleteFunctionConcurrencyOutput, error)
}

func (m *mockLambda) GetFunctionConfiguration(_ context.Context, params *lambda.GetFunctionConfigurationInput, _ ...func(*lambda.Options)) (*lambda.GetFunctionConfigurationOutput, error) {
	if m.getFunctionConfiguration != nil {
		return m.getFunctionConfiguration(params)
	}
	return &lambda.GetFunctionConfigurationOutput{}, nil
}

func (m *mockLambda) UpdateFunctionConfiguration(_ context.Context, params *lambda.UpdateFunctionConfigurationInput, _ ...func(*lambda.Options)) (*lambda.UpdateFunctionConfigurationOutput, error) {
	if m.updateFunctionConfiguration != nil {
		return m.updateFunctionConfiguration(params)
	}
	return &lambda.UpdateFunctionConfigurationOutput{}, nil
}

func (m *mockLambda) GetFunctionConcurrency(_ context.Context, params *lambda.GetFunctionConcurrencyInput, _ ...func(*lambda.Options)) (*lambda.GetFunctionConcurrencyOutput, error) {
	if m.getFunctionConcurrency != nil {
		return m.getFunctionConcurrency(params)
	}
	return &lambda.GetFunctionConcurrencyOutput{}, nil
}

func (m *mockLambda) PutFunctionConcurrency(_ context.Context, params *lambda.PutFunctionConcurrencyInput, _ ...func(*lambda.Options)) (*lambda.PutFunctionConcurrencyOutput, error) {
	if m.putFunctionConcurrency != nil {
		return m.putFunctionConcurrency(params)
	}
	return &lambda.PutFunctionConcurrencyOutput{}, nil
}

func (m *mockLambda) DeleteFunctionConcurrency(_ context.Context, params *lambda.DeleteFunctionConcurrencyInput, _ ...func(*lambda.Options)) (*lambda.DeleteFunctionConcurrencyOutput, error) {
	if m.deleteFunctionConcurrency != nil {
		return m.deleteFunctionConcurrency(params)
	}
	return &lambda.DeleteFunctionConcurrencyOutput{}, nil
}

type mockRDS struct {
	describeDBInstances func(*rds.DescribeDBInstancesInput) (*rds.DescribeDBInstancesOutput, error)
	modifyDBInstance    func(*rds.ModifyDBInstanceInput) (*rds.ModifyDBInstanceOutput, error)
}

func (m *mockRDS) DescribeDBInstances(_ context.Context, params *rds.DescribeDBInstancesInput, _ ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	if m.describeDBInstances != nil {
		return m.describeDBInstances(params)
	}
	return &rds.DescribeDBInstancesOutput{}, nil
}

func (m *mockRDS) ModifyDBInstance(_ context.Context, params *rds.ModifyDBInstanceInput, _ ...func(*rds.Options)) (*rds.ModifyDBInstanceOutput, error) {
	if m.modifyDBInstance != nil {
		return m.modifyDBInstance(params)
	}
	return &rds.ModifyDBInstanceOutput{}, nil
}
