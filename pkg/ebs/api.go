package ebs

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	eb "github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// EBSAPI is the subset of the Elastic Beanstalk client used by the Helper.
type EBSAPI interface {
	CreateApplicationVersion(ctx context.Context, params *eb.CreateApplicationVersionInput, optFns ...func(*eb.Options)) (*eb.CreateApplicationVersionOutput, error)
	DeleteApplicationVersion(ctx context.Context, params *eb.DeleteApplicationVersionInput, optFns ...func(*eb.Options)) (*eb.DeleteApplicationVersionOutput, error)
	DescribeApplicationVersions(ctx context.Context, params *eb.DescribeApplicationVersionsInput, optFns ...func(*eb.Options)) (*eb.DescribeApplicationVersionsOutput, error)
	DescribeEnvironments(ctx context.Context, params *eb.DescribeEnvironmentsInput, optFns ...func(*eb.Options)) (*eb.DescribeEnvironmentsOutput, error)
	DescribeEvents(ctx context.Context, params *eb.DescribeEventsInput, optFns ...func(*eb.Options)) (*eb.DescribeEventsOutput, error)
	UpdateEnvironment(ctx context.Context, params *eb.UpdateEnvironmentInput, optFns ...func(*eb.Options)) (*eb.UpdateEnvironmentOutput, error)
	ValidateConfigurationSettings(ctx context.Context, params *eb.ValidateConfigurationSettingsInput, optFns ...func(*eb.Options)) (*eb.ValidateConfigurationSettingsOutput, error)
}

// EC2API is the subset of the EC2 client used to count environment instances.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// S3Uploader is implemented by *manager.Uploader.
type S3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

var (
	_ EBSAPI     = (*eb.Client)(nil)
	_ EC2API     = (*ec2.Client)(nil)
	_ S3Uploader = (*manager.Uploader)(nil)
)
