package ebs

import (
	"context"
	"fmt"
	"io/ioutil"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	eb "github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"k8s.io/klog/v2/klogr"
)

type fakeEBS struct {
	environments func(in *eb.DescribeEnvironmentsInput) (*eb.DescribeEnvironmentsOutput, error)
	events       func(in *eb.DescribeEventsInput) (*eb.DescribeEventsOutput, error)
	validate     func(in *eb.ValidateConfigurationSettingsInput) (*eb.ValidateConfigurationSettingsOutput, error)
	versions     []ebtypes.ApplicationVersionDescription

	describeEnvCalls int
	updates          []*eb.UpdateEnvironmentInput
	created          []*eb.CreateApplicationVersionInput
	deleted          []*eb.DeleteApplicationVersionInput
}

func (f *fakeEBS) CreateApplicationVersion(_ context.Context, in *eb.CreateApplicationVersionInput, _ ...func(*eb.Options)) (*eb.CreateApplicationVersionOutput, error) {
	f.created = append(f.created, in)
	return &eb.CreateApplicationVersionOutput{}, nil
}

func (f *fakeEBS) DeleteApplicationVersion(_ context.Context, in *eb.DeleteApplicationVersionInput, _ ...func(*eb.Options)) (*eb.DeleteApplicationVersionOutput, error) {
	f.deleted = append(f.deleted, in)
	return &eb.DeleteApplicationVersionOutput{}, nil
}

// DescribeApplicationVersions serves two versions per page.
func (f *fakeEBS) DescribeApplicationVersions(_ context.Context, in *eb.DescribeApplicationVersionsInput, _ ...func(*eb.Options)) (*eb.DescribeApplicationVersionsOutput, error) {
	start := 0
	if in.NextToken != nil {
		start = int((*in.NextToken)[0] - '0')
	}
	end := start + 2
	if end > len(f.versions) {
		end = len(f.versions)
	}
	out := &eb.DescribeApplicationVersionsOutput{ApplicationVersions: f.versions[start:end]}
	if end < len(f.versions) {
		out.NextToken = aws.String(string(rune('0' + end)))
	}
	return out, nil
}

func (f *fakeEBS) DescribeEnvironments(_ context.Context, in *eb.DescribeEnvironmentsInput, _ ...func(*eb.Options)) (*eb.DescribeEnvironmentsOutput, error) {
	f.describeEnvCalls++
	if f.environments == nil {
		return &eb.DescribeEnvironmentsOutput{}, nil
	}
	return f.environments(in)
}

func (f *fakeEBS) DescribeEvents(_ context.Context, in *eb.DescribeEventsInput, _ ...func(*eb.Options)) (*eb.DescribeEventsOutput, error) {
	if f.events == nil {
		return &eb.DescribeEventsOutput{}, nil
	}
	return f.events(in)
}

func (f *fakeEBS) UpdateEnvironment(_ context.Context, in *eb.UpdateEnvironmentInput, _ ...func(*eb.Options)) (*eb.UpdateEnvironmentOutput, error) {
	f.updates = append(f.updates, in)
	return &eb.UpdateEnvironmentOutput{}, nil
}

func (f *fakeEBS) ValidateConfigurationSettings(_ context.Context, in *eb.ValidateConfigurationSettingsInput, _ ...func(*eb.Options)) (*eb.ValidateConfigurationSettingsOutput, error) {
	if f.validate == nil {
		return &eb.ValidateConfigurationSettingsOutput{}, nil
	}
	return f.validate(in)
}

type fakeEC2 struct {
	pages []*ec2.DescribeInstancesOutput
	calls int
}

func (f *fakeEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	out := f.pages[f.calls]
	f.calls++
	if f.calls < len(f.pages) {
		cp := *out
		cp.NextToken = aws.String(fmt.Sprintf("page-%d", f.calls))
		return &cp, nil
	}
	return out, nil
}

type fakeS3 struct {
	bucket string
	key    string
	body   string
}

func (f *fakeS3) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	bs, err := ioutil.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.body = string(bs)
	return &manager.UploadOutput{}, nil
}

// clock advances by step on every reading.
type clock struct {
	t    time.Time
	step time.Duration
}

func (c *clock) now() time.Time {
	t := c.t
	c.t = c.t.Add(c.step)
	return t
}

func newTestHelper(t *testing.T, ebsAPI EBSAPI, ec2API EC2API, up S3Uploader, opts ...Option) *Helper {
	t.Helper()

	opts = append([]Option{
		Logger(klogr.New()),
		PollInterval(0),
		DeleteInterval(0),
	}, opts...)

	h, err := New("myapp", ebsAPI, ec2API, up, opts...)
	if err != nil {
		t.Fatal(err)
	}

	return h
}
