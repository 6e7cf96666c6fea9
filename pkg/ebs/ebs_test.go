package ebs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	eb "github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk/types"
	"github.com/google/go-cmp/cmp"
	"github.com/variantdev/ebs-deploy/pkg/config"
	"github.com/variantdev/ebs-deploy/pkg/deploy"
)

func instance(id, name string) ec2types.Instance {
	i := ec2types.Instance{InstanceId: aws.String(id)}
	if name != "" {
		i.Tags = []ec2types.Tag{
			{Key: aws.String("env"), Value: aws.String("ignored")},
			{Key: aws.String("Name"), Value: aws.String(name)},
		}
	}
	return i
}

func instanceIDs(instances []ec2types.Instance) []string {
	var ids []string
	for _, i := range instances {
		ids = append(ids, aws.ToString(i.InstanceId))
	}
	return ids
}

func TestGetEnvInstances(t *testing.T) {
	api := &fakeEC2{
		pages: []*ec2.DescribeInstancesOutput{
			{
				Reservations: []ec2types.Reservation{
					{Instances: []ec2types.Instance{instance("i-1", "staging"), instance("i-2", "staging")}},
					{Instances: []ec2types.Instance{instance("i-3", "prod"), instance("i-4", "staging")}},
					{},
				},
			},
			{
				Reservations: []ec2types.Reservation{
					{Instances: []ec2types.Instance{instance("i-5", "staging")}},
					{Instances: []ec2types.Instance{instance("i-6", "")}},
				},
			},
		},
	}

	instances, err := GetEnvInstances(context.Background(), api, "staging")
	if err != nil {
		t.Fatal(err)
	}

	if d := cmp.Diff([]string{"i-1", "i-5"}, instanceIDs(instances)); d != "" {
		t.Errorf("unexpected instances: %s", d)
	}

	if api.calls != 2 {
		t.Errorf("expected 2 pages to be read, got %d", api.calls)
	}
}

func TestGetEnvInstances_NoMatch(t *testing.T) {
	api := &fakeEC2{
		pages: []*ec2.DescribeInstancesOutput{
			{Reservations: []ec2types.Reservation{
				{Instances: []ec2types.Instance{instance("i-1", "prod")}},
			}},
		},
	}

	h := newTestHelper(t, &fakeEBS{}, api, &fakeS3{})

	instances, err := h.EnvInstances(context.Background(), "staging")
	if err != nil {
		t.Fatal(err)
	}

	if len(instances) != 0 {
		t.Errorf("expected no instances, got %v", instanceIDs(instances))
	}
}

func env(name, status, health, label string) ebtypes.EnvironmentDescription {
	return ebtypes.EnvironmentDescription{
		EnvironmentName: aws.String(name),
		Status:          ebtypes.EnvironmentStatus(status),
		Health:          ebtypes.EnvironmentHealth(health),
		VersionLabel:    aws.String(label),
	}
}

func sequence(states ...ebtypes.EnvironmentDescription) func(*eb.DescribeEnvironmentsInput) (*eb.DescribeEnvironmentsOutput, error) {
	i := 0
	return func(*eb.DescribeEnvironmentsInput) (*eb.DescribeEnvironmentsOutput, error) {
		s := states[i]
		if i < len(states)-1 {
			i++
		}
		return &eb.DescribeEnvironmentsOutput{Environments: []ebtypes.EnvironmentDescription{s}}, nil
	}
}

func TestWaitForEnvironments(t *testing.T) {
	api := &fakeEBS{
		environments: sequence(
			env("staging", "Updating", "Grey", "v11"),
			env("staging", "Ready", "Yellow", "v12"),
			env("staging", "Ready", "Green", "v12"),
		),
	}

	h := newTestHelper(t, api, &fakeEC2{}, &fakeS3{})

	err := h.WaitForEnvironments(context.Background(), deploy.WaitOptions{
		EnvironmentNames: []string{"staging"},
		Health:           "Green",
		Status:           "Ready",
		VersionLabel:     "v12",
		WaitTime:         time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}

	if api.describeEnvCalls != 3 {
		t.Errorf("expected 3 polls, got %d", api.describeEnvCalls)
	}
}

func TestWaitForEnvironments_StatusOnly(t *testing.T) {
	api := &fakeEBS{
		environments: sequence(env("staging", "Ready", "Red", "v12")),
	}

	h := newTestHelper(t, api, &fakeEC2{}, &fakeS3{})

	err := h.WaitForEnvironments(context.Background(), deploy.WaitOptions{
		EnvironmentNames: []string{"staging"},
		Status:           "Ready",
		VersionLabel:     "v12",
		WaitTime:         time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}

	if api.describeEnvCalls != 1 {
		t.Errorf("expected 1 poll, got %d", api.describeEnvCalls)
	}
}

func TestWaitForEnvironments_ZeroWaitTimeStillPolls(t *testing.T) {
	api := &fakeEBS{
		environments: sequence(env("staging", "Ready", "Green", "v12")),
	}

	c := &clock{t: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), step: time.Second}
	h := newTestHelper(t, api, &fakeEC2{}, &fakeS3{}, Now(c.now))

	err := h.WaitForEnvironments(context.Background(), deploy.WaitOptions{
		EnvironmentNames: []string{"staging"},
		Status:           "Ready",
	})
	if err != nil {
		t.Fatal(err)
	}

	if api.describeEnvCalls != 1 {
		t.Errorf("expected 1 poll, got %d", api.describeEnvCalls)
	}
}

func TestWaitForEnvironments_Timeout(t *testing.T) {
	api := &fakeEBS{
		environments: sequence(env("staging", "Updating", "Grey", "v11")),
	}

	c := &clock{t: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), step: 100 * time.Second}
	h := newTestHelper(t, api, &fakeEC2{}, &fakeS3{}, Now(c.now))

	err := h.WaitForEnvironments(context.Background(), deploy.WaitOptions{
		EnvironmentNames: []string{"staging"},
		Status:           "Ready",
		VersionLabel:     "v12",
		WaitTime:         150 * time.Second,
	})
	if err == nil {
		t.Fatal("expected error")
	}

	if !strings.Contains(err.Error(), "wait time for environment(s) staging to be status Ready and version v12 expired") {
		t.Errorf("unexpected error: %v", err)
	}

	if api.describeEnvCalls != 2 {
		t.Errorf("expected 2 polls, got %d", api.describeEnvCalls)
	}
}

func TestWaitForEnvironments_ReadyAndRed(t *testing.T) {
	api := &fakeEBS{
		environments: sequence(env("staging", "Ready", "Red", "v12")),
	}

	h := newTestHelper(t, api, &fakeEC2{}, &fakeS3{})

	err := h.WaitForEnvironments(context.Background(), deploy.WaitOptions{
		EnvironmentNames: []string{"staging"},
		Health:           "Green",
		WaitTime:         time.Hour,
	})
	if err == nil {
		t.Fatal("expected error")
	}

	if err.Error() != `environment "staging" is Ready and Red` {
		t.Errorf("unexpected error: %v", err)
	}

	if api.describeEnvCalls != MaxRedSamples+1 {
		t.Errorf("expected %d polls, got %d", MaxRedSamples+1, api.describeEnvCalls)
	}
}

func TestWaitForEnvironments_RedCountResets(t *testing.T) {
	var states []ebtypes.EnvironmentDescription
	for i := 0; i < MaxRedSamples; i++ {
		states = append(states, env("staging", "Ready", "Red", "v12"))
	}
	states = append(states, env("staging", "Ready", "Yellow", "v12"))
	for i := 0; i < MaxRedSamples; i++ {
		states = append(states, env("staging", "Ready", "Red", "v12"))
	}
	states = append(states, env("staging", "Ready", "Green", "v12"))

	api := &fakeEBS{environments: sequence(states...)}

	h := newTestHelper(t, api, &fakeEC2{}, &fakeS3{})

	err := h.WaitForEnvironments(context.Background(), deploy.WaitOptions{
		EnvironmentNames: []string{"staging"},
		Health:           "Green",
		WaitTime:         time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestWaitForEnvironments_NoEnvironments(t *testing.T) {
	api := &fakeEBS{}

	h := newTestHelper(t, api, &fakeEC2{}, &fakeS3{})

	err := h.WaitForEnvironments(context.Background(), deploy.WaitOptions{
		EnvironmentNames: []string{"staging"},
		WaitTime:         time.Hour,
	})
	if err == nil || !strings.Contains(err.Error(), "no environments found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWaitForEnvironments_Canceled(t *testing.T) {
	api := &fakeEBS{
		environments: sequence(env("staging", "Updating", "Grey", "v11")),
	}

	h := newTestHelper(t, api, &fakeEC2{}, &fakeS3{}, PollInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.WaitForEnvironments(ctx, deploy.WaitOptions{
		EnvironmentNames: []string{"staging"},
		Status:           "Ready",
		WaitTime:         time.Hour,
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestDescribeEvents(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	var starts []time.Time
	api := &fakeEBS{
		events: func(in *eb.DescribeEventsInput) (*eb.DescribeEventsOutput, error) {
			starts = append(starts, aws.ToTime(in.StartTime))
			if in.NextToken == nil {
				return &eb.DescribeEventsOutput{
					Events:    []ebtypes.EventDescription{{Message: aws.String("second")}},
					NextToken: aws.String("t"),
				}, nil
			}
			return &eb.DescribeEventsOutput{
				Events: []ebtypes.EventDescription{{Message: aws.String("first")}},
			}, nil
		},
	}

	h := newTestHelper(t, api, &fakeEC2{}, &fakeS3{})

	events, err := h.DescribeEvents(context.Background(), "staging", start)
	if err != nil {
		t.Fatal(err)
	}

	var msgs []string
	for _, e := range events {
		msgs = append(msgs, aws.ToString(e.Message))
	}

	if d := cmp.Diff([]string{"second", "first"}, msgs); d != "" {
		t.Errorf("unexpected events: %s", d)
	}

	if d := cmp.Diff([]time.Time{start, start}, starts); d != "" {
		t.Errorf("unexpected start times: %s", d)
	}
}

type update struct {
	Env         string
	Version     string
	Description string
	Settings    []string
	Tier        []string
}

func summarize(in *eb.UpdateEnvironmentInput) update {
	u := update{
		Env:         aws.ToString(in.EnvironmentName),
		Version:     aws.ToString(in.VersionLabel),
		Description: aws.ToString(in.Description),
	}
	for _, s := range in.OptionSettings {
		u.Settings = append(u.Settings, aws.ToString(s.Namespace)+":"+aws.ToString(s.OptionName)+"="+aws.ToString(s.Value))
	}
	if in.Tier != nil {
		u.Tier = []string{aws.ToString(in.Tier.Name), aws.ToString(in.Tier.Type), aws.ToString(in.Tier.Version)}
	}
	return u
}

func TestDeployVersion(t *testing.T) {
	api := &fakeEBS{}
	h := newTestHelper(t, api, &fakeEC2{}, &fakeS3{})

	if err := h.DeployVersion(context.Background(), "staging", "v12"); err != nil {
		t.Fatal(err)
	}

	if len(api.updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(api.updates))
	}

	if d := cmp.Diff(update{Env: "staging", Version: "v12"}, summarize(api.updates[0])); d != "" {
		t.Errorf("unexpected update: %s", d)
	}
}

func TestUpdateEnvironment(t *testing.T) {
	var validated int
	api := &fakeEBS{
		validate: func(in *eb.ValidateConfigurationSettingsInput) (*eb.ValidateConfigurationSettingsOutput, error) {
			validated = len(in.OptionSettings)
			return &eb.ValidateConfigurationSettingsOutput{
				Messages: []ebtypes.ValidationMessage{
					{Message: aws.String("deprecated"), Severity: ebtypes.ValidationSeverityWarning},
				},
			}, nil
		},
	}
	h := newTestHelper(t, api, &fakeEC2{}, &fakeS3{})

	err := h.UpdateEnvironment(context.Background(), "staging", deploy.EnvironmentUpdate{
		Description: "Staging",
		OptionSettings: []config.OptionSetting{
			{Namespace: "aws:autoscaling:asg", OptionName: "MinSize", Value: "1"},
			{Namespace: "aws:elasticbeanstalk:application:environment", OptionName: "STAGE", Value: "staging"},
		},
		TierName:    "WebServer",
		TierType:    "Standard",
		TierVersion: "1.0",
	})
	if err != nil {
		t.Fatal(err)
	}

	if validated != 2 {
		t.Errorf("expected 2 validated settings, got %d", validated)
	}

	want := update{
		Env:         "staging",
		Description: "Staging",
		Settings: []string{
			"aws:autoscaling:asg:MinSize=1",
			"aws:elasticbeanstalk:application:environment:STAGE=staging",
		},
		Tier: []string{"WebServer", "Standard", "1.0"},
	}

	if len(api.updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(api.updates))
	}

	if d := cmp.Diff(want, summarize(api.updates[0])); d != "" {
		t.Errorf("unexpected update: %s", d)
	}
}

func TestUpdateEnvironment_NoTier(t *testing.T) {
	api := &fakeEBS{}
	h := newTestHelper(t, api, &fakeEC2{}, &fakeS3{})

	if err := h.UpdateEnvironment(context.Background(), "staging", deploy.EnvironmentUpdate{TierVersion: "1.0"}); err != nil {
		t.Fatal(err)
	}

	if api.updates[0].Tier != nil {
		t.Errorf("expected no tier, got %v", summarize(api.updates[0]).Tier)
	}
}

func TestUpdateEnvironment_InvalidSettings(t *testing.T) {
	api := &fakeEBS{
		validate: func(in *eb.ValidateConfigurationSettingsInput) (*eb.ValidateConfigurationSettingsOutput, error) {
			return &eb.ValidateConfigurationSettingsOutput{
				Messages: []ebtypes.ValidationMessage{
					{Message: aws.String("bad value"), Severity: ebtypes.ValidationSeverityError},
				},
			}, nil
		},
	}
	h := newTestHelper(t, api, &fakeEC2{}, &fakeS3{})

	err := h.UpdateEnvironment(context.Background(), "staging", deploy.EnvironmentUpdate{
		OptionSettings: []config.OptionSetting{{Namespace: "ns", OptionName: "opt", Value: "x"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}

	if len(api.updates) != 0 {
		t.Errorf("expected no update, got %d", len(api.updates))
	}
}

func version(label string, daysAgo int) ebtypes.ApplicationVersionDescription {
	created := time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -daysAgo)
	return ebtypes.ApplicationVersionDescription{
		VersionLabel: aws.String(label),
		DateCreated:  aws.Time(created),
	}
}

func TestDeleteUnusedVersions(t *testing.T) {
	api := &fakeEBS{
		environments: func(*eb.DescribeEnvironmentsInput) (*eb.DescribeEnvironmentsOutput, error) {
			return &eb.DescribeEnvironmentsOutput{Environments: []ebtypes.EnvironmentDescription{
				env("prod", "Ready", "Green", "v1"),
				env("staging", "Ready", "Green", "v6"),
			}}, nil
		},
		versions: []ebtypes.ApplicationVersionDescription{
			version("v3", 3),
			version("v1", 5),
			version("v6", 0),
			version("v2", 4),
			version("v5", 1),
			version("v4", 2),
		},
	}
	h := newTestHelper(t, api, &fakeEC2{}, &fakeS3{})

	if err := h.DeleteUnusedVersions(context.Background(), 2); err != nil {
		t.Fatal(err)
	}

	var deleted []string
	for _, d := range api.deleted {
		deleted = append(deleted, aws.ToString(d.VersionLabel))
		if !aws.ToBool(d.DeleteSourceBundle) {
			t.Errorf("expected source bundle of %s to be deleted", aws.ToString(d.VersionLabel))
		}
	}

	if d := cmp.Diff([]string{"v3", "v2"}, deleted); d != "" {
		t.Errorf("unexpected deleted versions: %s", d)
	}
}

func TestDeleteUnusedVersions_NothingToDelete(t *testing.T) {
	api := &fakeEBS{
		versions: []ebtypes.ApplicationVersionDescription{version("v1", 1), version("v2", 0)},
	}
	h := newTestHelper(t, api, &fakeEC2{}, &fakeS3{})

	if err := h.DeleteUnusedVersions(context.Background(), 10); err != nil {
		t.Fatal(err)
	}

	if len(api.deleted) != 0 {
		t.Errorf("expected nothing deleted, got %d", len(api.deleted))
	}
}

func TestUploadArchiveAndCreateVersion(t *testing.T) {
	api := &fakeEBS{}
	up := &fakeS3{}
	h := newTestHelper(t, api, &fakeEC2{}, up, Bucket("deploys", "myapp/bundles"))

	ctx := context.Background()

	if err := h.UploadArchive(ctx, "/tmp/x/app.zip", strings.NewReader("zip")); err != nil {
		t.Fatal(err)
	}

	if d := cmp.Diff([]string{"deploys", "myapp/bundles/app.zip", "zip"}, []string{up.bucket, up.key, up.body}); d != "" {
		t.Errorf("unexpected upload: %s", d)
	}

	if err := h.CreateApplicationVersion(ctx, "20200101_000000", "/tmp/x/app.zip"); err != nil {
		t.Fatal(err)
	}

	c := api.created[0]
	got := []string{aws.ToString(c.ApplicationName), aws.ToString(c.VersionLabel), aws.ToString(c.SourceBundle.S3Bucket), aws.ToString(c.SourceBundle.S3Key)}
	if d := cmp.Diff([]string{"myapp", "20200101_000000", "deploys", "myapp/bundles/app.zip"}, got); d != "" {
		t.Errorf("unexpected version: %s", d)
	}
}

func TestUploadArchive_NoBucket(t *testing.T) {
	h := newTestHelper(t, &fakeEBS{}, &fakeEC2{}, &fakeS3{})

	if err := h.UploadArchive(context.Background(), "app.zip", strings.NewReader("")); err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_RequiresAppName(t *testing.T) {
	if _, err := New("", &fakeEBS{}, &fakeEC2{}, &fakeS3{}); err == nil {
		t.Fatal("expected error")
	}
}
