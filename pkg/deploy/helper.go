package deploy

import (
	"context"
	"time"

	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk/types"
	"github.com/variantdev/ebs-deploy/pkg/archive"
	"github.com/variantdev/ebs-deploy/pkg/config"
)

// Helper is everything the deploy sequence needs from the hosting platform.
type Helper interface {
	archive.Uploader

	DeployVersion(ctx context.Context, envName, versionLabel string) error
	EnvInstances(ctx context.Context, envName string) ([]ec2types.Instance, error)
	WaitForEnvironments(ctx context.Context, opts WaitOptions) error
	UpdateEnvironment(ctx context.Context, envName string, update EnvironmentUpdate) error
	DescribeEvents(ctx context.Context, envName string, startTime time.Time) ([]ebtypes.EventDescription, error)
	DeleteUnusedVersions(ctx context.Context, versionsToKeep int) error
}

// WaitOptions selects the environments to wait for and the state they must reach.
// Empty predicates match anything.
type WaitOptions struct {
	EnvironmentNames []string
	Health           string
	Status           string
	VersionLabel     string
	IncludeDeleted   bool
	WaitTime         time.Duration
}

type EnvironmentUpdate struct {
	Description    string
	OptionSettings []config.OptionSetting
	TierType       string
	TierName       string
	TierVersion    string
}

// NewEnvironmentUpdate converts a parsed environment config into an update request.
func NewEnvironmentUpdate(env *config.EnvConfig) EnvironmentUpdate {
	return EnvironmentUpdate{
		Description:    env.Description,
		OptionSettings: config.ParseOptionSettings(env.OptionSettings),
		TierType:       env.TierType,
		TierName:       env.TierName,
		TierVersion:    env.TierVersion,
	}
}
