package ebs

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	eb "github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk/types"
	"github.com/variantdev/ebs-deploy/pkg/config"
	"github.com/variantdev/ebs-deploy/pkg/deploy"
)

var _ deploy.Helper = (*Helper)(nil)

// DeployVersion switches the environment to an existing application version.
func (h *Helper) DeployVersion(ctx context.Context, envName, versionLabel string) error {
	h.Logger.Info("deploying version", "env", envName, "versionLabel", versionLabel)

	_, err := h.EBS.UpdateEnvironment(ctx, &eb.UpdateEnvironmentInput{
		EnvironmentName: aws.String(envName),
		VersionLabel:    aws.String(versionLabel),
	})
	if err != nil {
		return fmt.Errorf("deploying version %s to %s: %w", versionLabel, envName, err)
	}

	return nil
}

// UpdateEnvironment validates the option settings and then applies them along
// with the description and tier.
func (h *Helper) UpdateEnvironment(ctx context.Context, envName string, update deploy.EnvironmentUpdate) error {
	settings := optionSettings(update.OptionSettings)

	if len(settings) > 0 {
		out, err := h.EBS.ValidateConfigurationSettings(ctx, &eb.ValidateConfigurationSettingsInput{
			ApplicationName: aws.String(h.AppName),
			EnvironmentName: aws.String(envName),
			OptionSettings:  settings,
		})
		if err != nil {
			return fmt.Errorf("validating configuration of %s: %w", envName, err)
		}

		var invalid int
		for _, m := range out.Messages {
			h.Logger.Info(aws.ToString(m.Message),
				"env", envName,
				"severity", m.Severity,
				"namespace", aws.ToString(m.Namespace),
				"option", aws.ToString(m.OptionName),
			)
			if m.Severity == ebtypes.ValidationSeverityError {
				invalid++
			}
		}
		if invalid > 0 {
			return fmt.Errorf("configuration of %s has %d invalid option setting(s)", envName, invalid)
		}
	}

	in := &eb.UpdateEnvironmentInput{
		EnvironmentName: aws.String(envName),
		OptionSettings:  settings,
	}

	if update.Description != "" {
		in.Description = aws.String(update.Description)
	}

	if update.TierName != "" || update.TierType != "" {
		tier := &ebtypes.EnvironmentTier{}
		if update.TierName != "" {
			tier.Name = aws.String(update.TierName)
		}
		if update.TierType != "" {
			tier.Type = aws.String(update.TierType)
		}
		if update.TierVersion != "" {
			tier.Version = aws.String(update.TierVersion)
		}
		in.Tier = tier
	}

	h.Logger.Info("updating environment", "env", envName, "optionSettings", len(settings))

	if _, err := h.EBS.UpdateEnvironment(ctx, in); err != nil {
		return fmt.Errorf("updating environment %s: %w", envName, err)
	}

	return nil
}

func optionSettings(settings []config.OptionSetting) []ebtypes.ConfigurationOptionSetting {
	var r []ebtypes.ConfigurationOptionSetting
	for _, s := range settings {
		r = append(r, ebtypes.ConfigurationOptionSetting{
			Namespace:  aws.String(s.Namespace),
			OptionName: aws.String(s.OptionName),
			Value:      aws.String(s.Value),
		})
	}
	return r
}
