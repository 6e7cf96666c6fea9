package ebs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	eb "github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk/types"
	"github.com/variantdev/ebs-deploy/pkg/deploy"
)

// WaitForEnvironments polls the environments until each of them matches every
// predicate set in opts. It fails when the wait time is exceeded after a poll,
// when no environment is returned, or when an environment stays Ready and Red
// for more than MaxRedSamples consecutive polls.
func (h *Helper) WaitForEnvironments(ctx context.Context, opts deploy.WaitOptions) error {
	pending := append([]string(nil), opts.EnvironmentNames...)
	if len(pending) == 0 {
		return nil
	}

	log := h.Logger.WithValues("envs", strings.Join(pending, ","))
	log.Info("waiting for environments", "health", opts.Health, "status", opts.Status, "versionLabel", opts.VersionLabel, "waitTime", opts.WaitTime)

	started := h.now()
	seen := map[string]bool{}
	for _, name := range pending {
		events, err := h.DescribeEvents(ctx, name, started)
		if err != nil {
			return err
		}
		for _, e := range events {
			seen[eventKey(e)] = true
		}
	}

	reds := map[string]int{}
	lim := limiter(h.PollInterval)

	for len(pending) > 0 {
		if err := lim.Wait(ctx); err != nil {
			return err
		}

		out, err := h.EBS.DescribeEnvironments(ctx, &eb.DescribeEnvironmentsInput{
			ApplicationName:  aws.String(h.AppName),
			EnvironmentNames: pending,
			IncludeDeleted:   aws.Bool(opts.IncludeDeleted),
		})
		if err != nil {
			return fmt.Errorf("describing environments: %w", err)
		}

		if len(out.Environments) == 0 {
			return fmt.Errorf("no environments found for %s", strings.Join(pending, ", "))
		}

		for _, env := range out.Environments {
			name := aws.ToString(env.EnvironmentName)

			log.Info("environment state", "env", name, "health", env.Health, "status", env.Status, "versionLabel", aws.ToString(env.VersionLabel))

			if env.Status == ebtypes.EnvironmentStatusReady && env.Health == ebtypes.EnvironmentHealthRed {
				reds[name]++
				if reds[name] > MaxRedSamples {
					return fmt.Errorf("environment %q is Ready and Red", name)
				}
			} else {
				reds[name] = 0
			}

			if matches(env, opts) {
				log.Info("environment is ready", "env", name)
				pending = remove(pending, name)
			}
		}

		if len(pending) > 0 && h.now().Sub(started) > opts.WaitTime {
			return fmt.Errorf("wait time for environment(s) %s to be %s expired", strings.Join(pending, ", "), describeWanted(opts))
		}

		for _, name := range pending {
			events, err := h.DescribeEvents(ctx, name, started)
			if err != nil {
				return err
			}
			for _, e := range events {
				k := eventKey(e)
				if seen[k] {
					continue
				}
				seen[k] = true
				log.Info(aws.ToString(e.Message), "env", name, "severity", e.Severity)
			}
		}
	}

	return nil
}

func matches(env ebtypes.EnvironmentDescription, opts deploy.WaitOptions) bool {
	if opts.Health != "" && string(env.Health) != opts.Health {
		return false
	}
	if opts.Status != "" && string(env.Status) != opts.Status {
		return false
	}
	if opts.VersionLabel != "" && aws.ToString(env.VersionLabel) != opts.VersionLabel {
		return false
	}
	return true
}

func describeWanted(opts deploy.WaitOptions) string {
	var parts []string
	if opts.Health != "" {
		parts = append(parts, "health "+opts.Health)
	}
	if opts.Status != "" {
		parts = append(parts, "status "+opts.Status)
	}
	if opts.VersionLabel != "" {
		parts = append(parts, "version "+opts.VersionLabel)
	}
	if len(parts) == 0 {
		return "present"
	}
	return strings.Join(parts, " and ")
}

func remove(names []string, name string) []string {
	var r []string
	for _, n := range names {
		if n != name {
			r = append(r, n)
		}
	}
	return r
}

func eventKey(e ebtypes.EventDescription) string {
	var date string
	if e.EventDate != nil {
		date = e.EventDate.UTC().Format(time.RFC3339Nano)
	}
	return strings.Join([]string{date, string(e.Severity), aws.ToString(e.Message)}, "\x00")
}
