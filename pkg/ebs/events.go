package ebs

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	eb "github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk/types"
)

// DescribeEvents returns every event of the environment since startTime, newest first.
func (h *Helper) DescribeEvents(ctx context.Context, envName string, startTime time.Time) ([]ebtypes.EventDescription, error) {
	var events []ebtypes.EventDescription

	in := &eb.DescribeEventsInput{
		ApplicationName: aws.String(h.AppName),
		EnvironmentName: aws.String(envName),
		StartTime:       aws.Time(startTime),
	}

	for {
		out, err := h.EBS.DescribeEvents(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("describing events of %s: %w", envName, err)
		}

		events = append(events, out.Events...)

		if aws.ToString(out.NextToken) == "" {
			break
		}
		in.NextToken = out.NextToken
	}

	return events, nil
}
