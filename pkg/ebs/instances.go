package ebs

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// EnvInstances returns the instances tagged with the environment name.
func (h *Helper) EnvInstances(ctx context.Context, envName string) ([]ec2types.Instance, error) {
	instances, err := GetEnvInstances(ctx, h.EC2, envName)
	if err != nil {
		return nil, err
	}

	h.Logger.V(1).Info("found environment instances", "env", envName, "count", len(instances))

	return instances, nil
}

// GetEnvInstances looks at the first instance of every reservation and keeps it
// when its Name tag equals envName. Other instances of the same reservation are
// never considered.
func GetEnvInstances(ctx context.Context, api EC2API, envName string) ([]ec2types.Instance, error) {
	var instances []ec2types.Instance

	p := ec2.NewDescribeInstancesPaginator(api, &ec2.DescribeInstancesInput{})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describing instances: %w", err)
		}

		for _, r := range out.Reservations {
			if len(r.Instances) == 0 {
				continue
			}

			first := r.Instances[0]
			if nameTag(first.Tags) == envName {
				instances = append(instances, first)
			}
		}
	}

	return instances, nil
}

func nameTag(tags []ec2types.Tag) string {
	for _, t := range tags {
		if aws.ToString(t.Key) == "Name" {
			return aws.ToString(t.Value)
		}
	}
	return ""
}
