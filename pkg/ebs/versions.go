package ebs

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	eb "github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// UploadArchive stores the archive under the configured bucket path.
func (h *Helper) UploadArchive(ctx context.Context, name string, body io.Reader) error {
	if h.Bucket == "" {
		return fmt.Errorf("uploading %s: no bucket configured", name)
	}

	key := h.key(name)

	h.Logger.Info("uploading archive", "bucket", h.Bucket, "key", key)

	_, err := h.Uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(h.Bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", h.Bucket, key, err)
	}

	return nil
}

// CreateApplicationVersion registers an uploaded archive as an application version.
func (h *Helper) CreateApplicationVersion(ctx context.Context, versionLabel, name string) error {
	key := h.key(name)

	_, err := h.EBS.CreateApplicationVersion(ctx, &eb.CreateApplicationVersionInput{
		ApplicationName: aws.String(h.AppName),
		VersionLabel:    aws.String(versionLabel),
		SourceBundle: &ebtypes.S3Location{
			S3Bucket: aws.String(h.Bucket),
			S3Key:    aws.String(key),
		},
	})
	if err != nil {
		return fmt.Errorf("creating application version %s: %w", versionLabel, err)
	}

	h.Logger.Info("created application version", "versionLabel", versionLabel, "key", key)

	return nil
}

// DeleteUnusedVersions deletes application versions that are not deployed to any
// live environment, keeping the versionsToKeep newest of them.
func (h *Helper) DeleteUnusedVersions(ctx context.Context, versionsToKeep int) error {
	envs, err := h.EBS.DescribeEnvironments(ctx, &eb.DescribeEnvironmentsInput{
		ApplicationName: aws.String(h.AppName),
		IncludeDeleted:  aws.Bool(false),
	})
	if err != nil {
		return fmt.Errorf("describing environments: %w", err)
	}

	inUse := map[string]bool{}
	for _, e := range envs.Environments {
		inUse[aws.ToString(e.VersionLabel)] = true
	}

	versions, err := h.applicationVersions(ctx)
	if err != nil {
		return err
	}

	sort.SliceStable(versions, func(i, j int) bool {
		return dateCreated(versions[i]).After(dateCreated(versions[j]))
	})

	var unused []string
	for _, v := range versions {
		label := aws.ToString(v.VersionLabel)
		if inUse[label] {
			h.Logger.V(1).Info("keeping version in use", "versionLabel", label)
			continue
		}
		unused = append(unused, label)
	}

	if versionsToKeep < 0 {
		versionsToKeep = 0
	}
	if len(unused) <= versionsToKeep {
		return nil
	}

	lim := limiter(h.DeleteInterval)

	for _, label := range unused[versionsToKeep:] {
		if err := lim.Wait(ctx); err != nil {
			return err
		}

		h.Logger.Info("deleting application version", "versionLabel", label)

		_, err := h.EBS.DeleteApplicationVersion(ctx, &eb.DeleteApplicationVersionInput{
			ApplicationName:    aws.String(h.AppName),
			VersionLabel:       aws.String(label),
			DeleteSourceBundle: aws.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("deleting application version %s: %w", label, err)
		}
	}

	return nil
}

func (h *Helper) applicationVersions(ctx context.Context) ([]ebtypes.ApplicationVersionDescription, error) {
	var versions []ebtypes.ApplicationVersionDescription

	in := &eb.DescribeApplicationVersionsInput{
		ApplicationName: aws.String(h.AppName),
	}

	for {
		out, err := h.EBS.DescribeApplicationVersions(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("describing application versions: %w", err)
		}

		versions = append(versions, out.ApplicationVersions...)

		if aws.ToString(out.NextToken) == "" {
			break
		}
		in.NextToken = out.NextToken
	}

	return versions, nil
}

func (h *Helper) key(name string) string {
	return path.Join(h.BucketPath, path.Base(name))
}

func dateCreated(v ebtypes.ApplicationVersionDescription) time.Time {
	if v.DateCreated == nil {
		return time.Time{}
	}
	return *v.DateCreated
}
