package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/go-logr/logr"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-vfs"
	"github.com/variantdev/ebs-deploy/pkg/archive"
	"github.com/variantdev/ebs-deploy/pkg/config"
	"github.com/variantdev/ebs-deploy/pkg/deploy"
	"github.com/variantdev/ebs-deploy/pkg/ebs"
	"github.com/variantdev/ebs-deploy/pkg/telemetry"
)

const jobName = "ebs_deploy"

func newDeployCommand(log logr.Logger, g *globalOptions) *cobra.Command {
	args := deploy.Args{}

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Upload and deploy an application version, then apply the environment configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeploy(cmd, log, g, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&args.Environment, "environment", "e", "", "environment to deploy to")
	flags.BoolVarP(&args.DontWait, "dont-wait", "w", false, "do not wait for the environment to become ready")
	flags.StringVarP(&args.Archive, "archive", "a", "", "path or URL of a pre-built archive to deploy")
	flags.StringVarP(&args.Directory, "directory", "d", "", "directory to package and deploy")
	flags.StringVarP(&args.VersionLabel, "version-label", "l", "", "existing version label to deploy instead of uploading")
	flags.BoolVarP(&args.LogEventsToFile, "log-events-to-file", "f", false, "write the environment events to "+deploy.EventsFileName)

	if err := cmd.MarkFlagRequired("environment"); err != nil {
		panic(err)
	}

	return cmd
}

func runDeploy(cmd *cobra.Command, log logr.Logger, g *globalOptions, args deploy.Args) error {
	ctx := cmd.Context()

	if err := loadEnvFile(g.envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	fs := vfs.HostOSFS

	cfg, err := config.Load(fs, g.configFile)
	if err != nil {
		return err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg, g)
	if err != nil {
		return err
	}

	appName := cfg.GetString("app.app_name", "")

	helper, err := ebs.NewFromConfig(awsCfg, appName,
		ebs.Logger(log.WithName("ebs")),
		ebs.Bucket(cfg.GetString("aws.bucket", ""), cfg.GetString("aws.bucket_path", "")),
	)
	if err != nil {
		return err
	}

	telOpts := []telemetry.Option{
		telemetry.Logger(log.WithName("telemetry")),
		telemetry.PushGateway(pushGateway(cfg, g)),
		telemetry.ConstLabels(prometheus.Labels{"app": appName, "environment": args.Environment}),
	}
	if g.trace {
		telOpts = append(telOpts, telemetry.TraceOutput(cmd.ErrOrStderr()))
	}

	tel, err := telemetry.New(jobName, deploy.SpanKinds, telOpts...)
	if err != nil {
		return err
	}

	runErr := deploy.Execute(ctx, helper, cfg, args,
		deploy.Logger(log.WithName("deploy")),
		deploy.FS(fs),
		deploy.Telemeter(tel),
		deploy.Output(cmd.OutOrStdout()),
		deploy.Reload(func() (*config.Config, error) {
			return config.Load(fs, g.configFile)
		}),
		deploy.ArchiveOptions(archive.Progress(cmd.ErrOrStderr())),
	)

	// Metrics of a failed run are pushed too
	if err := tel.Shutdown(context.Background()); err != nil {
		log.Error(err, "shutting down telemetry")
	}
	if err := tel.Push(context.Background()); err != nil {
		log.Error(err, "pushing metrics")
	}

	return runErr
}

// loadEnvFile loads the dotenv file into the process environment without
// overriding variables that are already set. A missing file is an error only
// when it was given explicitly.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) && !explicit {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}

	return nil
}

func loadAWSConfig(ctx context.Context, cfg *config.Config, g *globalOptions) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	region := g.region
	if region == "" {
		region = cfg.GetString("aws.region", "")
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	if g.profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(g.profile))
	}

	accessKey := cfg.GetString("aws.access_key", "")
	secretKey := cfg.GetString("aws.secret_key", "")
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}

	return awsCfg, nil
}

func pushGateway(cfg *config.Config, g *globalOptions) string {
	if g.pushGateway != "" {
		return g.pushGateway
	}
	return cfg.GetString("metrics.pushgateway", "")
}
