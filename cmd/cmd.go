package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/variantdev/ebs-deploy/pkg/config"
	"github.com/variantdev/ebs-deploy/pkg/loginfra"
	"k8s.io/klog/v2/klogr"
)

const defaultEnvFile = ".env"

type globalOptions struct {
	configFile  string
	profile     string
	region      string
	envFile     string
	pushGateway string
	trace       bool
}

func Execute() {
	log := klogr.New()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cmd := NewRootCommand(log)

	fs := loginfra.Init()

	// Hand parsing of remaining flags to pflags and cobra
	pflag.CommandLine.AddGoFlagSet(fs)

	err := cmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		log.Error(err, err.Error())
		os.Exit(1)
	}
}

func NewRootCommand(log logr.Logger) *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "ebs-deploy",
		Short: "Deploy applications to AWS Elastic Beanstalk",

		SilenceErrors: true,
		SilenceUsage:  true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&g.configFile, "config-file", "c", config.DefaultFileName, "path to the config file")
	flags.StringVar(&g.profile, "profile", "", "AWS shared config profile")
	flags.StringVar(&g.region, "region", "", "AWS region, overriding aws.region of the config file")
	flags.StringVar(&g.envFile, "env-file", defaultEnvFile, "dotenv file loaded before the AWS configuration")
	flags.StringVar(&g.pushGateway, "push-gateway", "", "Prometheus pushgateway URL, overriding metrics.pushgateway of the config file")
	flags.BoolVar(&g.trace, "trace", false, "print trace spans to stderr")

	cmd.AddCommand(newDeployCommand(log, g))

	return cmd
}
