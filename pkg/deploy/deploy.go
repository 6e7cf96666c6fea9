package deploy

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/twpayne/go-vfs"
	"github.com/variantdev/ebs-deploy/pkg/archive"
	"github.com/variantdev/ebs-deploy/pkg/config"
	"github.com/variantdev/ebs-deploy/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"k8s.io/klog/v2/klogr"
)

const (
	// TimeoutPerInstance is how long each instance of the environment adds to a wait.
	TimeoutPerInstance = 120 * time.Second

	DefaultVersionsToKeep = 10

	EventsFileName = "ebs_events.json"

	CommandName = "deploy"

	SpanKindCommand telemetry.SpanKind = "command"
	SpanKindStep    telemetry.SpanKind = "step"
)

// SpanKinds are the span kinds recorded by the deployer, outermost first.
var SpanKinds = []telemetry.SpanKind{SpanKindCommand, SpanKindStep}

type Args struct {
	Environment     string
	DontWait        bool
	Archive         string
	Directory       string
	VersionLabel    string
	LogEventsToFile bool
}

type Deployer struct {
	Logger logr.Logger

	fs          vfs.FS
	telemeter   *telemetry.Telemeter
	now         func() time.Time
	out         io.Writer
	workDir     string
	reload      func() (*config.Config, error)
	archiveOpts []archive.Option
}

func New(opts ...Option) (*Deployer, error) {
	d := &Deployer{}

	for _, o := range opts {
		if err := o.SetOption(d); err != nil {
			return nil, err
		}
	}

	if d.Logger.GetSink() == nil {
		d.Logger = klogr.New()
	}

	if d.fs == nil {
		d.fs = vfs.HostOSFS
	}

	if d.now == nil {
		d.now = time.Now
	}

	if d.out == nil {
		d.out = os.Stdout
	}

	if d.workDir == "" {
		d.workDir = "."
	}

	return d, nil
}

// WaitBudget is the time given to an environment of n instances to become ready.
func WaitBudget(n int) time.Duration {
	return TimeoutPerInstance * time.Duration(n)
}

// Execute deploys a version to the environment named in args.
func Execute(ctx context.Context, helper Helper, cfg *config.Config, args Args, opts ...Option) error {
	d, err := New(opts...)
	if err != nil {
		return err
	}

	return d.Run(ctx, helper, cfg, args)
}

// Run uploads or reuses a version, deploys it, waits for the environment,
// applies the environment configuration, waits again, fetches the events
// and finally prunes old versions. It stops at the first failing step.
func (d *Deployer) Run(ctx context.Context, helper Helper, cfg *config.Config, args Args) error {
	if args.Environment == "" {
		return fmt.Errorf("environment is required")
	}

	return d.span(ctx, SpanKindCommand, CommandName, func(ctx context.Context) error {
		return d.run(ctx, helper, cfg, args)
	})
}

func (d *Deployer) run(ctx context.Context, helper Helper, cfg *config.Config, args Args) error {
	envName := args.Environment
	log := d.Logger.WithValues("env", envName)

	var env *config.EnvConfig
	if err := d.step(ctx, "parse-config", func(ctx context.Context) error {
		var err error
		env, err = config.ParseEnvConfig(cfg, envName)
		return err
	}); err != nil {
		return err
	}

	var versionLabel string
	if err := d.step(ctx, "upload", func(ctx context.Context) error {
		var err error
		versionLabel, err = archive.UploadApplicationArchive(ctx, helper, env, archive.Params{
			Archive:      args.Archive,
			Directory:    args.Directory,
			VersionLabel: args.VersionLabel,
		}, d.archiveOptions()...)
		return err
	}); err != nil {
		return err
	}

	startTime := d.now().UTC()

	if err := d.step(ctx, "deploy-version", func(ctx context.Context) error {
		log.Info("deploying", "versionLabel", versionLabel)
		return helper.DeployVersion(ctx, envName, versionLabel)
	}); err != nil {
		return err
	}

	var waitTime time.Duration
	if err := d.step(ctx, "env-instances", func(ctx context.Context) error {
		instances, err := helper.EnvInstances(ctx, envName)
		if err != nil {
			return err
		}
		waitTime = WaitBudget(len(instances))
		d.event(ctx, "computed wait time",
			attribute.Int("instances", len(instances)),
			attribute.String("waitTime", waitTime.String()))
		return nil
	}); err != nil {
		return err
	}

	if !args.DontWait {
		if err := d.step(ctx, "wait-ready", func(ctx context.Context) error {
			return helper.WaitForEnvironments(ctx, WaitOptions{
				EnvironmentNames: []string{envName},
				Status:           "Ready",
				VersionLabel:     versionLabel,
				IncludeDeleted:   false,
				WaitTime:         waitTime,
			})
		}); err != nil {
			return err
		}
	}

	if err := d.step(ctx, "update-environment", func(ctx context.Context) error {
		fresh, err := d.reparse(cfg, envName)
		if err != nil {
			return err
		}
		log.Info("updating environment configuration")
		return helper.UpdateEnvironment(ctx, envName, NewEnvironmentUpdate(fresh))
	}); err != nil {
		return err
	}

	if !args.DontWait {
		if err := d.step(ctx, "wait-green", func(ctx context.Context) error {
			return helper.WaitForEnvironments(ctx, WaitOptions{
				EnvironmentNames: []string{envName},
				Health:           "Green",
				Status:           "Ready",
				VersionLabel:     versionLabel,
				IncludeDeleted:   false,
				WaitTime:         waitTime,
			})
		}); err != nil {
			return err
		}
	}

	if err := d.step(ctx, "events", func(ctx context.Context) error {
		events, err := helper.DescribeEvents(ctx, envName, startTime)
		if err != nil {
			return err
		}
		d.printEvents(events)
		if args.LogEventsToFile {
			return d.writeEvents(events)
		}
		return nil
	}); err != nil {
		return err
	}

	return d.step(ctx, "delete-unused-versions", func(ctx context.Context) error {
		keep, err := cfg.GetInt("app.versions_to_keep", DefaultVersionsToKeep)
		if err != nil {
			return err
		}
		return helper.DeleteUnusedVersions(ctx, keep)
	})
}

// reparse parses the environment again from a fresh read of the configuration
// so that edits made while waiting are applied.
func (d *Deployer) reparse(cfg *config.Config, envName string) (*config.EnvConfig, error) {
	if d.reload != nil {
		c, err := d.reload()
		if err != nil {
			return nil, fmt.Errorf("reloading config: %w", err)
		}
		cfg = c
	}

	return config.ParseEnvConfig(cfg, envName)
}

func (d *Deployer) archiveOptions() []archive.Option {
	opts := []archive.Option{
		archive.Logger(d.Logger.WithName("archive")),
		archive.FS(d.fs),
	}
	return append(opts, d.archiveOpts...)
}

func (d *Deployer) step(ctx context.Context, name string, body func(ctx context.Context) error) error {
	d.Logger.V(2).Info("step", "name", name)

	if err := d.span(ctx, SpanKindStep, name, body); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	return nil
}

func (d *Deployer) span(ctx context.Context, kind telemetry.SpanKind, name string, body func(ctx context.Context) error) error {
	if d.telemeter == nil {
		return body(ctx)
	}

	return d.telemeter.WithSpan(ctx, kind, name, body)
}

// event is recorded on the current span, or only logged without a telemeter.
func (d *Deployer) event(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if d.telemeter == nil {
		kvs := make([]interface{}, 0, len(attrs)*2)
		for _, a := range attrs {
			kvs = append(kvs, string(a.Key), a.Value.Emit())
		}
		d.Logger.V(1).Info(msg, kvs...)
		return
	}

	d.telemeter.AddTraceEvent(ctx, msg, attrs...)
}
