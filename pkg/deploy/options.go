package deploy

import (
	"io"
	"time"

	"github.com/go-logr/logr"
	"github.com/twpayne/go-vfs"
	"github.com/variantdev/ebs-deploy/pkg/archive"
	"github.com/variantdev/ebs-deploy/pkg/config"
	"github.com/variantdev/ebs-deploy/pkg/telemetry"
)

type Option interface {
	SetOption(d *Deployer) error
}

type optionFunc func(d *Deployer) error

func (f optionFunc) SetOption(d *Deployer) error {
	return f(d)
}

func Logger(l logr.Logger) Option {
	return optionFunc(func(d *Deployer) error {
		d.Logger = l
		return nil
	})
}

func FS(fs vfs.FS) Option {
	return optionFunc(func(d *Deployer) error {
		d.fs = fs
		return nil
	})
}

// Telemeter records a span for the command and for each of its steps.
func Telemeter(t *telemetry.Telemeter) Option {
	return optionFunc(func(d *Deployer) error {
		d.telemeter = t
		return nil
	})
}

func Now(now func() time.Time) Option {
	return optionFunc(func(d *Deployer) error {
		d.now = now
		return nil
	})
}

// Output is where fetched events are printed.
func Output(w io.Writer) Option {
	return optionFunc(func(d *Deployer) error {
		d.out = w
		return nil
	})
}

// WorkDir is the directory the events file is written to.
func WorkDir(dir string) Option {
	return optionFunc(func(d *Deployer) error {
		d.workDir = dir
		return nil
	})
}

// Reload re-reads the configuration before the environment is updated.
func Reload(f func() (*config.Config, error)) Option {
	return optionFunc(func(d *Deployer) error {
		d.reload = f
		return nil
	})
}

func ArchiveOptions(opts ...archive.Option) Option {
	return optionFunc(func(d *Deployer) error {
		d.archiveOpts = append(d.archiveOpts, opts...)
		return nil
	})
}
