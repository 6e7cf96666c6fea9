package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/schollz/progressbar/v3"
	"github.com/twpayne/go-vfs"
	"github.com/variantdev/ebs-deploy/pkg/config"
	"github.com/variantdev/ebs-deploy/pkg/shell"
	"k8s.io/klog/v2/klogr"
)

// VersionLabelLayout is the time layout of generated version labels.
const VersionLabelLayout = "20060102_150405"

// Uploader stores application archives and registers them as application versions.
type Uploader interface {
	UploadArchive(ctx context.Context, name string, body io.Reader) error
	CreateApplicationVersion(ctx context.Context, versionLabel, name string) error
}

type Params struct {
	// Archive is a path or a go-getter URL to a pre-built archive
	Archive string

	// Directory is packaged into an archive when no archive is given
	Directory string

	// VersionLabel names an existing application version. Nothing is uploaded when it is set.
	VersionLabel string
}

type Archiver struct {
	Logger logr.Logger

	fs       vfs.FS
	sh       *shell.Shell
	getter   Getter
	now      func() time.Time
	cacheDir string
	tempDir  string
	progress io.Writer
}

func New(opts ...Option) (*Archiver, error) {
	a := &Archiver{}

	for _, o := range opts {
		if err := o.SetOption(a); err != nil {
			return nil, err
		}
	}

	if a.Logger.GetSink() == nil {
		a.Logger = klogr.New()
	}

	if a.fs == nil {
		a.fs = vfs.HostOSFS
	}

	if a.sh == nil {
		a.sh = shell.New()
	}

	if a.getter == nil {
		a.getter = &GoGetter{Logger: a.Logger, FS: a.fs}
	}

	if a.now == nil {
		a.now = time.Now
	}

	if a.tempDir == "" {
		a.tempDir = os.TempDir()
	}

	if a.cacheDir == "" {
		a.cacheDir = filepath.Join(a.tempDir, "ebs-deploy", "cache")
	}

	return a, nil
}

// UploadApplicationArchive resolves the version label to deploy.
//
// An explicit version label is returned as is. Otherwise an archive is
// generated, fetched or packaged, uploaded, and registered under a new
// timestamp label.
func UploadApplicationArchive(ctx context.Context, up Uploader, env *config.EnvConfig, p Params, opts ...Option) (string, error) {
	a, err := New(opts...)
	if err != nil {
		return "", err
	}

	return a.Upload(ctx, up, env, p)
}

func (a *Archiver) Upload(ctx context.Context, up Uploader, env *config.EnvConfig, p Params) (string, error) {
	if p.VersionLabel != "" {
		a.Logger.V(1).Info("using existing version", "label", p.VersionLabel)
		return p.VersionLabel, nil
	}

	label := a.now().Format(VersionLabelLayout)

	path, err := a.Build(ctx, env, p)
	if err != nil {
		return "", err
	}

	// Bundles of versions still in use must survive the deletion of older ones.
	name := label + "-" + filepath.Base(path)

	if err := a.upload(ctx, up, path, name); err != nil {
		return "", err
	}

	a.Logger.Info("creating application version", "label", label, "archive", name)

	if err := up.CreateApplicationVersion(ctx, label, name); err != nil {
		return "", fmt.Errorf("creating application version %s: %w", label, err)
	}

	return label, nil
}

// Build returns the path to the archive to upload.
//
// A generate command configured for the environment wins over an explicit
// archive, which wins over packaging the directory.
func (a *Archiver) Build(ctx context.Context, env *config.EnvConfig, p Params) (string, error) {
	dir := p.Directory
	if dir == "" {
		dir = "."
	}

	switch {
	case env.Archive.Generate != nil:
		return a.generate(dir, env.Archive)
	case p.Archive != "":
		return a.resolve(ctx, p.Archive)
	default:
		return a.pack(dir, env.Archive)
	}
}

func (a *Archiver) upload(ctx context.Context, up Uploader, path, name string) error {
	f, err := a.fs.Open(path)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}

	a.Logger.Info("uploading archive", "path", path, "name", name, "bytes", info.Size())

	var body io.Reader = f

	if a.progress != nil {
		bar := progressbar.NewOptions64(info.Size(),
			progressbar.OptionSetWriter(a.progress),
			progressbar.OptionSetDescription(fmt.Sprintf("Uploading %s", name)),
			progressbar.OptionShowBytes(true),
		)
		defer bar.Close()

		body = io.TeeReader(f, bar)
	}

	if err := up.UploadArchive(ctx, name, body); err != nil {
		return fmt.Errorf("uploading archive %s: %w", name, err)
	}

	return nil
}
