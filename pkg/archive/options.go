package archive

import (
	"io"
	"time"

	"github.com/go-logr/logr"
	"github.com/twpayne/go-vfs"
	"github.com/variantdev/ebs-deploy/pkg/shell"
)

type Option interface {
	SetOption(a *Archiver) error
}

func Logger(logger logr.Logger) Option {
	return &loggerOption{l: logger}
}

type loggerOption struct {
	l logr.Logger
}

func (s *loggerOption) SetOption(a *Archiver) error {
	a.Logger = s.l
	return nil
}

func FS(fs vfs.FS) Option {
	return &fsOption{f: fs}
}

type fsOption struct {
	f vfs.FS
}

func (s *fsOption) SetOption(a *Archiver) error {
	a.fs = s.f
	return nil
}

func Shell(sh *shell.Shell) Option {
	return &shellOption{sh: sh}
}

type shellOption struct {
	sh *shell.Shell
}

func (s *shellOption) SetOption(a *Archiver) error {
	a.sh = s.sh
	return nil
}

func WithGetter(g Getter) Option {
	return &getterOption{g: g}
}

type getterOption struct {
	g Getter
}

func (s *getterOption) SetOption(a *Archiver) error {
	a.getter = s.g
	return nil
}

// CacheDir is where archives fetched from remote URLs are stored.
func CacheDir(dir string) Option {
	return &cacheDirOption{d: dir}
}

type cacheDirOption struct {
	d string
}

func (s *cacheDirOption) SetOption(a *Archiver) error {
	a.cacheDir = s.d
	return nil
}

// TempDir is where packaged and rewritten archives are written.
func TempDir(dir string) Option {
	return &tempDirOption{d: dir}
}

type tempDirOption struct {
	d string
}

func (s *tempDirOption) SetOption(a *Archiver) error {
	a.tempDir = s.d
	return nil
}

func Now(now func() time.Time) Option {
	return &nowOption{now: now}
}

type nowOption struct {
	now func() time.Time
}

func (s *nowOption) SetOption(a *Archiver) error {
	a.now = s.now
	return nil
}

// Progress enables an upload progress bar written to w.
func Progress(w io.Writer) Option {
	return &progressOption{w: w}
}

type progressOption struct {
	w io.Writer
}

func (s *progressOption) SetOption(a *Archiver) error {
	a.progress = s.w
	return nil
}
