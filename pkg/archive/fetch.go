package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-getter"
	"github.com/hashicorp/go-getter/helper/url"
	"github.com/twpayne/go-vfs"
)

// Getter downloads a single remote file to dst, a path on the archiver's filesystem.
type Getter interface {
	Get(ctx context.Context, src, dst string) error
}

type GoGetter struct {
	Logger logr.Logger

	// FS maps dst to the real path go-getter writes to
	FS vfs.FS
}

func (g *GoGetter) Get(ctx context.Context, src, dst string) error {
	raw, err := g.FS.RawPath(dst)
	if err != nil {
		return err
	}

	get := &getter.Client{
		Ctx:     ctx,
		Src:     src,
		Dst:     raw,
		Pwd:     filepath.Dir(raw),
		Mode:    getter.ClientModeFile,
		Options: []getter.ClientOption{},
	}

	g.Logger.V(1).Info("get", "src", src, "dst", raw)

	if err := get.Get(); err != nil {
		return fmt.Errorf("get: %v", err)
	}

	return nil
}

type InvalidURLError struct {
	err string
}

func (e InvalidURLError) Error() string {
	return e.err
}

// Source is a parsed go-getter URL like s3::https://s3.amazonaws.com/bucket/app.zip
type Source struct {
	Getter, Scheme, User, Host, Path, RawQuery string
}

func IsRemote(goGetterSrc string) bool {
	if _, err := ParseSource(goGetterSrc); err != nil {
		return false
	}
	return true
}

func ParseSource(goGetterSrc string) (*Source, error) {
	items := strings.SplitN(goGetterSrc, "::", 2)
	var forced string
	if len(items) == 2 {
		forced = items[0]
		goGetterSrc = items[1]
	}

	u, err := url.Parse(goGetterSrc)
	if err != nil {
		return nil, InvalidURLError{err: fmt.Sprintf("parse url: %v", err)}
	}

	if u.Scheme == "" || len(u.Scheme) == 1 {
		// A single letter scheme is a windows drive letter
		return nil, InvalidURLError{err: fmt.Sprintf("parse url: missing scheme - probably this is a local file path? %s", goGetterSrc)}
	}

	return &Source{
		Getter:   forced,
		Scheme:   u.Scheme,
		User:     u.User.String(),
		Host:     u.Host,
		Path:     u.Path,
		RawQuery: u.RawQuery,
	}, nil
}

func (s *Source) String() string {
	var src string

	if s.User == "" {
		src = fmt.Sprintf("%s://%s%s", s.Scheme, s.Host, s.Path)
	} else {
		src = fmt.Sprintf("%s://%s@%s%s", s.Scheme, s.User, s.Host, s.Path)
	}

	if s.RawQuery != "" {
		src = src + "?" + s.RawQuery
	}

	if s.Getter != "" {
		src = s.Getter + "::" + src
	}

	return src
}

// resolve returns a local path to the archive, downloading it first when it is a URL.
func (a *Archiver) resolve(ctx context.Context, urlOrPath string) (string, error) {
	src, err := ParseSource(urlOrPath)
	if err != nil {
		if _, ok := err.(InvalidURLError); !ok {
			return "", err
		}

		if _, err := a.fs.Stat(urlOrPath); err != nil {
			return "", fmt.Errorf("archive %s: %w", urlOrPath, err)
		}

		return urlOrPath, nil
	}

	replacer := strings.NewReplacer(":", "", "//", "_", "/", "_", ".", "_", "&", "_", "?", ".")
	cacheKey := replacer.Replace(fmt.Sprintf("%s://%s%s", src.Scheme, src.Host, filepath.Dir(src.Path)))

	dst := filepath.Join(a.cacheDir, cacheKey, filepath.Base(src.Path))

	if info, err := a.fs.Stat(dst); err == nil && !info.IsDir() {
		a.Logger.V(1).Info("using cached archive", "src", urlOrPath, "path", dst)
		return dst, nil
	}

	// go-getter silently fails when the destination directory doesn't exist.
	if err := vfs.MkdirAll(a.fs, filepath.Dir(dst), 0755); err != nil {
		return "", err
	}

	a.Logger.Info("downloading archive", "src", src.String(), "dst", dst)

	if err := a.getter.Get(ctx, src.String(), dst); err != nil {
		if err2 := a.fs.RemoveAll(dst); err2 != nil {
			return "", err2
		}
		return "", fmt.Errorf("downloading archive %s: %w", urlOrPath, err)
	}

	return dst, nil
}
