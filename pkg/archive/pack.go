package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/google/uuid"
	"github.com/twpayne/go-vfs"
	"github.com/variantdev/ebs-deploy/pkg/config"
)

var ignoredDirs = map[string]struct{}{
	".git": {},
	".svn": {},
	".hg":  {},
}

type filter struct {
	includes []*regexp.Regexp
	excludes []*regexp.Regexp
}

func newFilter(includes, excludes []string) (*filter, error) {
	f := &filter{}

	for _, p := range includes {
		re, err := compileAnchored(p)
		if err != nil {
			return nil, fmt.Errorf("parsing include pattern %q: %w", p, err)
		}
		f.includes = append(f.includes, re)
	}

	for _, p := range excludes {
		re, err := compileAnchored(p)
		if err != nil {
			return nil, fmt.Errorf("parsing exclude pattern %q: %w", p, err)
		}
		f.excludes = append(f.excludes, re)
	}

	return f, nil
}

// compileAnchored matches only at the start of the path, not the whole path.
func compileAnchored(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("^(?:" + pattern + ")")
}

// Match reports whether the slash separated relative path belongs in the archive.
func (f *filter) Match(path string) bool {
	for _, re := range f.excludes {
		if re.MatchString(path) {
			return false
		}
	}

	if len(f.includes) == 0 {
		return true
	}

	for _, re := range f.includes {
		if re.MatchString(path) {
			return true
		}
	}

	return false
}

// pack zips the directory into <tempdir>/<uuid>.zip.
func (a *Archiver) pack(dir string, spec config.ArchiveConfig) (string, error) {
	f, err := newFilter(spec.Includes, spec.Excludes)
	if err != nil {
		return "", err
	}

	extra := map[string][]byte{}
	for _, file := range spec.Files {
		extra[filepath.ToSlash(file.Path)] = file.Content
	}

	var files []string

	walkErr := vfs.Walk(a.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if _, ignored := ignoredDirs[info.Name()]; ignored && path != dir {
				return filepath.SkipDir
			}
			return nil
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if _, overridden := extra[rel]; overridden {
			return nil
		}

		if f.Match(rel) {
			files = append(files, rel)
		}

		return nil
	})
	if walkErr != nil {
		return "", fmt.Errorf("walking %s: %w", dir, walkErr)
	}

	if err := vfs.MkdirAll(a.fs, a.tempDir, 0755); err != nil {
		return "", err
	}

	dst := filepath.Join(a.tempDir, uuid.New().String()+".zip")

	a.Logger.Info("packaging directory", "dir", dir, "files", len(files)+len(extra), "archive", dst)

	out, err := a.fs.Create(dst)
	if err != nil {
		return "", fmt.Errorf("creating archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	for _, rel := range files {
		if err := a.addFile(zw, filepath.Join(dir, filepath.FromSlash(rel)), rel); err != nil {
			return "", err
		}
	}

	if err := addExtraFiles(zw, extra); err != nil {
		return "", err
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("writing archive %s: %w", dst, err)
	}

	return dst, nil
}

func (a *Archiver) addFile(zw *zip.Writer, path, name string) error {
	in, err := a.fs.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	h, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	h.Name = name
	h.Method = zip.Deflate

	w, err := zw.CreateHeader(h)
	if err != nil {
		return fmt.Errorf("adding %s to archive: %w", name, err)
	}

	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("adding %s to archive: %w", name, err)
	}

	return nil
}

func addExtraFiles(zw *zip.Writer, extra map[string][]byte) error {
	names := make([]string, 0, len(extra))
	for n := range extra {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		w, err := zw.Create(n)
		if err != nil {
			return fmt.Errorf("adding %s to archive: %w", n, err)
		}

		if _, err := w.Write(extra[n]); err != nil {
			return fmt.Errorf("adding %s to archive: %w", n, err)
		}
	}

	return nil
}
