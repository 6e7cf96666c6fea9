package archive

import (
	"archive/zip"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/twpayne/go-vfs"
	"github.com/variantdev/ebs-deploy/pkg/config"
	"github.com/variantdev/ebs-deploy/pkg/shell"
)

// generate runs the configured command in dir and returns the archive it produced.
func (a *Archiver) generate(dir string, spec config.ArchiveConfig) (string, error) {
	g := spec.Generate

	if g.OutputFile == "" {
		return "", fmt.Errorf("archive.generate.output_file is required with archive.generate.cmd")
	}

	rawDir, err := a.fs.RawPath(dir)
	if err != nil {
		return "", err
	}

	cmd := &shell.Command{Dir: rawDir}
	if g.UseShell {
		cmd.Name = "sh"
		cmd.Args = []string{"-c", g.Cmd}
	} else {
		fields := strings.Fields(g.Cmd)
		if len(fields) == 0 {
			return "", fmt.Errorf("archive.generate.cmd is empty")
		}
		cmd.Name = fields[0]
		cmd.Args = fields[1:]
	}

	a.Logger.Info("generating archive", "cmd", g.Cmd, "dir", dir)

	if _, err := a.sh.Run(a.Logger.WithName("generate"), cmd); err != nil {
		return "", fmt.Errorf("generating archive: %w", err)
	}

	output := g.OutputFile
	if !filepath.IsAbs(output) {
		output = filepath.Join(dir, output)
	}

	if _, err := a.fs.Stat(output); err != nil {
		return "", fmt.Errorf("generated archive %s: %w", output, err)
	}

	if len(g.ExcludeFiles) == 0 && len(spec.Files) == 0 {
		return output, nil
	}

	return a.rewrite(output, g.ExcludeFiles, spec.Files)
}

// rewrite copies the zip at src without the excluded entries and with the extra files,
// keeping the file name so that the uploaded key stays the same.
func (a *Archiver) rewrite(src string, excludes []string, files []config.ArchiveFile) (string, error) {
	f, err := newFilter(nil, excludes)
	if err != nil {
		return "", err
	}

	extra := map[string][]byte{}
	for _, file := range files {
		extra[filepath.ToSlash(file.Path)] = file.Content
	}

	in, err := a.fs.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", err
	}

	zr, err := zip.NewReader(in, info.Size())
	if err != nil {
		return "", fmt.Errorf("reading generated archive %s: %w", src, err)
	}

	dstDir := filepath.Join(a.tempDir, uuid.New().String())
	if err := vfs.MkdirAll(a.fs, dstDir, 0755); err != nil {
		return "", err
	}

	dst := filepath.Join(dstDir, filepath.Base(src))

	out, err := a.fs.Create(dst)
	if err != nil {
		return "", fmt.Errorf("creating archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	for _, entry := range zr.File {
		if _, overridden := extra[entry.Name]; overridden || !f.Match(entry.Name) {
			a.Logger.V(1).Info("dropping archive entry", "name", entry.Name)
			continue
		}

		if err := zw.Copy(entry); err != nil {
			return "", fmt.Errorf("copying %s: %w", entry.Name, err)
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
