package shell

import (
	"bufio"
	"io"
	"strings"
)

type CaptureResult struct {
	ExitStatus int
	Stdout     string
	Stderr     string
}

type CaptureOpts struct {
	LogStdout func(string)
	LogStderr func(string)
}

func (s *Shell) Capture(cmd *Command, opts ...CaptureOpts) (*CaptureResult, error) {
	logStdout := func(_ string) {}
	logStderr := func(_ string) {}

	for _, o := range opts {
		if o.LogStdout != nil {
			logStdout = o.LogStdout
		}
		if o.LogStderr != nil {
			logStderr = o.LogStderr
		}
	}

	res, cmdReader, errReader := s.Pipe(cmd)
	if cmdReader == nil || errReader == nil {
		r := <-res
		return &CaptureResult{ExitStatus: r.ExitStatus}, r.Error
	}

	stdoutLines := make(chan string)
	stderrLines := make(chan string)

	go scanLines(cmdReader, stdoutLines)
	go scanLines(errReader, stderrLines)

	var stdout, stderr []string

	stdoutEnded := false
	stderrEnded := false

	// Coordinating stdout/stderr in this single place to not screw up message ordering
	for !stdoutEnded || !stderrEnded {
		select {
		case text, ok := <-stdoutLines:
			if !ok {
				stdoutEnded = true
				stdoutLines = nil
				continue
			}
			logStdout(text)
			stdout = append(stdout, text)
		case text, ok := <-stderrLines:
			if !ok {
				stderrEnded = true
				stderrLines = nil
				continue
			}
			logStderr(text)
			stderr = append(stderr, text)
		}
	}

	r := <-res

	return &CaptureResult{
		ExitStatus: r.ExitStatus,
		Stdout:     strings.Join(stdout, "\n"),
		Stderr:     strings.Join(stderr, "\n"),
	}, r.Error
}

func scanLines(r io.ReadCloser, lines chan<- string) {
	defer close(lines)
	defer r.Close()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}
