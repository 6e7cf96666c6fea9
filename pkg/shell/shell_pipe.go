package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Pipe runs the command with its stdout and stderr connected to the returned readers.
// Both readers reach EOF once the command exits.
func (s *Shell) Pipe(cmd *Command) (<-chan Result, io.ReadCloser, io.ReadCloser) {
	res := make(chan Result, 1)

	stdout, stdoutW, err := pipe(cmd.Stdout)
	if err != nil {
		res <- Result{ExitStatus: 1, Error: fmt.Errorf("unable to pipe stdout: %w", err)}
		return res, nil, nil
	}

	stderr, stderrW, err := pipe(cmd.Stderr)
	if err != nil {
		stdout.Close()
		stdoutW.Close()
		res <- Result{ExitStatus: 1, Error: fmt.Errorf("unable to pipe stderr: %w", err)}
		return res, nil, nil
	}

	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	go func() {
		r := s.Wait(cmd)
		stdoutW.Close()
		stderrW.Close()
		res <- r
	}()

	return res, stdout, stderr
}

func pipe(existing io.Writer) (*os.File, *os.File, error) {
	if existing != nil {
		return nil, nil, errors.New("exec: output already set")
	}
	return os.Pipe()
}
