package shell

import (
	"fmt"

	"github.com/go-logr/logr"
)

type Shell struct {
	Exec Exec
}

func New() *Shell {
	return &Shell{Exec: DefaultExec}
}

// Wait runs the command and wait until it returns
func (s *Shell) Wait(cmd *Command) Result {
	return s.Exec(cmd)
}

// Run runs the command, streaming its output lines to the logger,
// and fails when the command exits non-zero.
func (s *Shell) Run(log logr.Logger, cmd *Command) (*CaptureResult, error) {
	res, err := s.Capture(cmd, CaptureOpts{
		LogStdout: func(line string) {
			log.Info(line, "stream", "stdout")
		},
		LogStderr: func(line string) {
			log.Info(line, "stream", "stderr")
		},
	})
	if err != nil {
		return res, fmt.Errorf("running %q: %w", cmd.String(), err)
	}

	if res.ExitStatus != 0 {
		return res, fmt.Errorf("running %q: exit status %d", cmd.String(), res.ExitStatus)
	}

	return res, nil
}
