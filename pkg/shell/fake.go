package shell

import (
	"fmt"
	"io"
	"strings"
)

type FakeInput struct {
	Name string
	Args string
	Dir  string
}

type FakeOutput struct {
	Stdout     string
	Stderr     string
	ExitStatus int

	// Run is called after the output is written, e.g. to create the files the command would produce
	Run func() error
}

func NewFakeInput(name string, args []string, dir string) FakeInput {
	return FakeInput{
		Name: name,
		Args: strings.Join(args, ","),
		Dir:  dir,
	}
}

// NewFake returns an Exec that answers only the expected invocations.
func NewFake(expectations map[FakeInput]FakeOutput) Exec {
	return func(cmd *Command) Result {
		input := NewFakeInput(cmd.Name, cmd.Args, cmd.Dir)
		output, ok := expectations[input]
		if !ok {
			err := fmt.Errorf("unexpected input: %v", input)
			return Result{ExitStatus: 1, Error: err}
		}

		if err := write(cmd.Stdout, output.Stdout); err != nil {
			return Result{ExitStatus: 1, Error: err}
		}

		if err := write(cmd.Stderr, output.Stderr); err != nil {
			return Result{ExitStatus: 1, Error: err}
		}

		if output.Run != nil {
			if err := output.Run(); err != nil {
				return Result{ExitStatus: 1, Error: err}
			}
		}

		return Result{ExitStatus: output.ExitStatus}
	}
}

func write(w io.Writer, s string) error {
	if w == nil || s == "" {
		return nil
	}

	n, err := io.WriteString(w, s)
	if err != nil {
		return err
	}

	if n != len(s) {
		return fmt.Errorf("insufficient write: wrote only %d of %d", n, len(s))
	}

	return nil
}
