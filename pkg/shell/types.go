package shell

import (
	"io"
)

type Command struct {
	Name           string
	Args           []string
	Stdout, Stderr io.Writer
	Stdin          io.Reader

	// Env is added on top of the environment of the current process
	Env map[string]string

	// Dir is the working directory of this command
	Dir string
}

func (c *Command) String() string {
	s := c.Name
	for _, a := range c.Args {
		s += " " + a
	}
	return s
}

type Exec func(*Command) Result

type Result struct {
	ExitStatus int
	Error      error
}
