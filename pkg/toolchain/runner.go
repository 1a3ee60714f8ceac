package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Command is one tool invocation.
type Command struct {
	Dir  string
	Path string
	Args []string
	Env  []string // appended to the current environment
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Argv returns the command line as a slice.
func (c Command) Argv() []string {
	return append([]string{c.Path}, c.Args...)
}

// Runner runs external tools. A non-zero exit is reported through exitCode,
// not err; err is for tools that could not be run at all or were cancelled.
type Runner interface {
	Run(ctx context.Context, cmd Command) (output []byte, exitCode int, err error)
}

// ExecRunner runs tools as subprocesses.
type ExecRunner struct{}

// Run starts cmd and waits for it, capturing stdout and stderr together.
func (ExecRunner) Run(ctx context.Context, c Command) ([]byte, int, error) {
	path, err := exec.LookPath(c.Path)
	if err != nil {
		return nil, -1, fmt.Errorf("%w: %s", ErrToolNotFound, c.Path)
	}

	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err = cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out.Bytes(), -1, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out.Bytes(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return out.Bytes(), -1, err
	}
	return out.Bytes(), 0, nil
}
