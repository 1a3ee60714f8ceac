package toolchain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrToolNotFound is wrapped by an InvocationError when the tool to run does
// not exist.
var ErrToolNotFound = errors.New("tool not found")

// Stage names a build step.
type Stage string

const (
	StageWrite   Stage = "write"
	StageCompile Stage = "compile"
	StageLink    Stage = "link"
	StagePlugin  Stage = "plugin"
)

// InvocationError reports a tool that could not be started or exited with a
// non-zero status.
type InvocationError struct {
	Unit        string
	Stage       Stage
	Command     []string
	ExitCode    int
	Output      string
	Diagnostics []string
	Err         error
}

func (e *InvocationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s failed", e.Unit, e.Stage)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	} else {
		fmt.Fprintf(&b, " with exit status %d", e.ExitCode)
	}
	if len(e.Diagnostics) > 0 {
		fmt.Fprintf(&b, "\n%s", strings.Join(e.Diagnostics, "\n"))
	}
	return b.String()
}

func (e *InvocationError) Unwrap() error { return e.Err }

// TimeoutError reports a tool that did not finish within the configured
// timeout.
type TimeoutError struct {
	Unit    string
	Stage   Stage
	Command []string
	Timeout time.Duration
	Err     error // the context error, context.DeadlineExceeded
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %s timed out after %s", e.Unit, e.Stage, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
