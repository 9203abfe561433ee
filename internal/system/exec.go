package system

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner starts an external tool and waits for it. stdout may be nil.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdout io.Writer) error
}

// ExecError describes a failed external command together with the tail of
// its stderr. Most ffmpeg failures are only explained there.
type ExecError struct {
	Name   string
	Err    error
	Stderr string
}

func (e *ExecError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Name, e.Err, e.Stderr)
}

func (e *ExecError) Unwrap() error { return e.Err }

const stderrTail = 4096

// ExecRunner runs commands through os/exec. When Tee is set, stderr is also
// copied there in real time (verbose mode).
type ExecRunner struct {
	Tee io.Writer
}

func (r ExecRunner) Run(ctx context.Context, name string, args []string, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer
	if r.Tee != nil {
		cmd.Stderr = io.MultiWriter(&stderr, r.Tee)
	} else {
		cmd.Stderr = &stderr
	}
	if stdout != nil {
		cmd.Stdout = stdout
	}

	if err := cmd.Run(); err != nil {
		return &ExecError{Name: name, Err: err, Stderr: tail(stderr.String(), stderrTail)}
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
