// Package vcs runs external commands (version control binaries and the
// artifact tools) and reports their results in one structured shape.
package vcs

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/corpeningc/rpdflow/internal/errors"
	"github.com/corpeningc/rpdflow/internal/log"
)

// Command describes one process invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env replaces the inherited environment when non-nil.
	Env []string
}

// Line renders the command for logs. Secrets passed as arguments are the
// caller's responsibility.
func (c Command) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is what every backend operation returns: the captured streams and
// the process error, if any.
type Result struct {
	Output    string
	ErrOutput string
	Err       error
}

// OK reports whether the command exited successfully.
func (r Result) OK() bool {
	return r.Err == nil
}

// Combined returns stdout followed by stderr, the way a terminal shows them.
func (r Result) Combined() string {
	if r.ErrOutput == "" {
		return r.Output
	}
	if r.Output == "" {
		return r.ErrOutput
	}
	return strings.TrimRight(r.Output, "\n") + "\n" + r.ErrOutput
}

// AsError converts a failed result into a BackendError. It returns nil for a
// successful result.
func (r Result) AsError(binary, operation string, args []string) error {
	if r.OK() {
		return nil
	}
	return errors.NewBackendError(binary, operation, args, r.Combined(), r.Err)
}

// Runner executes commands. Tests substitute a scripted implementation.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
	// Start launches cmd without waiting for it to exit.
	Start(ctx context.Context, cmd Command) error
}

// ExecRunner is the default Runner, delegating to os/exec.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (e *ExecRunner) Run(ctx context.Context, c Command) Result {
	cmd := build(ctx, c)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.From(ctx).Debug("running command", zap.String("cmd", c.Line()), zap.String("dir", c.Dir))

	err := cmd.Run()
	return Result{
		Output:    stdout.String(),
		ErrOutput: stderr.String(),
		Err:       err,
	}
}

func (e *ExecRunner) Start(ctx context.Context, c Command) error {
	// Detached processes outlive the action, so they do not inherit ctx.
	cmd := build(context.WithoutCancel(ctx), c)

	log.From(ctx).Debug("starting command", zap.String("cmd", c.Line()))

	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func build(ctx context.Context, c Command) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if c.Env != nil {
		cmd.Env = c.Env
	} else {
		cmd.Env = os.Environ()
	}
	return cmd
}
