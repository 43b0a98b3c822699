// Package vcstest provides a scripted vcs.Runner for tests.
package vcstest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/corpeningc/rpdflow/internal/vcs"
)

// ErrExit stands in for a non-zero exit status.
var ErrExit = errors.New("exit status 1")

// Handler produces the result for a matched command.
type Handler func(cmd vcs.Command) vcs.Result

type rule struct {
	prefix  string
	handler Handler
}

// Runner records every command and answers from rules matched by prefix of
// the command line ("svn merge", "git checkout-index"). Unmatched commands
// succeed with empty output.
type Runner struct {
	mu       sync.Mutex
	rules    []rule
	Commands []vcs.Command
	Started  []vcs.Command
	StartErr error
}

func New() *Runner {
	return &Runner{}
}

// On registers a handler for commands whose line starts with prefix. Later
// registrations win over earlier ones.
func (r *Runner) On(prefix string, h Handler) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append([]rule{{prefix: prefix, handler: h}}, r.rules...)
	return r
}

// Reply registers a fixed result for prefix.
func (r *Runner) Reply(prefix string, res vcs.Result) *Runner {
	return r.On(prefix, func(vcs.Command) vcs.Result { return res })
}

// Fail registers a failing result with the given output for prefix.
func (r *Runner) Fail(prefix, output string) *Runner {
	return r.Reply(prefix, vcs.Result{Output: output, Err: ErrExit})
}

func (r *Runner) Run(_ context.Context, cmd vcs.Command) vcs.Result {
	r.mu.Lock()
	r.Commands = append(r.Commands, cmd)
	rules := r.rules
	r.mu.Unlock()

	line := cmd.Line()
	for _, ru := range rules {
		if strings.HasPrefix(line, ru.prefix) {
			return ru.handler(cmd)
		}
	}
	return vcs.Result{}
}

func (r *Runner) Start(_ context.Context, cmd vcs.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Started = append(r.Started, cmd)
	return r.StartErr
}

// Lines returns the recorded command lines in order.
func (r *Runner) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines := make([]string, 0, len(r.Commands))
	for _, c := range r.Commands {
		lines = append(lines, c.Line())
	}
	return lines
}

// Count returns how many recorded commands start with prefix.
func (r *Runner) Count(prefix string) int {
	n := 0
	for _, l := range r.Lines() {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}
