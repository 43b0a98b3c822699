package artifact

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/corpeningc/rpdflow/internal/config"
	"github.com/corpeningc/rpdflow/internal/errors"
	"github.com/corpeningc/rpdflow/internal/log"
	"github.com/corpeningc/rpdflow/internal/vcs"
)

// Toolkit runs the external compare, patch and editor tools. Compare and
// Patch write the tool output to logFile; their error only reports a tool
// that could not be run at all, never the tool's verdict.
type Toolkit interface {
	Compare(ctx context.Context, original, current, credential, patch, logFile string) error
	Patch(ctx context.Context, modified, original, patch, credential, output, logFile string) error
	// Open launches the editor on path without waiting for it to close.
	Open(ctx context.Context, path, credential string) error
}

// CommandToolkit runs comparerpd, patchrpd and admintool as configured.
type CommandToolkit struct {
	tool   config.Tool
	runner vcs.Runner

	env []string
}

func NewCommandToolkit(tool config.Tool, runner vcs.Runner) *CommandToolkit {
	return &CommandToolkit{tool: tool, runner: runner}
}

func (t *CommandToolkit) Compare(ctx context.Context, original, current, credential, patch, logFile string) error {
	return t.runLogged(ctx, logFile, t.tool.Command("comparerpd"),
		"-C", current, "-p", credential,
		"-G", original, "-W", credential,
		"-D", patch,
	)
}

func (t *CommandToolkit) Patch(ctx context.Context, modified, original, patch, credential, output, logFile string) error {
	// -A applies the patch using the input repositories instead of a subset patch.
	return t.runLogged(ctx, logFile, t.tool.Command("patchrpd"), "-A",
		"-C", modified, "-p", credential,
		"-G", original, "-Q", credential,
		"-I", patch, "-S", credential,
		"-O", output,
	)
}

// CommandFile is written next to the logs and read by the editor on start.
const CommandFile = "openRPD.txt"

func (t *CommandToolkit) Open(ctx context.Context, path, credential string) error {
	cmdFile := filepath.Join(t.tool.LogDir, CommandFile)
	if err := os.WriteFile(cmdFile, []byte(fmt.Sprintf("OpenOffline %s %s", path, credential)), 0o600); err != nil {
		return errors.Wrap(err, "writing editor command file")
	}

	env, err := t.environment(ctx)
	if err != nil {
		return err
	}

	return t.runner.Start(ctx, vcs.Command{
		Name: t.tool.Command("admintool"),
		Args: []string{"/Command", cmdFile},
		Env:  env,
	})
}

func (t *CommandToolkit) runLogged(ctx context.Context, logFile, name string, args ...string) error {
	env, err := t.environment(ctx)
	if err != nil {
		return err
	}

	res := t.runner.Run(ctx, vcs.Command{Name: name, Args: args, Env: env})

	if werr := os.WriteFile(logFile, []byte(res.Combined()), 0o644); werr != nil {
		return errors.Wrapf(werr, "writing %s", logFile)
	}

	if res.Err != nil {
		log.From(ctx).Debug("tool exited with error", zap.String("tool", filepath.Base(name)), zap.Error(res.Err))
		if errors.Is(res.Err, os.ErrNotExist) || errors.Is(res.Err, exec.ErrNotFound) {
			return errors.Wrapf(res.Err, "running %s", name)
		}
	}
	return nil
}

// environment returns the process environment for the tools. Script based
// releases inherit ours; older releases need the bi-init script sourced first.
func (t *CommandToolkit) environment(ctx context.Context) ([]string, error) {
	script := t.tool.InitScript()
	if script == "" {
		return nil, nil
	}
	if t.env != nil {
		return t.env, nil
	}

	var cmd vcs.Command
	if runtime.GOOS == "windows" {
		// the server install needs the BI Server application mode, or it opens a console
		app := "coreapplication"
		if !t.tool.ClientOnly {
			app += "_obis1"
		}
		cmd = vcs.Command{Name: "cmd", Args: []string{"/C", script, app, "rem", "&", "set"}}
	} else {
		cmd = vcs.Command{Name: "sh", Args: []string{"-c", ". " + script + "; env"}}
	}

	res := t.runner.Run(ctx, cmd)
	if !res.OK() {
		return nil, errors.NewConfigError("tool.home", t.tool.Home,
			fmt.Errorf("failed to set the tool environment from %s: %w", script, res.Err))
	}

	t.env = ParseEnvironment(res.Output)
	return t.env, nil
}

// ParseEnvironment parses KEY=VALUE lines as printed by env or set.
func ParseEnvironment(output string) []string {
	var env []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if k, _, ok := strings.Cut(line, "="); ok && k != "" {
			env = append(env, line)
		}
	}
	return env
}
