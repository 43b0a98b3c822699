package cmd

import (
	"context"
	"os"
	"path"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/term"

	"github.com/corpeningc/rpdflow/internal/artifact"
	"github.com/corpeningc/rpdflow/internal/config"
	"github.com/corpeningc/rpdflow/internal/git"
	"github.com/corpeningc/rpdflow/internal/resolve"
	"github.com/corpeningc/rpdflow/internal/svn"
	"github.com/corpeningc/rpdflow/internal/ui"
	"github.com/corpeningc/rpdflow/internal/vcs"
	"github.com/corpeningc/rpdflow/internal/workflow"
)

var (
	_ workflow.GitBackend = (*git.GitRepo)(nil)
	_ workflow.SvnBackend = (*svn.Client)(nil)
)

// environment is the object graph for one invocation.
type environment struct {
	cfg  *config.Config
	flow workflow.Flow

	repo   *git.GitRepo
	client *svn.Client
}

func newEnvironment(cfg *config.Config) *environment {
	runner := vcs.NewExecRunner()
	toolkit := artifact.NewCommandToolkit(cfg.Tool, runner)
	engine := artifact.NewEngine(cfg.Tool, toolkit, resolve.New(toolkit, operator(), cfg.Tool.Extension))

	env := &environment{cfg: cfg}
	if cfg.Backend == config.BackendSVN {
		env.client = svn.New(cfg.SVN.Bin, svn.WithRunner(runner))
		env.flow = workflow.NewSvnFlow(cfg, env.client, engine)
	} else {
		env.repo = git.New(cfg.Git.Repo,
			git.WithExe(cfg.Git.Exe),
			git.WithRemote(cfg.Git.Remote),
			git.WithRunner(runner),
		)
		env.flow = workflow.NewGitFlow(cfg, env.repo, engine)
	}
	return env
}

// operator picks how a manual merge waits for the operator.
func operator() resolve.Operator {
	switch {
	case interactive():
		return ui.NewPromptOperator()
	case !nonInteractive && term.IsTerminal(int(os.Stdin.Fd())):
		return resolve.NewStdinOperator(os.Stdin, os.Stderr)
	default:
		return resolve.NonInteractiveOperator{}
	}
}

func (e *environment) gitPrefix(kind workflow.Kind) string {
	return map[workflow.Kind]string{
		workflow.KindFeature: e.cfg.Git.FeaturePrefix,
		workflow.KindRelease: e.cfg.Git.ReleasePrefix,
		workflow.KindHotfix:  e.cfg.Git.HotfixPrefix,
	}[kind]
}

// currentLabel returns the label of the checked out git branch when it is a
// branch of kind, or "".
func (e *environment) currentLabel(kind workflow.Kind) string {
	if e.repo == nil {
		return ""
	}
	prefix := e.gitPrefix(kind)
	head, err := e.repo.HeadBranch()
	if err != nil || prefix == "" || !strings.HasPrefix(head, prefix) {
		return ""
	}
	return strings.TrimPrefix(head, prefix)
}

// pickBranch lists the existing branches of kind and lets the operator
// choose one, returning its label.
func (e *environment) pickBranch(ctx context.Context, kind workflow.Kind) (string, error) {
	title := "Select a " + strings.ToLower(kind.Title()) + " branch"

	if e.repo != nil {
		prefix := e.gitPrefix(kind)
		branches, err := e.repo.ListBranches(prefix)
		if err != nil {
			return "", err
		}
		return ui.SelectBranch(ctx, title, prefix, branches)
	}

	root := map[workflow.Kind]string{
		workflow.KindFeature: e.cfg.SVN.FeatureRoot,
		workflow.KindRelease: e.cfg.SVN.ReleaseRoot,
		workflow.KindHotfix:  e.cfg.SVN.HotfixRoot,
	}[kind]
	prefix := path.Base(root) + "-"

	entries, err := e.client.List(ctx, e.cfg.SVN.BaseURL+"/"+path.Dir(root))
	if err != nil {
		return "", err
	}
	branches := lo.Filter(entries, func(name string, _ int) bool {
		return strings.HasPrefix(name, prefix)
	})
	return ui.SelectBranch(ctx, title, prefix, branches)
}
