// Package git is the distributed backend: a thin adapter over the git binary
// for anything that mutates the repository, and go-git for read-only ref
// queries.
package git

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/corpeningc/rpdflow/internal/log"
	"github.com/corpeningc/rpdflow/internal/vcs"
)

type GitRepo struct {
	WorkDir string
	Exe     string
	Remote  string

	runner vcs.Runner
}

type Option func(*GitRepo)

func WithExe(exe string) Option {
	return func(r *GitRepo) { r.Exe = exe }
}

func WithRemote(remote string) Option {
	return func(r *GitRepo) { r.Remote = remote }
}

func WithRunner(runner vcs.Runner) Option {
	return func(r *GitRepo) { r.runner = runner }
}

func New(workDir string, opts ...Option) *GitRepo {
	repo := &GitRepo{
		WorkDir: workDir,
		Exe:     "git",
		Remote:  "origin",
		runner:  vcs.NewExecRunner(),
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// run executes git against the work tree, equivalent to `git -C <workdir> ...`.
func (repo *GitRepo) run(ctx context.Context, args ...string) vcs.Result {
	return repo.runner.Run(ctx, vcs.Command{
		Name: repo.Exe,
		Args: append([]string{"-C", repo.WorkDir}, args...),
	})
}

// exec runs git and converts a failure into a BackendError for operation.
func (repo *GitRepo) exec(ctx context.Context, operation string, args ...string) error {
	res := repo.run(ctx, args...)
	if err := res.AsError("git", operation, args); err != nil {
		return err
	}
	if out := res.Combined(); out != "" {
		log.From(ctx).Debug(out, zap.String("git", operation))
	}
	return nil
}

func (repo *GitRepo) Checkout(ctx context.Context, branch string) error {
	log.From(ctx).Infof("Checking out %s...", branch)
	return repo.exec(ctx, "checkout", "checkout", branch)
}

func (repo *GitRepo) Fetch(ctx context.Context) error {
	return repo.exec(ctx, "fetch", "fetch", repo.Remote)
}

var noTrackingInfo = regexp.MustCompile(`no tracking information`)

// NoTrackingInfo reports whether pull output says the branch has no upstream.
func NoTrackingInfo(output string) bool {
	return noTrackingInfo.MatchString(output)
}

// Pull fetches and pulls the checked out branch from its upstream. When
// tolerateUntracked is set, a branch without an upstream is not an error.
func (repo *GitRepo) Pull(ctx context.Context, tolerateUntracked bool) error {
	if err := repo.Fetch(ctx); err != nil {
		return err
	}

	res := repo.run(ctx, "pull")
	if res.OK() {
		return nil
	}
	if tolerateUntracked && NoTrackingInfo(res.Combined()) {
		log.From(ctx).Debug("branch has no upstream, continuing with local state")
		return nil
	}
	return res.AsError("git", "pull", nil)
}

// CommitAll commits every tracked change. A commit with nothing to commit is
// reported as a success.
func (repo *GitRepo) CommitAll(ctx context.Context, message string) error {
	res := repo.run(ctx, "commit", "-a", "-m", message)
	if res.OK() || NothingToCommit(res.Combined()) {
		return nil
	}
	return res.AsError("git", "commit", []string{"-a", "-m", message})
}

var nothingToCommit = regexp.MustCompile(`nothing (added )?to commit`)

func NothingToCommit(output string) bool {
	return nothingToCommit.MatchString(output)
}

func (repo *GitRepo) Push(ctx context.Context, ref string) error {
	log.From(ctx).Infof("Pushing %s to %s...", ref, repo.Remote)
	return repo.exec(ctx, "push", "push", repo.Remote, ref)
}

// Tag creates an annotated tag on the checked out commit.
func (repo *GitRepo) Tag(ctx context.Context, name, message string) error {
	if message == "" {
		message = name
	}
	return repo.exec(ctx, "tag", "tag", "-a", name, "-m", message)
}
