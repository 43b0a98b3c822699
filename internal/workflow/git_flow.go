package workflow

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/corpeningc/rpdflow/internal/artifact"
	"github.com/corpeningc/rpdflow/internal/config"
	"github.com/corpeningc/rpdflow/internal/errors"
	"github.com/corpeningc/rpdflow/internal/git"
	"github.com/corpeningc/rpdflow/internal/log"
	"github.com/corpeningc/rpdflow/internal/vcs"
)

// GitBackend is the part of the distributed adapter the workflow uses.
type GitBackend interface {
	Checkout(ctx context.Context, branch string) error
	Pull(ctx context.Context, tolerateUntracked bool) error
	CreateBranch(ctx context.Context, name, base string) error
	DeleteBranch(ctx context.Context, name string) error
	Merge(ctx context.Context, branch string) vcs.Result
	AbortMerge(ctx context.Context) error
	IsConflicted(ctx context.Context, path string) (bool, error)
	CheckoutStages(ctx context.Context, path string) (git.Stages, error)
	AddFiles(ctx context.Context, files ...string) error
	CommitAll(ctx context.Context, message string) error
	Push(ctx context.Context, ref string) error
	Tag(ctx context.Context, name, message string) error
	BranchExists(name string) (bool, error)
	TagExists(name string) (bool, error)
	IsClean(ctx context.Context) (bool, error)
}

// Merger runs the three-way artifact merge.
type Merger interface {
	Merge(ctx context.Context, req artifact.Request) (artifact.Outcome, error)
}

// GitFlow is the Gitflow lifecycle over the distributed backend.
type GitFlow struct {
	cfg      config.Git
	stateDir string
	repo     GitBackend
	engine   Merger
}

func NewGitFlow(cfg *config.Config, repo GitBackend, engine Merger) *GitFlow {
	return &GitFlow{cfg: cfg.Git, stateDir: cfg.StateDir, repo: repo, engine: engine}
}

func (f *GitFlow) Run(ctx context.Context, action Action, opts Options) (Report, error) {
	if action.CentralizedOnly() {
		return Report{Action: action}, errors.Validationf("%s is only available on the svn backend", action)
	}
	if err := opts.Validate(action); err != nil {
		return Report{Action: action}, err
	}

	switch action {
	case StandaloneMerge:
		return standalone(ctx, f.engine, opts)
	case StartFeature, StartRelease, StartHotfix:
		return f.start(ctx, action, opts)
	case FinishFeature:
		return f.finishFeature(ctx, opts)
	case RefreshFeature:
		return f.refreshFeature(ctx, opts)
	case BugfixRelease:
		return f.bugfix(ctx, opts)
	case FinishRelease, FinishHotfix:
		return f.finishBoth(ctx, action, opts)
	}
	return Report{Action: action}, errors.Validationf("unsupported action %s", action)
}

// BranchName returns the full branch name for a label of kind.
func (f *GitFlow) BranchName(kind Kind, label string) string {
	switch kind {
	case KindFeature:
		return f.cfg.FeaturePrefix + label
	case KindRelease:
		return f.cfg.ReleasePrefix + label
	case KindHotfix:
		return f.cfg.HotfixPrefix + label
	}
	return label
}

func (f *GitFlow) isTrunk(branch string) bool {
	return branch == f.cfg.Develop || branch == f.cfg.Master
}

// checkout switches to branch and synchronizes it with the remote. It refuses
// to run over uncommitted changes, including an unfinished merge.
func (f *GitFlow) checkout(ctx context.Context, branch string) error {
	clean, err := f.repo.IsClean(ctx)
	if err != nil {
		return err
	}
	if !clean {
		return errors.Validationf("%s has uncommitted changes; commit, stash or finish the pending merge first", f.cfg.Repo)
	}

	if err := f.repo.Checkout(ctx, branch); err != nil {
		return err
	}
	return f.repo.Pull(ctx, !f.isTrunk(branch))
}

func (f *GitFlow) start(ctx context.Context, action Action, opts Options) (Report, error) {
	name := f.BranchName(action.Kind(), opts.Label)
	base := f.cfg.Develop
	if action == StartHotfix {
		base = f.cfg.Master
	}
	report := Report{Action: action, Branch: name, State: NotStarted}

	exists, err := f.repo.BranchExists(name)
	if err != nil {
		return report, err
	}
	if exists {
		return report, errors.Validationf("branch %s already exists", name)
	}

	if err := f.checkout(ctx, base); err != nil {
		return report, err
	}
	if err := f.repo.CreateBranch(ctx, name, base); err != nil {
		return report, err
	}

	report.State = Active
	log.From(ctx).Successf("Created %s from %s.", name, base)
	return report, nil
}

// merge merges branch into trunk, running the artifact merge protocol when
// the artifact is what conflicted. keepConflict leaves a failed merge in
// place for manual completion instead of aborting it.
func (f *GitFlow) merge(ctx context.Context, trunk, branch string, opts Options, keepConflict bool) (err error) {
	l := log.From(ctx).With(zap.String("trunk", trunk), zap.String("branch", branch))

	if err := f.checkout(ctx, trunk); err != nil {
		return err
	}

	l.Infof("Merging %s into %s...", branch, trunk)
	res := f.repo.Merge(ctx, branch)
	if res.OK() {
		return nil
	}

	defer func() {
		if err != nil && !keepConflict {
			if aerr := f.repo.AbortMerge(ctx); aerr != nil {
				l.Warn("could not abort the failed merge", zap.Error(aerr))
			}
		}
	}()

	conflicted, err := f.repo.IsConflicted(ctx, f.cfg.Artifact)
	if err != nil {
		return err
	}
	if !conflicted {
		return res.AsError("git", "merge", []string{branch})
	}

	l.Warn("Artifact conflict detected, starting three-way merge.")

	stages, err := f.repo.CheckoutStages(ctx, f.cfg.Artifact)
	if err != nil {
		return err
	}

	// stage 3 is the incoming branch, stage 2 the trunk receiving it
	_, err = f.engine.Merge(ctx, artifact.Request{
		Original:   stages.Base,
		Current:    stages.Theirs,
		Modified:   stages.Ours,
		Output:     filepath.Join(f.cfg.Repo, f.cfg.Artifact),
		Credential: opts.Credential,
		AutoOpen:   opts.AutoOpen,
		Tidy:       opts.Tidy,
	})
	if err != nil {
		return err
	}

	if err := f.repo.AddFiles(ctx, f.cfg.Artifact); err != nil {
		return err
	}
	message := "Merged " + branch + " into " + trunk
	if err := f.repo.CommitAll(ctx, message); err != nil {
		return errors.Wrap(err, "failed to commit the merged artifact; complete manually or discard the changes on the branch")
	}
	return nil
}

func (f *GitFlow) pushIf(ctx context.Context, opts Options, ref string) error {
	if !opts.Push {
		return nil
	}
	return f.repo.Push(ctx, ref)
}

func (f *GitFlow) finishFeature(ctx context.Context, opts Options) (Report, error) {
	name := f.BranchName(KindFeature, opts.Label)

	ledger, err := LoadLedger(f.stateDir, f.cfg.Repo, name)
	if err != nil {
		return Report{Action: FinishFeature, Branch: name, State: Active}, err
	}

	return finish(ctx, ledger, finishPlan{
		action:  FinishFeature,
		branch:  name,
		targets: []string{f.cfg.Develop},
		merge: func(ctx context.Context, target string, last bool) error {
			return f.merge(ctx, target, name, opts, last)
		},
		onMerged: func(ctx context.Context, target string) error {
			return f.pushIf(ctx, opts, target)
		},
		remove: func(ctx context.Context) error {
			return f.repo.DeleteBranch(ctx, name)
		},
	})
}

func (f *GitFlow) refreshFeature(ctx context.Context, opts Options) (Report, error) {
	name := f.BranchName(KindFeature, opts.Label)
	report := Report{Action: RefreshFeature, Branch: name, State: Active}

	if err := f.merge(ctx, name, f.cfg.Develop, opts, true); err != nil {
		return report, err
	}

	report.State = Refreshed
	log.From(ctx).Successf("Refreshed %s from %s.", name, f.cfg.Develop)
	return report, nil
}

// bugfix merges an active release into develop without finishing it.
func (f *GitFlow) bugfix(ctx context.Context, opts Options) (Report, error) {
	name := f.BranchName(KindRelease, opts.Label)
	report := Report{Action: BugfixRelease, Branch: name, State: Active}

	if err := f.merge(ctx, f.cfg.Develop, name, opts, true); err != nil {
		return report, err
	}
	if err := f.pushIf(ctx, opts, f.cfg.Develop); err != nil {
		return report, err
	}

	report.Merged = []string{f.cfg.Develop}
	log.From(ctx).Successf("Merged %s into %s.", name, f.cfg.Develop)
	return report, nil
}

// finishBoth merges a release or hotfix into master, tagging it, and into
// develop. Each target is attempted independently.
func (f *GitFlow) finishBoth(ctx context.Context, action Action, opts Options) (Report, error) {
	name := f.BranchName(action.Kind(), opts.Label)

	ledger, err := LoadLedger(f.stateDir, f.cfg.Repo, name)
	if err != nil {
		return Report{Action: action, Branch: name, State: Active}, err
	}

	tag := opts.TagName()

	return finish(ctx, ledger, finishPlan{
		action:  action,
		branch:  name,
		targets: []string{f.cfg.Master, f.cfg.Develop},
		merge: func(ctx context.Context, target string, last bool) error {
			return f.merge(ctx, target, name, opts, last)
		},
		onMerged: func(ctx context.Context, target string) error {
			if err := f.pushIf(ctx, opts, target); err != nil {
				return err
			}
			if target != f.cfg.Master || tag == "" {
				return nil
			}
			exists, err := f.repo.TagExists(tag)
			if err != nil {
				return err
			}
			if !exists {
				log.From(ctx).Infof("Tagging %s with %s...", target, tag)
				if err := f.repo.Tag(ctx, tag, name); err != nil {
					return err
				}
			}
			return f.pushIf(ctx, opts, tag)
		},
		remove: func(ctx context.Context) error {
			return f.repo.DeleteBranch(ctx, name)
		},
	})
}
