package workflow

import (
	"context"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/corpeningc/rpdflow/internal/config"
	"github.com/corpeningc/rpdflow/internal/errors"
	"github.com/corpeningc/rpdflow/internal/log"
	"github.com/corpeningc/rpdflow/internal/reintegrate"
)

// SvnBackend is the part of the centralized adapter the workflow uses.
type SvnBackend interface {
	Checkout(ctx context.Context, url, wc string) error
	Exists(ctx context.Context, url string) (bool, error)
	Copy(ctx context.Context, src, dst, message string) (int, error)
	Merge(ctx context.Context, src, wc string, reintegrate bool) (string, error)
	Commit(ctx context.Context, wc, message string) (int, error)
	Resolve(ctx context.Context, path string) error
	Delete(ctx context.Context, url, message string) error
}

// SvnFlow is the branch lifecycle over the centralized backend. Branches are
// URLs named <root>-<label> below the repository base URL.
type SvnFlow struct {
	cfg       config.SVN
	extension string
	stateDir  string
	client    SvnBackend
	engine    Merger

	// workDir creates the temporary working copy directory.
	workDir func() (string, error)
}

func NewSvnFlow(cfg *config.Config, client SvnBackend, engine Merger) *SvnFlow {
	return &SvnFlow{
		cfg:       cfg.SVN,
		extension: cfg.Tool.Extension,
		stateDir:  cfg.StateDir,
		client:    client,
		engine:    engine,
		workDir: func() (string, error) {
			return os.MkdirTemp("", "rpdflow-wc-")
		},
	}
}

func (f *SvnFlow) Run(ctx context.Context, action Action, opts Options) (Report, error) {
	if action.DistributedOnly() {
		return Report{Action: action}, errors.Validationf("%s is only available on the git backend", action)
	}
	if err := opts.Validate(action); err != nil {
		return Report{Action: action}, err
	}

	switch action {
	case StandaloneMerge:
		return standalone(ctx, f.engine, opts)
	case StartFeature, StartRelease, StartHotfix, StartReleaseHotfix:
		return f.start(ctx, action, opts)
	case RefreshFeature:
		return f.refresh(ctx, opts)
	case FinishFeature, FinishRelease, FinishHotfix, FinishReleaseHotfix:
		return f.finish(ctx, action, opts)
	case Reintegrate:
		return f.reintegrateURLs(ctx, opts)
	}
	return Report{Action: action}, errors.Validationf("unsupported action %s", action)
}

func (f *SvnFlow) url(path string) string {
	return f.cfg.BaseURL + "/" + path
}

// BranchURL returns the URL of the branch for opts of kind.
func (f *SvnFlow) BranchURL(kind Kind, opts Options) string {
	switch kind {
	case KindFeature:
		return f.url(f.cfg.FeatureRoot + "-" + opts.Label)
	case KindRelease:
		return f.url(f.cfg.ReleaseRoot + "-" + opts.Label)
	case KindHotfix:
		return f.url(f.cfg.HotfixRoot + "-" + opts.Label)
	case KindReleaseHotfix:
		return f.url(f.cfg.ReleaseHotfixRoot + "-" + opts.Release + "-" + opts.Label)
	}
	return ""
}

func (f *SvnFlow) releaseURL(release string) string {
	return f.url(f.cfg.ReleaseRoot + "-" + release)
}

// base returns the URL a branch of kind is created from.
func (f *SvnFlow) base(kind Kind, opts Options) string {
	switch kind {
	case KindHotfix:
		return f.url(f.cfg.Trunk)
	case KindReleaseHotfix:
		return f.releaseURL(opts.Release)
	}
	return f.url(f.cfg.Develop)
}

// targets returns the URLs a finishing branch of kind is merged into, and
// whether the second depends on the first.
func (f *SvnFlow) targets(kind Kind, opts Options) ([]string, bool) {
	switch kind {
	case KindFeature:
		return []string{f.url(f.cfg.Develop)}, false
	case KindReleaseHotfix:
		return []string{f.releaseURL(opts.Release), f.url(f.cfg.Develop)}, true
	}
	return []string{f.url(f.cfg.Trunk), f.url(f.cfg.Develop)}, false
}

func (f *SvnFlow) start(ctx context.Context, action Action, opts Options) (Report, error) {
	kind := action.Kind()
	branch := f.BranchURL(kind, opts)
	base := f.base(kind, opts)
	report := Report{Action: action, Branch: branch, State: NotStarted}

	if kind == KindReleaseHotfix {
		exists, err := f.client.Exists(ctx, base)
		if err != nil {
			return report, err
		}
		if !exists {
			return report, errors.Validationf("release %s does not exist at %s", opts.Release, base)
		}
	}

	log.From(ctx).Infof("Creating %s from %s...", branch, base)
	rev, err := f.client.Copy(ctx, base, branch, opts.Message(action))
	if err != nil {
		return report, err
	}

	report.State = Active
	report.Output = "r" + strconv.Itoa(rev)
	log.From(ctx).Successf("Created %s at revision %d.", branch, rev)
	return report, nil
}

func (f *SvnFlow) refresh(ctx context.Context, opts Options) (Report, error) {
	branch := f.BranchURL(KindFeature, opts)
	report := Report{Action: RefreshFeature, Branch: branch, State: Active}

	rev, err := f.merge(ctx, f.url(f.cfg.Develop), branch, opts.Message(RefreshFeature), opts, false)
	if err != nil {
		return report, err
	}

	report.State = Refreshed
	report.Output = revision(rev)
	return report, nil
}

func (f *SvnFlow) finish(ctx context.Context, action Action, opts Options) (Report, error) {
	kind := action.Kind()
	branch := f.BranchURL(kind, opts)
	targets, sequential := f.targets(kind, opts)
	message := opts.Message(action)

	ledger, err := LoadLedger(f.stateDir, f.cfg.BaseURL, branch)
	if err != nil {
		return Report{Action: action, Branch: branch, State: Active}, err
	}

	return finish(ctx, ledger, finishPlan{
		action:     action,
		branch:     branch,
		targets:    targets,
		sequential: sequential,
		merge: func(ctx context.Context, target string, _ bool) error {
			_, err := f.merge(ctx, branch, target, message, opts, true)
			return err
		},
		remove: func(ctx context.Context) error {
			log.From(ctx).Infof("Deleting %s...", branch)
			return f.client.Delete(ctx, branch, message)
		},
	})
}

// reintegrateURLs folds an arbitrary source URL back into a target URL.
func (f *SvnFlow) reintegrateURLs(ctx context.Context, opts Options) (Report, error) {
	report := Report{Action: Reintegrate, Branch: opts.SourceURL, State: Active}

	rev, err := f.merge(ctx, opts.SourceURL, opts.TargetURL, opts.CommitMessage, opts, true)
	if err != nil {
		return report, err
	}

	report.State = MergedToTargets
	report.Merged = []string{opts.TargetURL}
	report.Output = revision(rev)
	return report, nil
}

// merge checks target out into a temporary working copy, merges source into
// it, resolves artifact text conflicts and commits. The working copy is kept
// for inspection when opts.Tidy is off or a conflict it cannot resolve
// stopped the merge.
func (f *SvnFlow) merge(ctx context.Context, source, target, message string, opts Options, reintegrating bool) (rev int, err error) {
	l := log.From(ctx).With(zap.String("source", source), zap.String("target", target))

	wc, err := f.workDir()
	if err != nil {
		return 0, errors.Wrap(err, "creating working copy directory")
	}
	defer func() {
		if !opts.Tidy || errors.Is(err, errors.ErrTreeConflict) || errors.Is(err, errors.ErrConflictCandidatesUnresolved) {
			l.Infof("Working copy left at %s", wc)
			return
		}
		if rerr := os.RemoveAll(wc); rerr != nil {
			l.Warn("could not remove working copy", zap.String("path", wc), zap.Error(rerr))
		}
	}()

	l.Infof("Checking out %s...", target)
	if err := f.client.Checkout(ctx, target, wc); err != nil {
		return 0, err
	}

	l.Infof("Merging %s into %s...", source, target)
	output, err := f.client.Merge(ctx, source, wc, reintegrating)
	if err != nil {
		return 0, err
	}

	report := reintegrate.Parse(output, f.extension)
	applier := reintegrate.NewApplier(f.engine, f.client, reintegrate.Options{
		Extension:  f.extension,
		Credential: opts.Credential,
		AutoOpen:   opts.AutoOpen,
		Reverse:    opts.Reverse,
	})
	if err := applier.Apply(ctx, wc, report); err != nil {
		return 0, err
	}

	rev, err = f.client.Commit(ctx, wc, message)
	if err != nil {
		return 0, err
	}
	return rev, nil
}

func revision(rev int) string {
	if rev == 0 {
		return "nothing to commit"
	}
	return "r" + strconv.Itoa(rev)
}
