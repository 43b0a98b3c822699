package workflow

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpeningc/rpdflow/internal/artifact"
	"github.com/corpeningc/rpdflow/internal/config"
	"github.com/corpeningc/rpdflow/internal/errors"
	"github.com/corpeningc/rpdflow/internal/git"
	"github.com/corpeningc/rpdflow/internal/log"
	"github.com/corpeningc/rpdflow/internal/vcs"
)

func quiet() context.Context {
	return log.With(context.Background(), log.New().WithWriter(io.Discard))
}

// fakeGit records calls and fails merges into the branches listed in
// failMerge. Branches in conflicted report an artifact conflict. Refs in
// failPush are rejected by the remote.
type fakeGit struct {
	current    string
	existing   map[string]bool
	failMerge  map[string]bool
	conflicted map[string]bool
	failPush   map[string]bool
	tagged     map[string]bool
	failTag    error
	dirty      bool

	calls   []string
	merges  []string
	deleted []string
	tags    []string
	pushed  []string
	commits []string
	aborts  int
}

func newFakeGit() *fakeGit {
	return &fakeGit{
		existing:   map[string]bool{},
		failMerge:  map[string]bool{},
		conflicted: map[string]bool{},
		failPush:   map[string]bool{},
		tagged:     map[string]bool{},
	}
}

func (g *fakeGit) Checkout(_ context.Context, branch string) error {
	g.current = branch
	g.calls = append(g.calls, "checkout "+branch)
	return nil
}

func (g *fakeGit) Pull(_ context.Context, tolerate bool) error {
	g.calls = append(g.calls, fmt.Sprintf("pull tolerate=%v", tolerate))
	return nil
}

func (g *fakeGit) CreateBranch(_ context.Context, name, base string) error {
	g.calls = append(g.calls, "create "+name+" from "+base)
	return nil
}

func (g *fakeGit) DeleteBranch(_ context.Context, name string) error {
	g.deleted = append(g.deleted, name)
	return nil
}

func (g *fakeGit) Merge(_ context.Context, branch string) vcs.Result {
	g.merges = append(g.merges, branch+" -> "+g.current)
	if g.failMerge[g.current] || g.conflicted[g.current] {
		return vcs.Result{Output: "CONFLICT (content)", Err: errors.New("exit status 1")}
	}
	return vcs.Result{}
}

func (g *fakeGit) AbortMerge(context.Context) error {
	g.aborts++
	return nil
}

func (g *fakeGit) IsConflicted(context.Context, string) (bool, error) {
	return g.conflicted[g.current], nil
}

func (g *fakeGit) CheckoutStages(context.Context, string) (git.Stages, error) {
	return git.Stages{Base: "/repo/merge_base.rpd", Ours: "/repo/merge_ours.rpd", Theirs: "/repo/merge_theirs.rpd"}, nil
}

func (g *fakeGit) AddFiles(_ context.Context, files ...string) error {
	g.calls = append(g.calls, fmt.Sprintf("add %v", files))
	return nil
}

func (g *fakeGit) CommitAll(_ context.Context, message string) error {
	g.commits = append(g.commits, message)
	return nil
}

func (g *fakeGit) Push(_ context.Context, ref string) error {
	if g.failPush[ref] {
		return errors.NewBackendError("git", "push", []string{ref}, "rejected", errors.New("exit status 1"))
	}
	g.pushed = append(g.pushed, ref)
	return nil
}

func (g *fakeGit) Tag(_ context.Context, name, _ string) error {
	if g.failTag != nil {
		return g.failTag
	}
	g.tags = append(g.tags, name+"@"+g.current)
	g.tagged[name] = true
	return nil
}

func (g *fakeGit) TagExists(name string) (bool, error) {
	return g.tagged[name], nil
}

func (g *fakeGit) BranchExists(name string) (bool, error) {
	return g.existing[name], nil
}

func (g *fakeGit) IsClean(context.Context) (bool, error) {
	return !g.dirty, nil
}

// fakeEngine writes the output file and returns err when set.
type fakeEngine struct {
	requests []artifact.Request
	err      error
}

func (e *fakeEngine) Merge(_ context.Context, req artifact.Request) (artifact.Outcome, error) {
	e.requests = append(e.requests, req)
	if e.err != nil {
		return artifact.Failed(e.err), e.err
	}
	if dir := filepath.Dir(req.Output); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			if err := os.WriteFile(req.Output, []byte("merged"), 0o644); err != nil {
				return artifact.Failed(err), err
			}
		}
	}
	return artifact.Success(req.Output), nil
}

func gitConfig(t *testing.T) *config.Config {
	return &config.Config{
		Backend:  config.BackendGit,
		StateDir: t.TempDir(),
		Tool:     config.Tool{Extension: ".rpd"},
		Git: config.Git{
			Repo:          "/repo",
			Artifact:      "model/app.rpd",
			Remote:        "origin",
			Develop:       "develop",
			Master:        "master",
			FeaturePrefix: "feature/",
			ReleasePrefix: "release/",
			HotfixPrefix:  "hotfix/",
		},
	}
}

func TestGitStartFeature(t *testing.T) {
	repo := newFakeGit()
	flow := NewGitFlow(gitConfig(t), repo, &fakeEngine{})

	report, err := flow.Run(quiet(), StartFeature, Options{Label: "login"})
	require.NoError(t, err)

	assert.Equal(t, Active, report.State)
	assert.Equal(t, "feature/login", report.Branch)
	assert.Equal(t, []string{
		"checkout develop",
		"pull tolerate=false",
		"create feature/login from develop",
	}, repo.calls)
}

func TestGitStartHotfixFromMaster(t *testing.T) {
	repo := newFakeGit()
	flow := NewGitFlow(gitConfig(t), repo, &fakeEngine{})

	_, err := flow.Run(quiet(), StartHotfix, Options{Label: "1.0.1"})
	require.NoError(t, err)
	assert.Contains(t, repo.calls, "create hotfix/1.0.1 from master")
}

func TestGitStartExistingBranch(t *testing.T) {
	repo := newFakeGit()
	repo.existing["release/2.0"] = true
	flow := NewGitFlow(gitConfig(t), repo, &fakeEngine{})

	report, err := flow.Run(quiet(), StartRelease, Options{Label: "2.0"})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	assert.Equal(t, NotStarted, report.State)
	assert.Empty(t, repo.calls)
}

func TestGitRefusesDirtyWorkTree(t *testing.T) {
	repo := newFakeGit()
	repo.dirty = true
	flow := NewGitFlow(gitConfig(t), repo, &fakeEngine{})

	_, err := flow.Run(quiet(), FinishFeature, Options{Label: "login", Credential: "pw"})
	require.Error(t, err)

	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Empty(t, repo.calls)
	assert.Empty(t, repo.merges)
}

func TestGitRejectsCentralizedActions(t *testing.T) {
	flow := NewGitFlow(gitConfig(t), newFakeGit(), &fakeEngine{})

	for _, action := range []Action{StartReleaseHotfix, FinishReleaseHotfix, Reintegrate} {
		_, err := flow.Run(quiet(), action, Options{Label: "x", Release: "1", Credential: "pw"})
		require.Error(t, err, action)
		assert.Equal(t, errors.KindValidation, errors.KindOf(err), action)
	}
}

func TestGitFinishFeatureClean(t *testing.T) {
	repo := newFakeGit()
	engine := &fakeEngine{}
	flow := NewGitFlow(gitConfig(t), repo, engine)

	report, err := flow.Run(quiet(), FinishFeature, Options{Label: "login", Credential: "pw"})
	require.NoError(t, err)

	assert.Equal(t, Deleted, report.State)
	assert.Equal(t, []string{"feature/login -> develop"}, repo.merges)
	assert.Equal(t, []string{"feature/login"}, repo.deleted)
	assert.Empty(t, engine.requests, "clean merges never reach the merge engine")
}

func TestGitArtifactConflictRunsMerge(t *testing.T) {
	repo := newFakeGit()
	repo.conflicted["develop"] = true
	engine := &fakeEngine{}
	flow := NewGitFlow(gitConfig(t), repo, engine)

	_, err := flow.Run(quiet(), FinishFeature, Options{Label: "login", Credential: "pw", AutoOpen: true})
	require.NoError(t, err)

	require.Len(t, engine.requests, 1)
	assert.Equal(t, artifact.Request{
		Original:   "/repo/merge_base.rpd",
		Current:    "/repo/merge_theirs.rpd",
		Modified:   "/repo/merge_ours.rpd",
		Output:     "/repo/model/app.rpd",
		Credential: "pw",
		AutoOpen:   true,
	}, engine.requests[0])
	assert.Contains(t, repo.calls, "add [model/app.rpd]")
	assert.Equal(t, []string{"Merged feature/login into develop"}, repo.commits)
}

func TestGitOtherConflictIsBackendError(t *testing.T) {
	repo := newFakeGit()
	repo.failMerge["develop"] = true
	engine := &fakeEngine{}
	flow := NewGitFlow(gitConfig(t), repo, engine)

	report, err := flow.Run(quiet(), FinishFeature, Options{Label: "login", Credential: "pw"})
	require.Error(t, err)

	assert.Equal(t, errors.KindPartialFinish, errors.KindOf(err))
	assert.True(t, errors.Is(err, errors.ErrBackendCommandFailed))
	assert.Equal(t, Active, report.State)
	assert.Empty(t, engine.requests)
	assert.Empty(t, repo.deleted)
	assert.Zero(t, repo.aborts, "the last target keeps its conflict for manual completion")
}

func TestGitFinishReleasePartialThenRerun(t *testing.T) {
	cfg := gitConfig(t)
	repo := newFakeGit()
	repo.failMerge["develop"] = true
	flow := NewGitFlow(cfg, repo, &fakeEngine{})
	opts := Options{Label: "2.0", Credential: "pw"}

	report, err := flow.Run(quiet(), FinishRelease, opts)
	require.Error(t, err)

	var partial *errors.PartialFinishError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, []string{"master"}, partial.Merged)
	assert.Equal(t, []string{"develop"}, partial.Outstanding)
	assert.Equal(t, Active, report.State)
	assert.Equal(t, []string{"2.0@master"}, repo.tags)
	assert.Empty(t, repo.deleted)

	repo2 := newFakeGit()
	flow2 := NewGitFlow(cfg, repo2, &fakeEngine{})

	report, err = flow2.Run(quiet(), FinishRelease, opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"release/2.0 -> develop"}, repo2.merges, "only the outstanding target is re-attempted")
	assert.Empty(t, repo2.tags)
	assert.Equal(t, []string{"release/2.0"}, repo2.deleted)
	assert.Equal(t, Deleted, report.State)

	ledger, err := LoadLedger(cfg.StateDir, cfg.Git.Repo, "release/2.0")
	require.NoError(t, err)
	assert.Empty(t, ledger.Merged)
	assert.NoFileExists(t, ledger.Path())
}

func TestGitFinishHotfixTrunkFailureAborts(t *testing.T) {
	repo := newFakeGit()
	repo.failMerge["master"] = true
	flow := NewGitFlow(gitConfig(t), repo, &fakeEngine{})

	_, err := flow.Run(quiet(), FinishHotfix, Options{Label: "1.0.1", Credential: "pw"})
	require.Error(t, err)

	var partial *errors.PartialFinishError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, []string{"master"}, partial.Outstanding)
	assert.Equal(t, []string{"develop"}, partial.Merged)
	assert.Equal(t, 1, repo.aborts)
	assert.Equal(t, []string{"hotfix/1.0.1 -> master", "hotfix/1.0.1 -> develop"}, repo.merges)
}

func TestGitFinishPushAndTag(t *testing.T) {
	repo := newFakeGit()
	flow := NewGitFlow(gitConfig(t), repo, &fakeEngine{})

	_, err := flow.Run(quiet(), FinishRelease, Options{Label: "2.0", Tag: "v2.0", Push: true, Credential: "pw"})
	require.NoError(t, err)

	assert.Equal(t, []string{"v2.0@master"}, repo.tags)
	assert.Equal(t, []string{"master", "v2.0", "develop"}, repo.pushed)
}

func TestGitFinishTagFailureKeepsBranch(t *testing.T) {
	cfg := gitConfig(t)
	repo := newFakeGit()
	repo.failTag = errors.NewBackendError("git", "tag", []string{"v2.0"}, "", errors.New("exit status 128"))
	flow := NewGitFlow(cfg, repo, &fakeEngine{})
	opts := Options{Label: "2.0", Tag: "v2.0", Credential: "pw"}

	report, err := flow.Run(quiet(), FinishRelease, opts)
	require.Error(t, err)

	var partial *errors.PartialFinishError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, []string{"master"}, partial.Pending)
	assert.Empty(t, partial.Outstanding)
	assert.Equal(t, []string{"master", "develop"}, partial.Merged)
	assert.Equal(t, errors.KindPartialFinish, errors.KindOf(err))
	assert.True(t, errors.Is(err, errors.ErrBackendCommandFailed))
	assert.Equal(t, Active, report.State)
	assert.Empty(t, repo.deleted)

	repo.failTag = nil
	repo.merges = nil

	report, err = flow.Run(quiet(), FinishRelease, opts)
	require.NoError(t, err)
	assert.Empty(t, repo.merges, "merged targets are not merged again")
	assert.Equal(t, []string{"v2.0@master"}, repo.tags)
	assert.Equal(t, []string{"release/2.0"}, repo.deleted)
	assert.Equal(t, Deleted, report.State)
}

func TestGitFinishPushFailureRetriesWithoutRetagging(t *testing.T) {
	repo := newFakeGit()
	repo.failPush["v2.0"] = true
	flow := NewGitFlow(gitConfig(t), repo, &fakeEngine{})
	opts := Options{Label: "2.0", Tag: "v2.0", Push: true, Credential: "pw"}

	_, err := flow.Run(quiet(), FinishRelease, opts)
	require.Error(t, err)
	assert.Empty(t, repo.deleted)
	assert.Equal(t, []string{"master", "develop"}, repo.pushed)

	repo.failPush = map[string]bool{}
	repo.pushed = nil

	_, err = flow.Run(quiet(), FinishRelease, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2.0@master"}, repo.tags, "existing tag is not recreated")
	assert.Equal(t, []string{"master", "v2.0"}, repo.pushed)
	assert.Equal(t, []string{"release/2.0"}, repo.deleted)
}

func TestGitFinishNoTag(t *testing.T) {
	repo := newFakeGit()
	flow := NewGitFlow(gitConfig(t), repo, &fakeEngine{})

	_, err := flow.Run(quiet(), FinishHotfix, Options{Label: "1.0.1", NoTag: true, Credential: "pw"})
	require.NoError(t, err)
	assert.Empty(t, repo.tags)
	assert.Empty(t, repo.pushed)
}

func TestGitRefreshFeature(t *testing.T) {
	repo := newFakeGit()
	flow := NewGitFlow(gitConfig(t), repo, &fakeEngine{})

	report, err := flow.Run(quiet(), RefreshFeature, Options{Label: "login", Credential: "pw"})
	require.NoError(t, err)

	assert.Equal(t, Refreshed, report.State)
	assert.Equal(t, []string{"develop -> feature/login"}, repo.merges)
	assert.Equal(t, []string{"checkout feature/login", "pull tolerate=true"}, repo.calls)
	assert.Empty(t, repo.deleted)
}

func TestGitBugfixRelease(t *testing.T) {
	repo := newFakeGit()
	flow := NewGitFlow(gitConfig(t), repo, &fakeEngine{})

	report, err := flow.Run(quiet(), BugfixRelease, Options{Label: "2.0", Credential: "pw", Push: true})
	require.NoError(t, err)

	assert.Equal(t, Active, report.State)
	assert.Equal(t, []string{"release/2.0 -> develop"}, repo.merges)
	assert.Equal(t, []string{"develop"}, repo.pushed)
	assert.Empty(t, repo.deleted)
}

func TestGitEngineFailureStopsCommit(t *testing.T) {
	repo := newFakeGit()
	repo.conflicted["develop"] = true
	engine := &fakeEngine{err: errors.NewMergeError("compare", errors.ErrCompareFailed, "/logs/comparerpd.log")}
	flow := NewGitFlow(gitConfig(t), repo, engine)

	_, err := flow.Run(quiet(), BugfixRelease, Options{Label: "2.0", Credential: "pw"})
	require.Error(t, err)
	assert.Equal(t, errors.KindCompareFailed, errors.KindOf(err))
	assert.Empty(t, repo.commits)
}

func TestStandaloneMerge(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	flow := NewGitFlow(gitConfig(t), newFakeGit(), engine)

	opts := Options{
		Original:   filepath.Join(dir, "o.rpd"),
		Current:    filepath.Join(dir, "c.rpd"),
		Modified:   filepath.Join(dir, "m.rpd"),
		Output:     filepath.Join(dir, "out.rpd"),
		Credential: "pw",
		Tidy:       true,
	}
	report, err := flow.Run(quiet(), StandaloneMerge, opts)
	require.NoError(t, err)

	assert.Equal(t, opts.Output, report.Output)
	require.Len(t, engine.requests, 1)
	assert.True(t, engine.requests[0].Tidy)
	assert.FileExists(t, opts.Output)
}
