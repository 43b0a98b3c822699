package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpeningc/rpdflow/internal/config"
	"github.com/corpeningc/rpdflow/internal/errors"
)

const repoURL = "https://svn.example.com/repo"

// fakeSvn simulates the centralized backend. A merge from a source listed in
// textConflict leaves an artifact text conflict in the working copy, one in
// otherConflict a text conflict on a file that is not an artifact.
type fakeSvn struct {
	existing      map[string]bool
	textConflict  map[string]bool
	treeConflict  map[string]bool
	otherConflict map[string]bool

	copies    []string
	merges    []string
	commits   []string
	resolved  []string
	deleted   []string
	checkouts []string
	wcs       []string
}

func newFakeSvn() *fakeSvn {
	return &fakeSvn{
		existing:      map[string]bool{},
		textConflict:  map[string]bool{},
		treeConflict:  map[string]bool{},
		otherConflict: map[string]bool{},
	}
}

func (s *fakeSvn) Checkout(_ context.Context, url, wc string) error {
	s.checkouts = append(s.checkouts, url)
	s.wcs = append(s.wcs, wc)
	return os.MkdirAll(wc, 0o755)
}

func (s *fakeSvn) Exists(_ context.Context, url string) (bool, error) {
	return s.existing[url], nil
}

func (s *fakeSvn) Copy(_ context.Context, src, dst, message string) (int, error) {
	if s.existing[dst] {
		return 0, errors.Validationf("destination %s already exists in the repository", dst)
	}
	s.copies = append(s.copies, src+" -> "+dst+": "+message)
	return 42, nil
}

func (s *fakeSvn) Merge(_ context.Context, src, wc string, reintegrate bool) (string, error) {
	kind := "sync"
	if reintegrate {
		kind = "reintegrate"
	}
	s.merges = append(s.merges, kind+" "+src+" -> "+s.checkouts[len(s.checkouts)-1])

	switch {
	case s.treeConflict[src]:
		return "   C " + filepath.Join(wc, "subject_areas") + "\nSummary of conflicts:\n  Tree conflicts: 1\n", nil
	case s.otherConflict[src]:
		return "C    " + filepath.Join(wc, "notes.txt") + "\n", nil
	case s.textConflict[src]:
		for _, name := range []string{"app.rpd", "app.rpd.merge-left.r10", "app.rpd.merge-right.r12"} {
			if err := os.WriteFile(filepath.Join(wc, name), []byte(name), 0o644); err != nil {
				return "", err
			}
		}
		return "C    " + filepath.Join(wc, "app.rpd") + "\n", nil
	}
	return "U    " + filepath.Join(wc, "app.rpd") + "\n", nil
}

func (s *fakeSvn) Commit(_ context.Context, _, message string) (int, error) {
	s.commits = append(s.commits, message)
	return 100 + len(s.commits), nil
}

func (s *fakeSvn) Resolve(_ context.Context, path string) error {
	s.resolved = append(s.resolved, filepath.Base(path))
	return nil
}

func (s *fakeSvn) Delete(_ context.Context, url, _ string) error {
	s.deleted = append(s.deleted, url)
	return nil
}

func svnConfig(t *testing.T) *config.Config {
	return &config.Config{
		Backend:  config.BackendSVN,
		StateDir: t.TempDir(),
		Tool:     config.Tool{Extension: ".rpd"},
		SVN: config.SVN{
			Bin:               "svn",
			BaseURL:           repoURL,
			Trunk:             "trunk",
			Develop:           "branches/develop",
			FeatureRoot:       "branches/feature",
			ReleaseRoot:       "branches/release",
			ReleaseHotfixRoot: "branches/release-hotfix",
			HotfixRoot:        "branches/hotfix",
		},
	}
}

func newSvnFlow(t *testing.T, client *fakeSvn, engine *fakeEngine) *SvnFlow {
	flow := NewSvnFlow(svnConfig(t), client, engine)
	root := t.TempDir()
	n := 0
	flow.workDir = func() (string, error) {
		n++
		dir := filepath.Join(root, "wc", string(rune('a'+n)))
		return dir, os.MkdirAll(dir, 0o755)
	}
	return flow
}

func TestSvnStartFeature(t *testing.T) {
	client := newFakeSvn()
	flow := newSvnFlow(t, client, &fakeEngine{})

	report, err := flow.Run(quiet(), StartFeature, Options{Label: "login"})
	require.NoError(t, err)

	assert.Equal(t, Active, report.State)
	assert.Equal(t, repoURL+"/branches/feature-login", report.Branch)
	assert.Equal(t, "r42", report.Output)
	assert.Equal(t, []string{
		repoURL + "/branches/develop -> " + repoURL + "/branches/feature-login: login: Start Feature [via rpdflow]",
	}, client.copies)
}

func TestSvnStartExisting(t *testing.T) {
	client := newFakeSvn()
	client.existing[repoURL+"/branches/hotfix-1.0.1"] = true
	flow := newSvnFlow(t, client, &fakeEngine{})

	_, err := flow.Run(quiet(), StartHotfix, Options{Label: "1.0.1"})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestSvnStartReleaseHotfix(t *testing.T) {
	client := newFakeSvn()
	client.existing[repoURL+"/branches/release-2.0"] = true
	flow := newSvnFlow(t, client, &fakeEngine{})

	report, err := flow.Run(quiet(), StartReleaseHotfix, Options{Release: "2.0", Label: "fix1"})
	require.NoError(t, err)

	assert.Equal(t, repoURL+"/branches/release-hotfix-2.0-fix1", report.Branch)
	assert.Equal(t, []string{
		repoURL + "/branches/release-2.0 -> " + repoURL + "/branches/release-hotfix-2.0-fix1: fix1: Start Release 2.0 Hotfix [via rpdflow]",
	}, client.copies)
}

func TestSvnStartReleaseHotfixMissingRelease(t *testing.T) {
	client := newFakeSvn()
	flow := newSvnFlow(t, client, &fakeEngine{})

	_, err := flow.Run(quiet(), StartReleaseHotfix, Options{Release: "9.9", Label: "fix1"})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	assert.Empty(t, client.copies)
}

func TestSvnRejectsBugfixRelease(t *testing.T) {
	flow := newSvnFlow(t, newFakeSvn(), &fakeEngine{})

	_, err := flow.Run(quiet(), BugfixRelease, Options{Label: "2.0", Credential: "pw"})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestSvnFinishFeatureWithTextConflict(t *testing.T) {
	client := newFakeSvn()
	branch := repoURL + "/branches/feature-login"
	client.textConflict[branch] = true
	engine := &fakeEngine{}
	flow := newSvnFlow(t, client, engine)

	report, err := flow.Run(quiet(), FinishFeature, Options{Label: "login", Credential: "pw", Tidy: true})
	require.NoError(t, err)

	assert.Equal(t, Deleted, report.State)
	assert.Equal(t, []string{"reintegrate " + branch + " -> " + repoURL + "/branches/develop"}, client.merges)
	assert.Equal(t, []string{"app.rpd"}, client.resolved)
	assert.Equal(t, []string{"login: Finish Feature [via rpdflow]"}, client.commits)
	assert.Equal(t, []string{branch}, client.deleted)

	require.Len(t, engine.requests, 1)
	req := engine.requests[0]
	assert.Equal(t, "app.rpd.merge-left.r10", filepath.Base(req.Original))
	assert.Equal(t, "app.rpd", filepath.Base(req.Current))
	assert.Equal(t, "app.rpd.merge-right.r12", filepath.Base(req.Modified))
	assert.True(t, req.Tidy)

	assert.NoDirExists(t, client.wcs[0], "a tidy run removes the working copy")
}

func TestSvnFinishReleasePartialThenRerun(t *testing.T) {
	branch := repoURL + "/branches/release-2.0"
	trunkOnly := newFakeSvn()
	flow := newSvnFlow(t, trunkOnly, &fakeEngine{})
	flow.client = &targetFailSvn{fakeSvn: trunkOnly, failTarget: repoURL + "/branches/develop"}

	report, err := flow.Run(quiet(), FinishRelease, Options{Label: "2.0", Credential: "pw", Tidy: true})
	require.Error(t, err)

	var partial *errors.PartialFinishError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, []string{repoURL + "/trunk"}, partial.Merged)
	assert.Equal(t, []string{repoURL + "/branches/develop"}, partial.Outstanding)
	assert.Equal(t, Active, report.State)
	assert.Empty(t, trunkOnly.deleted)

	rerun := newFakeSvn()
	flow.client = rerun

	report, err = flow.Run(quiet(), FinishRelease, Options{Label: "2.0", Credential: "pw", Tidy: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"reintegrate " + branch + " -> " + repoURL + "/branches/develop"}, rerun.merges)
	assert.Equal(t, []string{branch}, rerun.deleted)
	assert.Equal(t, Deleted, report.State)
}

// targetFailSvn fails merges into failTarget.
type targetFailSvn struct {
	*fakeSvn
	failTarget string
}

func (s *targetFailSvn) Merge(ctx context.Context, src, wc string, reintegrate bool) (string, error) {
	if s.checkouts[len(s.checkouts)-1] == s.failTarget {
		return "", errors.NewBackendError("svn", "merge", []string{src, wc}, "E195016", errors.New("exit status 1"))
	}
	return s.fakeSvn.Merge(ctx, src, wc, reintegrate)
}

func TestSvnFinishReleaseHotfixIsSequential(t *testing.T) {
	client := newFakeSvn()
	flow := newSvnFlow(t, client, &fakeEngine{})
	flow.client = &targetFailSvn{fakeSvn: client, failTarget: repoURL + "/branches/release-2.0"}

	_, err := flow.Run(quiet(), FinishReleaseHotfix, Options{Release: "2.0", Label: "fix1", Credential: "pw"})
	require.Error(t, err)

	var partial *errors.PartialFinishError
	require.True(t, errors.As(err, &partial))
	assert.Empty(t, partial.Merged)
	assert.Equal(t, []string{repoURL + "/branches/release-2.0", repoURL + "/branches/develop"}, partial.Outstanding)
	assert.Equal(t, []string{repoURL + "/branches/release-2.0"}, client.checkouts, "develop is not attempted after the release merge fails")
}

func TestSvnTreeConflictKeepsWorkingCopy(t *testing.T) {
	client := newFakeSvn()
	src := repoURL + "/branches/feature-x"
	client.treeConflict[src] = true
	engine := &fakeEngine{}
	flow := newSvnFlow(t, client, engine)

	_, err := flow.Run(quiet(), Reintegrate, Options{
		SourceURL:     src,
		TargetURL:     repoURL + "/trunk",
		CommitMessage: "fold x",
		Credential:    "pw",
		Tidy:          true,
	})
	require.Error(t, err)

	assert.Equal(t, errors.KindTreeConflict, errors.KindOf(err))
	assert.Empty(t, engine.requests)
	assert.Empty(t, client.commits)
	assert.DirExists(t, client.wcs[0])
}

func TestSvnNonArtifactConflictKeepsWorkingCopy(t *testing.T) {
	client := newFakeSvn()
	src := repoURL + "/branches/feature-x"
	client.otherConflict[src] = true
	engine := &fakeEngine{}
	flow := newSvnFlow(t, client, engine)

	_, err := flow.Run(quiet(), Reintegrate, Options{
		SourceURL:     src,
		TargetURL:     repoURL + "/trunk",
		CommitMessage: "fold x",
		Tidy:          true,
	})
	require.Error(t, err)

	var uerr *errors.UnsupportedConflictError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, []string{filepath.Join(client.wcs[0], "notes.txt")}, uerr.Paths)
	assert.Empty(t, engine.requests)
	assert.Empty(t, client.commits)
	assert.DirExists(t, client.wcs[0])
}

func TestSvnReintegrateReversed(t *testing.T) {
	client := newFakeSvn()
	src := repoURL + "/branches/feature-x"
	client.textConflict[src] = true
	engine := &fakeEngine{}
	flow := newSvnFlow(t, client, engine)

	report, err := flow.Run(quiet(), Reintegrate, Options{
		SourceURL:     src,
		TargetURL:     repoURL + "/trunk",
		CommitMessage: "fold x",
		Credential:    "pw",
		Reverse:       true,
	})
	require.NoError(t, err)

	assert.Equal(t, "r101", report.Output)
	assert.Equal(t, []string{"fold x"}, client.commits)
	require.Len(t, engine.requests, 1)
	assert.Equal(t, "app.rpd.merge-right.r12", filepath.Base(engine.requests[0].Current))
	assert.Equal(t, "app.rpd", filepath.Base(engine.requests[0].Modified))
	assert.DirExists(t, client.wcs[0], "tidy off keeps the working copy")
}

func TestSvnRefreshIsSyncMerge(t *testing.T) {
	client := newFakeSvn()
	flow := newSvnFlow(t, client, &fakeEngine{})

	report, err := flow.Run(quiet(), RefreshFeature, Options{Label: "login", Credential: "pw"})
	require.NoError(t, err)

	assert.Equal(t, Refreshed, report.State)
	assert.Equal(t, []string{"sync " + repoURL + "/branches/develop -> " + repoURL + "/branches/feature-login"}, client.merges)
	assert.Empty(t, client.deleted)
}
