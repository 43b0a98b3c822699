package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/corpeningc/rpdflow/internal/errors"
)

// Stages holds the three index stages of a conflicted path, checked out to
// temporary files.
type Stages struct {
	Base   string // stage 1, the common ancestor
	Ours   string // stage 2, the branch being merged into
	Theirs string // stage 3, the branch being merged
}

// ConflictedFiles returns the repo-relative paths git reports as unmerged.
func (repo *GitRepo) ConflictedFiles(ctx context.Context) ([]string, error) {
	files, err := repo.Status(ctx)
	if err != nil {
		return nil, err
	}
	unmerged := lo.Filter(files, func(f FileStatus, _ int) bool { return f.Unmerged })
	return lo.Map(unmerged, func(f FileStatus, _ int) string { return f.Path }), nil
}

// IsConflicted reports whether path is among the unmerged paths.
func (repo *GitRepo) IsConflicted(ctx context.Context, path string) (bool, error) {
	files, err := repo.ConflictedFiles(ctx)
	if err != nil {
		return false, err
	}
	path = filepath.ToSlash(filepath.Clean(path))
	return lo.Contains(files, path), nil
}

// ParseStageOutput parses `git checkout-index --stage=all --temp` output:
// three space separated temp names (or "." for an absent stage), a tab, then
// the path.
func ParseStageOutput(output string) (Stages, string, error) {
	line := strings.TrimSpace(strings.SplitN(strings.ReplaceAll(output, "\r", ""), "\n", 2)[0])

	temps, path, ok := strings.Cut(line, "\t")
	if !ok {
		return Stages{}, "", fmt.Errorf("unexpected checkout-index output %q", line)
	}

	fields := strings.Fields(temps)
	if len(fields) != 3 {
		return Stages{}, "", fmt.Errorf("expected three stages in %q", line)
	}

	stage := func(s string) string {
		if s == "." {
			return ""
		}
		return s
	}

	return Stages{
		Base:   stage(fields[0]),
		Ours:   stage(fields[1]),
		Theirs: stage(fields[2]),
	}, path, nil
}

// CheckoutStages writes all index stages of the conflicted path to files
// next to it named merge_base, merge_ours and merge_theirs with the path's
// extension. The returned paths are absolute.
func (repo *GitRepo) CheckoutStages(ctx context.Context, path string) (Stages, error) {
	args := []string{"checkout-index", "--stage=all", "--temp", "--", path}
	res := repo.run(ctx, args...)
	if err := res.AsError("git", "checkout-index", args); err != nil {
		return Stages{}, err
	}

	temps, _, err := ParseStageOutput(res.Output)
	if err != nil {
		return Stages{}, errors.NewBackendError("git", "checkout-index", args, res.Output, err)
	}

	missing := lo.Filter([]lo.Tuple2[string, string]{
		lo.T2("base", temps.Base), lo.T2("ours", temps.Ours), lo.T2("theirs", temps.Theirs),
	}, func(t lo.Tuple2[string, string], _ int) bool { return t.B == "" })
	if len(missing) > 0 {
		names := lo.Map(missing, func(t lo.Tuple2[string, string], _ int) string { return t.A })
		return Stages{}, errors.Wrapf(errors.ErrMissingInput, "%s has no %s stage", path, strings.Join(names, "/"))
	}

	ext := filepath.Ext(path)
	dir := filepath.Join(repo.WorkDir, filepath.Dir(path))

	staged := Stages{
		Base:   filepath.Join(dir, "merge_base"+ext),
		Ours:   filepath.Join(dir, "merge_ours"+ext),
		Theirs: filepath.Join(dir, "merge_theirs"+ext),
	}

	for _, mv := range [][2]string{
		{temps.Base, staged.Base},
		{temps.Ours, staged.Ours},
		{temps.Theirs, staged.Theirs},
	} {
		if err := os.Rename(filepath.Join(repo.WorkDir, mv[0]), mv[1]); err != nil {
			return Stages{}, errors.Wrapf(err, "staging %s", filepath.Base(mv[1]))
		}
	}

	return staged, nil
}
