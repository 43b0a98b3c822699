package git

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	gitc "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/samber/lo"

	"github.com/corpeningc/rpdflow/internal/log"
	"github.com/corpeningc/rpdflow/internal/vcs"
)

// CreateBranch creates name from base and checks it out.
func (repo *GitRepo) CreateBranch(ctx context.Context, name, base string) error {
	log.From(ctx).Infof("Creating %s from %s...", name, base)
	return repo.exec(ctx, "create branch", "checkout", "-b", name, base)
}

func (repo *GitRepo) DeleteBranch(ctx context.Context, name string) error {
	log.From(ctx).Infof("Deleting %s...", name)
	return repo.exec(ctx, "delete branch", "branch", "-d", name)
}

// Merge merges branch into the checked out branch. The raw result is returned
// so the caller can tell a conflict from any other failure.
func (repo *GitRepo) Merge(ctx context.Context, branch string) vcs.Result {
	return repo.run(ctx, "merge", branch)
}

// AbortMerge abandons an unfinished merge, restoring the pre-merge state.
func (repo *GitRepo) AbortMerge(ctx context.Context) error {
	return repo.exec(ctx, "merge --abort", "merge", "--abort")
}

func (repo *GitRepo) open() (*gitc.Repository, error) {
	r, err := gitc.PlainOpenWithOptions(repo.WorkDir, &gitc.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, fmt.Errorf("git: %w", err)
	}
	return r, nil
}

// BranchExists reports whether a local branch or a remote-tracking branch on
// the configured remote carries name.
func (repo *GitRepo) BranchExists(name string) (bool, error) {
	r, err := repo.open()
	if err != nil {
		return false, err
	}

	for _, ref := range []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(name),
		plumbing.NewRemoteReferenceName(repo.Remote, name),
	} {
		_, err := r.Reference(ref, false)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, plumbing.ErrReferenceNotFound) {
			return false, fmt.Errorf("git: %w", err)
		}
	}
	return false, nil
}

// TagExists reports whether the tag name exists locally.
func (repo *GitRepo) TagExists(name string) (bool, error) {
	r, err := repo.open()
	if err != nil {
		return false, err
	}

	_, err = r.Reference(plumbing.NewTagReferenceName(name), false)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return false, nil
	}
	return false, fmt.Errorf("git: %w", err)
}

// HeadBranch returns the checked out branch, or "" on a detached HEAD.
func (repo *GitRepo) HeadBranch() (string, error) {
	r, err := repo.open()
	if err != nil {
		return "", err
	}

	head, err := r.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("git: %w", err)
	}

	if !head.Name().IsBranch() {
		return "", nil
	}
	return head.Name().Short(), nil
}

// ListBranches returns local and remote-tracking branch names starting with
// prefix, deduplicated and sorted.
func (repo *GitRepo) ListBranches(prefix string) ([]string, error) {
	r, err := repo.open()
	if err != nil {
		return nil, err
	}

	refs, err := r.References()
	if err != nil {
		return nil, fmt.Errorf("git: %w", err)
	}
	defer refs.Close()

	remotePrefix := repo.Remote + "/"

	var names []string
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		var name string
		switch {
		case ref.Name().IsBranch():
			name = ref.Name().Short()
		case ref.Name().IsRemote():
			short := ref.Name().Short()
			if !strings.HasPrefix(short, remotePrefix) || strings.HasSuffix(short, "/HEAD") {
				return nil
			}
			name = strings.TrimPrefix(short, remotePrefix)
		default:
			return nil
		}

		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("git: %w", err)
	}

	names = lo.Uniq(names)
	sort.Strings(names)
	return names, nil
}
