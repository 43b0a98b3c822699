package git

import (
	"bufio"
	"context"
	"strings"
)

type FileStatus struct {
	Path     string
	Status   string // M(odified), A(dded), D(eleted), R(enamed), ?(untracked), U(nmerged)
	Staged   bool
	WorkTree bool
	Unmerged bool
}

// unmergedCodes are the porcelain XY pairs git uses for paths with conflicts.
var unmergedCodes = map[string]bool{
	"DD": true, "AU": true, "UD": true, "UA": true,
	"DU": true, "AA": true, "UU": true,
}

func (repo *GitRepo) AddFiles(ctx context.Context, files ...string) error {
	if len(files) == 0 {
		return nil
	}
	return repo.exec(ctx, "add files", append([]string{"add", "--"}, files...)...)
}

// Status lists the work tree entries reported by `git status --porcelain=v1`.
func (repo *GitRepo) Status(ctx context.Context) ([]FileStatus, error) {
	args := []string{"status", "--porcelain=v1"}
	res := repo.run(ctx, args...)
	if err := res.AsError("git", "status", args); err != nil {
		return nil, err
	}
	return ParseStatus(res.Output), nil
}

// ParseStatus parses porcelain v1 status output. An entry staged and modified
// in the work tree yields one FileStatus with both flags set.
func ParseStatus(output string) []FileStatus {
	var files []FileStatus
	scanner := bufio.NewScanner(strings.NewReader(output))

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}

		code := line[:2]
		stageStatus := string(line[0])
		workTreeStatus := string(line[1])
		filePath := strings.TrimSpace(line[3:])

		// Git quotes filenames with special characters - remove the quotes
		if strings.HasPrefix(filePath, "\"") && strings.HasSuffix(filePath, "\"") {
			filePath = filePath[1 : len(filePath)-1]
		}

		fs := FileStatus{
			Path:     filePath,
			Status:   stageStatus,
			Staged:   stageStatus != " " && stageStatus != "?",
			WorkTree: workTreeStatus != " ",
		}
		if unmergedCodes[code] {
			fs.Status = "U"
			fs.Unmerged = true
		} else if !fs.Staged {
			fs.Status = workTreeStatus
		}

		files = append(files, fs)
	}

	return files
}

// IsClean reports whether the work tree has no changes, ignoring untracked files.
func (repo *GitRepo) IsClean(ctx context.Context) (bool, error) {
	files, err := repo.Status(ctx)
	if err != nil {
		return false, err
	}
	for _, f := range files {
		if f.Status != "?" {
			return false, nil
		}
	}
	return true, nil
}
