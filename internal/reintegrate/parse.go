// Package reintegrate turns the output of a centralized reintegration merge
// into per-file three-way merges.
package reintegrate

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/corpeningc/rpdflow/internal/errors"
)

// ConflictRecord is one text-conflicted artifact and its merge candidates.
// Left is the merge base, Right the incoming side; Path holds the working
// copy's own version.
type ConflictRecord struct {
	Path     string
	Left     string
	Right    string
	Reversed bool
}

// Report is what Parse found in one merge output.
type Report struct {
	// Conflicts are artifact paths with text conflicts.
	Conflicts []string
	// Unsupported are text-conflicted paths that are not artifacts.
	Unsupported []string
	// TreeConflicts are the paths flagged in the tree conflict column.
	TreeConflicts []string
	// HasTreeConflicts is set by either a flagged path or the summary line.
	HasTreeConflicts bool
}

var (
	textConflictPrefix = regexp.MustCompile(`^C\s+`)
	treeConflictColumn = regexp.MustCompile(`^[ ACDGMU]{3}C\s+(.+)$`)
	treeConflictTally  = regexp.MustCompile(`^\s*Tree conflicts:\s*\d+`)
)

// Parse scans svn merge output. ext is the artifact extension, e.g. ".rpd".
func Parse(output, ext string) Report {
	var r Report
	strict := regexp.MustCompile(`^C\s+(\S*` + regexp.QuoteMeta(ext) + `)$`)

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")

		if treeConflictTally.MatchString(line) {
			r.HasTreeConflicts = true
			continue
		}
		if m := treeConflictColumn.FindStringSubmatch(line); m != nil {
			r.HasTreeConflicts = true
			r.TreeConflicts = append(r.TreeConflicts, strings.TrimSpace(m[1]))
			continue
		}

		if !textConflictPrefix.MatchString(line) {
			continue
		}

		var path string
		if m := strict.FindStringSubmatch(line); m != nil {
			path = m[1]
		} else {
			// paths containing spaces defeat the strict form
			path = strings.TrimSpace(textConflictPrefix.ReplaceAllString(line, ""))
		}

		if strings.HasSuffix(strings.ToLower(path), strings.ToLower(ext)) {
			r.Conflicts = append(r.Conflicts, path)
		} else {
			r.Unsupported = append(r.Unsupported, path)
		}
	}

	r.Conflicts = lo.Uniq(r.Conflicts)
	return r
}

// Candidates lists the files beside path whose names start with its name.
func Candidates(path string) ([]string, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	siblings := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		return filepath.Join(dir, e.Name()), !e.IsDir() && e.Name() != base && strings.HasPrefix(e.Name(), base)
	})
	sort.Strings(siblings)
	return siblings, nil
}

// Record resolves the merge-left and merge-right candidates of path. With
// reverse set the working copy version and the incoming version swap roles.
func Record(path string, reverse bool) (ConflictRecord, error) {
	candidates, err := Candidates(path)
	if err != nil {
		return ConflictRecord{}, errors.Wrapf(err, "listing merge candidates for %s", path)
	}

	left, _ := lo.Find(candidates, func(c string) bool { return strings.Contains(filepath.Base(c), "merge-left") })
	right, _ := lo.Find(candidates, func(c string) bool { return strings.Contains(filepath.Base(c), "merge-right") })

	if left == "" || right == "" {
		return ConflictRecord{}, &errors.CandidatesError{Path: path, Candidates: candidates}
	}

	return ConflictRecord{Path: path, Left: left, Right: right, Reversed: reverse}, nil
}
