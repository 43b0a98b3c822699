// Package resolve implements the supervised manual merge used when the patch
// tool reports conflicts.
package resolve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/corpeningc/rpdflow/internal/artifact"
	"github.com/corpeningc/rpdflow/internal/errors"
	"github.com/corpeningc/rpdflow/internal/log"
)

// Editor opens a repository in the interactive administration tool.
type Editor interface {
	Open(ctx context.Context, path, credential string) error
}

// Prompt tells the operator what to do while the merge is suspended.
type Prompt struct {
	Original      string
	Current       string
	Modified      string
	Output        string
	DefaultOutput string
}

// Operator is the suspend point of a manual merge: AwaitCompletion blocks
// until the operator says the merge in the editor is done.
type Operator interface {
	AwaitCompletion(ctx context.Context, p Prompt) error
}

type Resolver struct {
	editor    Editor
	operator  Operator
	extension string
}

// New returns a resolver that stages its copies with the artifact
// extension, whatever the names of the inputs.
func New(editor Editor, operator Operator, extension string) *Resolver {
	return &Resolver{editor: editor, operator: operator, extension: extension}
}

var _ artifact.Resolver = (*Resolver)(nil)

// ResolveManually stages copies of the inputs, opens the current copy in the
// editor and waits for the operator. The merged repository is accepted under
// the editor's default name or under output.
func (r *Resolver) ResolveManually(ctx context.Context, in artifact.Inputs, output string) (artifact.Outcome, error) {
	l := log.From(ctx)

	staged, err := stage(in, r.extension)
	if err != nil {
		return artifact.Failed(err), err
	}

	defaultOutput := DefaultOutput(staged.Current)

	l.Infof("Original:\t%s (%s, %s)", in.Original, filepath.Base(staged.Original), size(in.Original))
	l.Infof("Current:\t%s (opened, %s)", in.Current, size(in.Current))
	l.Infof("Modified:\t%s (%s, %s)", in.Modified, filepath.Base(staged.Modified), size(in.Modified))
	l.Infof("Perform a full repository merge in the administration tool and save the result as %s or %s.",
		filepath.Base(defaultOutput), output)

	if err := r.editor.Open(ctx, staged.Current, in.Credential); err != nil {
		return artifact.Failed(err), errors.Wrap(err, "opening the administration tool")
	}

	if err := r.operator.AwaitCompletion(ctx, Prompt{
		Original:      staged.Original,
		Current:       staged.Current,
		Modified:      staged.Modified,
		Output:        output,
		DefaultOutput: defaultOutput,
	}); err != nil {
		return artifact.Failed(err), err
	}

	switch {
	case exists(defaultOutput):
		if err := moveFile(defaultOutput, output); err != nil {
			return artifact.Failed(err), errors.Wrapf(err, "renaming %s to %s", defaultOutput, output)
		}
	case exists(output):
	default:
		err := &errors.ManualMergeError{Checked: []string{output, defaultOutput}}
		return artifact.Failed(err), err
	}

	if err := staged.remove(defaultOutput); err != nil {
		l.Warn("could not remove staged copies", zap.Error(err))
	}

	l.Success("Manual merge complete.")
	return artifact.ResolvedManually(output), nil
}

type staging struct {
	Original string
	Current  string
	Modified string
}

func (s staging) remove(extra ...string) error {
	var result *multierror.Error
	for _, p := range append([]string{s.Original, s.Current, s.Modified}, extra...) {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// stage copies the inputs beside themselves. On failure the copies already
// made are removed.
func stage(in artifact.Inputs, ext string) (s staging, err error) {
	defer func() {
		if err != nil {
			_ = s.remove()
		}
	}()

	if s.Original, err = stageCopy(in.Original, "original", ext); err != nil {
		return s, err
	}
	if s.Current, err = stageCopy(in.Current, "current", ext); err != nil {
		return s, err
	}
	if s.Modified, err = stageCopy(in.Modified, "modified", ext); err != nil {
		return s, err
	}
	return s, nil
}

// StagedName returns the first of name<ext>, name1<ext>, name2<ext>... in
// the directory of src that is neither src nor an existing file.
func StagedName(src, name, ext string) string {
	dir := filepath.Dir(src)

	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s%d", name, i)
		}
		p := filepath.Join(dir, candidate+ext)
		if p != filepath.Clean(src) && !exists(p) {
			return p
		}
	}
}

func stageCopy(src, name, ext string) (string, error) {
	dst := StagedName(src, name, ext)
	if err := copyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return "", errors.Wrapf(err, "staging %s", filepath.Base(dst))
	}
	return dst, nil
}

// DefaultOutput is the name the administration tool suggests when saving a
// merge of current: "<stem>(1)<ext>" beside it.
func DefaultOutput(current string) string {
	ext := filepath.Ext(current)
	stem := strings.TrimSuffix(filepath.Base(current), ext)
	return filepath.Join(filepath.Dir(current), stem+"(1)"+ext)
}

func size(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "unknown size"
	}
	return humanize.Bytes(uint64(info.Size()))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
