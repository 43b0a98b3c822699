// Package artifact drives the three-way merge of binary repository documents
// through the external compare and patch tools.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/corpeningc/rpdflow/internal/config"
	"github.com/corpeningc/rpdflow/internal/errors"
	"github.com/corpeningc/rpdflow/internal/log"
)

const (
	PatchFile  = "patch.xml"
	CompareLog = "comparerpd.log"
	PatchLog   = "patchrpd.log"
)

// Resolver completes a merge the patch tool gave up on.
type Resolver interface {
	ResolveManually(ctx context.Context, in Inputs, output string) (Outcome, error)
}

type Engine struct {
	tools    Toolkit
	resolver Resolver

	marker    string
	extension string
	logDir    string
}

func NewEngine(tool config.Tool, tools Toolkit, resolver Resolver) *Engine {
	marker := tool.ConflictMarker
	if marker == "" {
		marker = config.DefaultConflictMarker
	}
	ext := tool.Extension
	if ext == "" {
		ext = config.DefaultExtension
	}
	return &Engine{
		tools:     tools,
		resolver:  resolver,
		marker:    marker,
		extension: ext,
		logDir:    tool.LogDir,
	}
}

// Merge runs the three-way merge protocol for req. The returned error is set
// exactly when the outcome is a failure.
func (e *Engine) Merge(ctx context.Context, req Request) (Outcome, error) {
	l := log.From(ctx).With(zap.String("output", req.Output))

	if err := validate(req); err != nil {
		return Failed(err), err
	}

	if err := removeOutput(req.Output); err != nil {
		return Failed(err), err
	}

	patch := filepath.Join(e.logDir, PatchFile)
	compareLog := filepath.Join(e.logDir, CompareLog)
	patchLog := filepath.Join(e.logDir, PatchLog)

	if err := removeIfExists(patch); err != nil {
		return Failed(err), errors.Wrap(err, "removing stale patch")
	}

	l.Info("Creating patch...")
	if err := e.tools.Compare(ctx, req.Original, req.Current, req.Credential, patch, compareLog); err != nil {
		l.Warn("compare tool could not be run", zap.Error(err))
	}
	if !exists(patch) {
		err := errors.NewMergeError("compare", errors.ErrCompareFailed, compareLog, req.Original, req.Current)
		return Failed(err), err
	}
	l.Info("Patch created successfully.")
	if err := removeIfExists(compareLog); err != nil {
		l.Debug("could not remove compare log", zap.Error(err))
	}

	outcome, err := e.patch(ctx, req, patch, patchLog)

	if req.Tidy {
		if cerr := e.tidy(req, patch); cerr != nil {
			l.Warn("cleanup incomplete", zap.Error(cerr))
		}
	}

	if err == nil {
		l.Successf("Merge complete (%s).", outcome.Status)
	}
	return outcome, err
}

func (e *Engine) patch(ctx context.Context, req Request, patch, patchLog string) (Outcome, error) {
	l := log.From(ctx)

	l.Info("Patching repository...")
	if err := e.tools.Patch(ctx, req.Modified, req.Original, patch, req.Credential, req.Output, patchLog); err != nil {
		l.Warn("patch tool could not be run", zap.Error(err))
	}

	if exists(req.Output) {
		l.Info("Repository patched successfully.")
		if req.AutoOpen {
			if err := e.tools.Open(ctx, req.Output, req.Credential); err != nil {
				l.Warn("could not open the merged repository", zap.Error(err))
			}
		}
		return Success(req.Output), nil
	}

	content, err := os.ReadFile(patchLog)
	if err != nil {
		l.Debug("patch log unreadable", zap.Error(err))
	}

	if !HasConflictMarker(string(content), e.marker) {
		err := errors.NewMergeError("patch", errors.ErrToolError, patchLog, req.Output)
		return Failed(err), err
	}

	l.Warn("Conflicts detected. Resolve them manually in the administration tool.")
	outcome, err := e.resolver.ResolveManually(ctx, req.Inputs(), req.Output)
	if err != nil {
		return Failed(err), err
	}
	return outcome, nil
}

// HasConflictMarker reports whether the patch tool log says the patch
// conflicted.
func HasConflictMarker(toolLog, marker string) bool {
	return marker != "" && strings.Contains(toolLog, marker)
}

func validate(req Request) error {
	out := clean(req.Output)
	if out == "" {
		return errors.Validationf("output path must be set")
	}
	for _, in := range []string{req.Original, req.Current, req.Modified} {
		if clean(in) == out {
			return errors.Validationf("output %s cannot be the same as an input", req.Output)
		}
	}

	var missing []string
	for _, in := range []string{req.Original, req.Current, req.Modified} {
		if in == "" || !exists(in) {
			missing = append(missing, in)
		}
	}
	if len(missing) > 0 {
		return errors.NewMergeError("inputs", errors.ErrMissingInput, "", missing...)
	}
	return nil
}

func removeOutput(output string) error {
	if err := removeIfExists(output); err != nil {
		return errors.NewMergeError("output", fmt.Errorf("%w: %v", errors.ErrOutputLocked, err), "", output)
	}
	return nil
}

// tidy removes the merge inputs and the tool intermediates left beside them.
func (e *Engine) tidy(req Request, patch string) error {
	var result *multierror.Error

	targets := []string{patch, req.Original, req.Current, req.Modified}

	dir := filepath.Dir(req.Current)
	for _, pattern := range []string{"*_equalized" + e.extension, "*_patched" + e.extension, "*.merge_log.csv"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		targets = append(targets, matches...)
	}

	for _, t := range targets {
		if err := removeIfExists(t); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func clean(p string) string {
	if p == "" {
		return ""
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
