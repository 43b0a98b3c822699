package reintegrate

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/corpeningc/rpdflow/internal/artifact"
	"github.com/corpeningc/rpdflow/internal/errors"
	"github.com/corpeningc/rpdflow/internal/log"
)

type Merger interface {
	Merge(ctx context.Context, req artifact.Request) (artifact.Outcome, error)
}

// ConflictMarker clears the conflict state of a path at the backend.
type ConflictMarker interface {
	Resolve(ctx context.Context, path string) error
}

type Options struct {
	Extension  string
	Credential string
	AutoOpen   bool
	Reverse    bool
}

type Applier struct {
	merger Merger
	marker ConflictMarker
	opts   Options
}

func NewApplier(merger Merger, marker ConflictMarker, opts Options) *Applier {
	return &Applier{merger: merger, marker: marker, opts: opts}
}

// Apply resolves every text conflict in report through the merge engine. It
// stops at the first failure. Tree conflicts are never attempted.
func (a *Applier) Apply(ctx context.Context, workingCopy string, report Report) error {
	l := log.From(ctx)

	if report.HasTreeConflicts {
		return &errors.TreeConflictError{WorkingCopy: workingCopy, Paths: report.TreeConflicts}
	}

	if len(report.Unsupported) > 0 {
		return &errors.UnsupportedConflictError{WorkingCopy: workingCopy, Paths: report.Unsupported}
	}

	if len(report.Conflicts) > 0 {
		l.Warn("Text conflicts detected.", zap.Strings("paths", report.Conflicts))
	}

	for _, path := range report.Conflicts {
		if !filepath.IsAbs(path) {
			path = filepath.Join(workingCopy, path)
		}

		rec, err := Record(path, a.opts.Reverse)
		if err != nil {
			return err
		}

		if err := a.resolve(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Request builds the three-way merge for rec.
func (a *Applier) Request(rec ConflictRecord) artifact.Request {
	current, modified := rec.Path, rec.Right
	if rec.Reversed {
		current, modified = modified, current
	}

	ext := a.opts.Extension
	if ext == "" {
		ext = filepath.Ext(rec.Path)
	}

	return artifact.Request{
		Original:   rec.Left,
		Current:    current,
		Modified:   modified,
		Output:     modified + ".merged" + ext,
		Credential: a.opts.Credential,
		AutoOpen:   a.opts.AutoOpen,
		Tidy:       true,
	}
}

func (a *Applier) resolve(ctx context.Context, rec ConflictRecord) error {
	l := log.From(ctx).With(zap.String("path", rec.Path))
	if rec.Reversed {
		l.Info("Reversing the current/modified merge candidates.")
	}

	req := a.Request(rec)
	if _, err := a.merger.Merge(ctx, req); err != nil {
		return errors.Wrapf(err, "three-way merge of %s", rec.Path)
	}

	for _, p := range []string{rec.Path, rec.Left, rec.Right} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "removing %s", p)
		}
	}
	if err := os.Rename(req.Output, rec.Path); err != nil {
		return errors.Wrapf(err, "renaming %s to %s", req.Output, rec.Path)
	}

	if err := a.marker.Resolve(ctx, rec.Path); err != nil {
		return err
	}

	l.Success("Three-way merge successful.")
	return nil
}
