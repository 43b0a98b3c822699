package workflow

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/corpeningc/rpdflow/internal/errors"
	"github.com/corpeningc/rpdflow/internal/log"
)

// finishPlan describes merging one branch into its targets.
type finishPlan struct {
	action  Action
	branch  string
	targets []string
	// sequential stops at the first failed target instead of attempting the
	// rest independently.
	sequential bool

	merge    func(ctx context.Context, target string, last bool) error
	onMerged func(ctx context.Context, target string) error
	remove   func(ctx context.Context) error
}

// finish merges plan.branch into every outstanding target and deletes the
// branch once all of them are merged and published. Targets recorded in the
// ledger by an earlier run are not merged again; a failed onMerged is retried
// on the next run.
func finish(ctx context.Context, ledger *Ledger, plan finishPlan) (Report, error) {
	l := log.From(ctx).With(zap.String("branch", plan.branch))

	report := Report{Action: plan.action, Branch: plan.branch, State: Active}

	outstanding := ledger.Outstanding(plan.targets)
	if skipped := len(plan.targets) - len(outstanding); skipped > 0 {
		l.Infof("Skipping %d target(s) merged by an earlier run.", skipped)
	}

	var result *multierror.Error
	var failed, pending []string

	for _, target := range plan.targets {
		if len(failed) > 0 && plan.sequential {
			failed = append(failed, target)
			continue
		}

		if !ledger.IsMerged(target) {
			last := target == outstanding[len(outstanding)-1]
			if err := plan.merge(ctx, target, last); err != nil {
				l.Error("merge failed", zap.String("target", target), zap.Error(err))
				result = multierror.Append(result, errors.Wrapf(err, "merging into %s", target))
				failed = append(failed, target)
				continue
			}

			if err := ledger.MarkMerged(target); err != nil {
				l.Warn("could not record merge in the finish ledger", zap.Error(err))
			}
			l.Successf("Successfully merged %s into %s.", plan.branch, target)
		}

		if plan.onMerged == nil || ledger.IsPublished(target) {
			continue
		}
		if err := plan.onMerged(ctx, target); err != nil {
			l.Error("publishing failed", zap.String("target", target), zap.Error(err))
			result = multierror.Append(result, errors.Wrapf(err, "publishing %s", target))
			pending = append(pending, target)
			continue
		}
		if err := ledger.MarkPublished(target); err != nil {
			l.Warn("could not record publish in the finish ledger", zap.Error(err))
		}
	}

	report.Merged = ledger.Merged
	report.Outstanding = failed

	if len(failed) > 0 || len(pending) > 0 {
		return report, &errors.PartialFinishError{
			Branch:      plan.branch,
			Merged:      ledger.Merged,
			Outstanding: failed,
			Pending:     pending,
			Cause:       result.ErrorOrNil(),
		}
	}

	report.State = MergedToTargets

	if err := plan.remove(ctx); err != nil {
		return report, err
	}
	if err := ledger.Remove(); err != nil {
		l.Warn("could not remove the finish ledger", zap.Error(err))
	}
	report.State = Deleted
	return report, nil
}
