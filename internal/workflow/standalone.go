package workflow

import (
	"context"

	"github.com/corpeningc/rpdflow/internal/artifact"
	"github.com/corpeningc/rpdflow/internal/log"
)

// standalone runs one three-way merge of explicit files, outside any branch.
func standalone(ctx context.Context, engine Merger, opts Options) (Report, error) {
	report := Report{Action: StandaloneMerge}

	outcome, err := engine.Merge(ctx, artifact.Request{
		Original:   opts.Original,
		Current:    opts.Current,
		Modified:   opts.Modified,
		Output:     opts.Output,
		Credential: opts.Credential,
		AutoOpen:   opts.AutoOpen,
		Tidy:       opts.Tidy,
	})
	if err != nil {
		return report, err
	}

	report.Output = outcome.Output
	log.From(ctx).Successf("Merged artifact written to %s (%s).", outcome.Output, outcome.Status)
	return report, nil
}

// Flow runs actions against one backend.
type Flow interface {
	Run(ctx context.Context, action Action, opts Options) (Report, error)
}

var (
	_ Flow = (*GitFlow)(nil)
	_ Flow = (*SvnFlow)(nil)
)
