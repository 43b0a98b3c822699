package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/corpeningc/rpdflow/internal/errors"
	"github.com/corpeningc/rpdflow/internal/resolve"
)

// PromptOperator asks on the terminal whether the manual merge is done. It
// keeps asking until the operator confirms or aborts.
type PromptOperator struct {
	// confirm runs one confirmation form; replaced in tests.
	confirm func(ctx context.Context, title, description string, done *bool) error
}

func NewPromptOperator() *PromptOperator {
	return &PromptOperator{confirm: runConfirm}
}

var _ resolve.Operator = (*PromptOperator)(nil)

func (o *PromptOperator) AwaitCompletion(ctx context.Context, p resolve.Prompt) error {
	title := titleStyle.Render("Manual merge required")
	description := Instructions(p)

	for {
		done := false
		err := o.confirm(ctx, title, description, &done)
		if errors.Is(err, huh.ErrUserAborted) {
			return errors.Wrapf(errors.ErrManualMergeIncomplete, "manual merge aborted; staged copies left next to %s", p.Current)
		}
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Instructions renders what the operator must do in the administration tool.
func Instructions(p resolve.Prompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original: %s\n", pathStyle.Render(p.Original))
	fmt.Fprintf(&b, "Current:  %s (open in the administration tool)\n", pathStyle.Render(p.Current))
	fmt.Fprintf(&b, "Modified: %s\n\n", pathStyle.Render(p.Modified))
	fmt.Fprintf(&b, "Merge the modified repository into the current one, save it as\n%s or %s\nand close the tool.",
		pathStyle.Render(p.DefaultOutput), pathStyle.Render(p.Output))
	return b.String()
}

func runConfirm(ctx context.Context, title, description string, done *bool) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Merged and saved").
				Negative("Not yet").
				Value(done),
		),
	)
	return form.RunWithContext(ctx)
}
