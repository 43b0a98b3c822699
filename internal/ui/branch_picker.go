package ui

import (
	"context"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/corpeningc/rpdflow/internal/errors"
)

// SelectBranch lets the operator pick one of branches. The returned label has
// prefix removed.
func SelectBranch(ctx context.Context, title, prefix string, branches []string) (string, error) {
	if len(branches) == 0 {
		return "", errors.Validationf("no existing %s branches to choose from", prefix)
	}

	options := make([]huh.Option[string], 0, len(branches))
	for _, branch := range branches {
		options = append(options, huh.NewOption(branch, strings.TrimPrefix(branch, prefix)))
	}

	var selected string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(title).
				Options(options...).
				Value(&selected),
		),
	)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", errors.Validationf("no branch selected")
		}
		return "", err
	}
	return selected, nil
}
