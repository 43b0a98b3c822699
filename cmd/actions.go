package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/corpeningc/rpdflow/internal/errors"
	"github.com/corpeningc/rpdflow/internal/log"
	"github.com/corpeningc/rpdflow/internal/ui"
	"github.com/corpeningc/rpdflow/internal/workflow"
)

type actionFlags struct {
	push     bool
	tag      string
	noTag    bool
	autoOpen bool
	tidy     bool
	keep     bool
	reverse  bool
	message  string
	password string

	original string
	current  string
	modified string
	output   string

	sourceURL string
	targetURL string
}

var shortHelp = map[workflow.Action]string{
	workflow.StartFeature:        "Create a feature branch from develop",
	workflow.FinishFeature:       "Merge a feature branch into develop and delete it",
	workflow.RefreshFeature:      "Merge develop into an active feature branch",
	workflow.StartRelease:        "Create a release branch from develop",
	workflow.FinishRelease:       "Merge a release into trunk and develop and delete it",
	workflow.BugfixRelease:       "Merge an active release branch into develop",
	workflow.StartHotfix:         "Create a hotfix branch from trunk",
	workflow.FinishHotfix:        "Merge a hotfix into trunk and develop and delete it",
	workflow.StartReleaseHotfix:  "Create a hotfix branch from a release branch (svn)",
	workflow.FinishReleaseHotfix: "Merge a release hotfix into its release and develop (svn)",
	workflow.StandaloneMerge:     "Three-way merge of explicit repository files",
	workflow.Reintegrate:         "Reintegrate one branch URL into another (svn)",
}

func newActionCmd(action workflow.Action) *cobra.Command {
	f := &actionFlags{}

	cmd := &cobra.Command{
		Use:   usage(action),
		Short: shortHelp[action],
		Args:  positional(action),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, action, f, args)
		},
	}

	registerFlags(cmd.Flags(), action, f)
	return cmd
}

func usage(action workflow.Action) string {
	switch action {
	case workflow.StandaloneMerge, workflow.Reintegrate:
		return string(action)
	case workflow.StartReleaseHotfix, workflow.FinishReleaseHotfix:
		return string(action) + " <release> <hotfix>"
	}
	return fmt.Sprintf("%s [%s]", action, action.Kind())
}

func positional(action workflow.Action) cobra.PositionalArgs {
	switch action {
	case workflow.StandaloneMerge, workflow.Reintegrate:
		return cobra.NoArgs
	case workflow.StartReleaseHotfix, workflow.FinishReleaseHotfix:
		return cobra.ExactArgs(2)
	case workflow.StartFeature, workflow.StartRelease, workflow.StartHotfix:
		return cobra.ExactArgs(1)
	}
	return cobra.MaximumNArgs(1)
}

func registerFlags(flags *pflag.FlagSet, action workflow.Action, f *actionFlags) {
	if action == workflow.StandaloneMerge {
		flags.StringVarP(&f.original, "original", "r", "", "common ancestor repository")
		flags.StringVarP(&f.current, "current", "u", "", "current repository")
		flags.StringVarP(&f.modified, "modified", "m", "", "modified repository")
		flags.StringVarP(&f.output, "output", "o", "", "merged output repository")
		flags.BoolVar(&f.tidy, "tidy", false, "remove the inputs and intermediate files after the merge")
	} else {
		flags.StringVarP(&f.message, "commitMessage", "m", "", "commit message (svn)")
	}

	if !action.MayMerge() {
		return
	}

	flags.BoolVarP(&f.autoOpen, "autoOpen", "a", false, "open the merged repository in the administration tool")
	flags.StringVar(&f.password, "password", "", "repository password (default tool.credential)")

	if action == workflow.StandaloneMerge {
		return
	}

	flags.BoolVar(&f.keep, "keep", false, "keep merge inputs, intermediate files and svn working copies")
	flags.BoolVar(&f.reverse, "reverse", false, "swap the current and modified candidates of reintegration conflicts")

	if action == workflow.Reintegrate {
		flags.StringVar(&f.sourceURL, "source_url", "", "branch URL to reintegrate")
		flags.StringVar(&f.targetURL, "target_url", "", "URL receiving the reintegration")
		return
	}

	flags.BoolVarP(&f.push, "push", "p", false, "push merged branches and tags (git)")
	if action == workflow.FinishRelease || action == workflow.FinishHotfix {
		flags.StringVarP(&f.tag, "tag", "t", "", "tag applied to trunk (default the branch name)")
		flags.BoolVar(&f.noTag, "no-tag", false, "do not tag trunk")
	}
}

// options maps the parsed command line onto workflow options.
func options(action workflow.Action, f *actionFlags, args []string, credential string) workflow.Options {
	opts := workflow.Options{
		Push:          f.push,
		Tag:           f.tag,
		NoTag:         f.noTag,
		AutoOpen:      f.autoOpen,
		Tidy:          !f.keep,
		Reverse:       f.reverse,
		CommitMessage: f.message,
		Credential:    f.password,
		Original:      f.original,
		Current:       f.current,
		Modified:      f.modified,
		Output:        f.output,
		SourceURL:     f.sourceURL,
		TargetURL:     f.targetURL,
	}
	if action == workflow.StandaloneMerge {
		opts.Tidy = f.tidy
	}
	if opts.Credential == "" {
		opts.Credential = credential
	}

	switch len(args) {
	case 1:
		opts.Label = args[0]
	case 2:
		opts.Release, opts.Label = args[0], args[1]
	}
	return opts
}

func runAction(cmd *cobra.Command, action workflow.Action, f *actionFlags, args []string) error {
	ctx := cmd.Context()
	l := log.From(ctx)

	cfg, err := loadConfig(action.NeedsBackend())
	if err != nil {
		return err
	}

	env := newEnvironment(cfg)
	opts := options(action, f, args, cfg.Tool.Credential)

	pickable := action.Kind() != "" && action.Kind() != workflow.KindReleaseHotfix
	if opts.Label == "" && pickable {
		opts.Label = env.currentLabel(action.Kind())
	}
	if opts.Label == "" && pickable {
		if !interactive() {
			return errors.Validationf("%s requires a %s name", action, action.Kind())
		}
		label, err := env.pickBranch(ctx, action.Kind())
		if err != nil {
			return err
		}
		opts.Label = label
	}

	if action == workflow.Reintegrate && opts.CommitMessage == "" && interactive() {
		message, err := ui.ReadMessage(ctx, "Reintegration commit message")
		if err != nil {
			return err
		}
		opts.CommitMessage = message
	}

	report, err := env.flow.Run(ctx, action, opts)
	if err != nil {
		return err
	}

	l.Success(report.String())
	return nil
}
