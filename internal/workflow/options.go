package workflow

import (
	"fmt"
	"strings"

	"github.com/corpeningc/rpdflow/internal/errors"
)

// Options carries the per-invocation arguments of an action.
type Options struct {
	// Label is the feature, release or hotfix name. For release hotfixes it
	// is the hotfix name and Release names the release.
	Label   string
	Release string

	Push  bool
	Tag   string
	NoTag bool

	AutoOpen bool
	Tidy     bool
	Reverse  bool

	CommitMessage string
	Credential    string

	Original string
	Current  string
	Modified string
	Output   string

	SourceURL string
	TargetURL string
}

// Validate checks that the options carry what action needs.
func (o Options) Validate(action Action) error {
	switch action {
	case StandaloneMerge:
		for _, v := range []string{o.Original, o.Current, o.Modified, o.Output} {
			if strings.TrimSpace(v) == "" {
				return errors.Validationf("%s requires --original, --current, --modified and --output", action)
			}
		}
	case Reintegrate:
		if o.SourceURL == "" || o.TargetURL == "" {
			return errors.Validationf("%s requires --source_url and --target_url", action)
		}
		if o.CommitMessage == "" {
			return errors.Validationf("%s requires a commit message", action)
		}
	case StartReleaseHotfix, FinishReleaseHotfix:
		if o.Release == "" || o.Label == "" {
			return errors.Validationf("%s requires a release name and a hotfix name", action)
		}
	default:
		if o.Label == "" {
			return errors.Validationf("%s requires a %s name", action, action.Kind())
		}
	}

	if strings.ContainsAny(o.Label+o.Release, " \t\n") {
		return errors.Validationf("branch names cannot contain whitespace")
	}

	if action.MayMerge() && o.Credential == "" {
		return errors.Validationf("%s may need a three-way merge: a repository password is required", action)
	}
	return nil
}

// TagName is the tag applied to the trunk on a release or hotfix finish, or
// "" for none.
func (o Options) TagName() string {
	if o.NoTag {
		return ""
	}
	if o.Tag != "" {
		return o.Tag
	}
	return o.Label
}

// Message returns the commit message for action on the branch label,
// preferring an explicit one.
func (o Options) Message(action Action) string {
	if o.CommitMessage != "" {
		return o.CommitMessage
	}
	kind := action.Kind()
	if kind == KindReleaseHotfix {
		return fmt.Sprintf("%s: %s Release %s Hotfix [via rpdflow]", o.Label, action.Verb(), o.Release)
	}
	return fmt.Sprintf("%s: %s %s [via rpdflow]", o.Label, action.Verb(), kind.Title())
}
