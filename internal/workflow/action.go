// Package workflow is the branch lifecycle state machine. It drives the
// version control backends and hands artifact conflicts to the merge engine.
package workflow

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/corpeningc/rpdflow/internal/errors"
)

type Action string

const (
	StartFeature        Action = "startFeature"
	FinishFeature       Action = "finishFeature"
	RefreshFeature      Action = "refreshFeature"
	StartRelease        Action = "startRelease"
	FinishRelease       Action = "finishRelease"
	BugfixRelease       Action = "bugfixRelease"
	StartHotfix         Action = "startHotfix"
	FinishHotfix        Action = "finishHotfix"
	StartReleaseHotfix  Action = "startReleaseHotfix"
	FinishReleaseHotfix Action = "finishReleaseHotfix"
	StandaloneMerge     Action = "standaloneMerge"
	Reintegrate         Action = "reintegrate"
)

var Actions = []Action{
	StartFeature, FinishFeature, RefreshFeature,
	StartRelease, FinishRelease, BugfixRelease,
	StartHotfix, FinishHotfix,
	StartReleaseHotfix, FinishReleaseHotfix,
	StandaloneMerge, Reintegrate,
}

func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !lo.Contains(Actions, a) {
		return "", errors.Validationf("unknown action %q", s)
	}
	return a, nil
}

// Kind is the role of a branch.
type Kind string

const (
	KindFeature       Kind = "feature"
	KindRelease       Kind = "release"
	KindHotfix        Kind = "hotfix"
	KindReleaseHotfix Kind = "releaseHotfix"
)

func (k Kind) Title() string {
	switch k {
	case KindReleaseHotfix:
		return "Release Hotfix"
	default:
		return strings.ToUpper(string(k[:1])) + string(k[1:])
	}
}

// Kind returns the branch role the action operates on, or "" for actions
// that do not address a lifecycle branch.
func (a Action) Kind() Kind {
	switch a {
	case StartFeature, FinishFeature, RefreshFeature:
		return KindFeature
	case StartRelease, FinishRelease, BugfixRelease:
		return KindRelease
	case StartHotfix, FinishHotfix:
		return KindHotfix
	case StartReleaseHotfix, FinishReleaseHotfix:
		return KindReleaseHotfix
	}
	return ""
}

// Verb is the lifecycle step, used in commit messages.
func (a Action) Verb() string {
	switch {
	case strings.HasPrefix(string(a), "start"):
		return "Start"
	case strings.HasPrefix(string(a), "finish"):
		return "Finish"
	case strings.HasPrefix(string(a), "refresh"):
		return "Refresh"
	case a == BugfixRelease:
		return "Bugfix"
	}
	return ""
}

// CentralizedOnly reports whether only the centralized backend supports a.
func (a Action) CentralizedOnly() bool {
	return a == StartReleaseHotfix || a == FinishReleaseHotfix || a == Reintegrate
}

// DistributedOnly reports whether only the distributed backend supports a.
func (a Action) DistributedOnly() bool {
	return a == BugfixRelease
}

// NeedsBackend is false for actions that never touch version control.
func (a Action) NeedsBackend() bool {
	return a != StandaloneMerge
}

// MayMerge reports whether the action can end in a three-way merge and so
// needs the artifact credential.
func (a Action) MayMerge() bool {
	return !strings.HasPrefix(string(a), "start")
}

// BranchState is the lifecycle position of a branch after an action.
type BranchState int

const (
	NotStarted BranchState = iota
	Active
	MergedToTargets
	Refreshed
	Deleted
)

func (s BranchState) String() string {
	switch s {
	case Active:
		return "active"
	case MergedToTargets:
		return "merged"
	case Refreshed:
		return "refreshed"
	case Deleted:
		return "deleted"
	default:
		return "not started"
	}
}

// Report summarises what an action did.
type Report struct {
	Action      Action
	Branch      string
	State       BranchState
	Merged      []string
	Outstanding []string
	Output      string
}

func (r Report) String() string {
	if r.Branch == "" {
		return fmt.Sprintf("%s: %s", r.Action, r.Output)
	}
	return fmt.Sprintf("%s: %s is %s", r.Action, r.Branch, r.State)
}
