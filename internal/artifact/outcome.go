package artifact

import "fmt"

// Request is one three-way merge: the patch taking Original to Current is
// applied to Modified, producing Output.
type Request struct {
	Original   string
	Current    string
	Modified   string
	Output     string
	Credential string
	AutoOpen   bool
	Tidy       bool
}

// Inputs are the three merge inputs handed to a manual resolution.
type Inputs struct {
	Original   string
	Current    string
	Modified   string
	Credential string
}

func (r Request) Inputs() Inputs {
	return Inputs{
		Original:   r.Original,
		Current:    r.Current,
		Modified:   r.Modified,
		Credential: r.Credential,
	}
}

type Status int

const (
	StatusFailed Status = iota
	StatusSuccess
	StatusResolvedManually
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusResolvedManually:
		return "resolved manually"
	default:
		return "failed"
	}
}

// Outcome is the result of a merge. Output is only meaningful when the merge
// did not fail.
type Outcome struct {
	Status Status
	Output string
	Reason error
}

func Success(output string) Outcome {
	return Outcome{Status: StatusSuccess, Output: output}
}

func ResolvedManually(output string) Outcome {
	return Outcome{Status: StatusResolvedManually, Output: output}
}

func Failed(reason error) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}

func (o Outcome) OK() bool {
	return o.Status != StatusFailed
}

func (o Outcome) String() string {
	if o.OK() {
		return fmt.Sprintf("%s: %s", o.Status, o.Output)
	}
	return fmt.Sprintf("%s: %v", o.Status, o.Reason)
}
