package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names one class of the workflow error taxonomy.
type Kind string

const (
	KindNone                         Kind = ""
	KindConfigInvalid                Kind = "ConfigInvalid"
	KindValidation                   Kind = "ValidationError"
	KindMissingInput                 Kind = "MissingInput"
	KindOutputLocked                 Kind = "OutputLocked"
	KindCompareFailed                Kind = "CompareFailed"
	KindToolError                    Kind = "ToolError"
	KindManualMergeIncomplete        Kind = "ManualMergeIncomplete"
	KindConflictCandidatesUnresolved Kind = "ConflictCandidatesUnresolved"
	KindTreeConflict                 Kind = "TreeConflict"
	KindBackendCommandFailed         Kind = "BackendCommandFailed"
	KindPartialFinish                Kind = "PartialFinish"
)

// Sentinel errors, one per Kind, for use with errors.Is.
var (
	ErrConfigInvalid                = errors.New("invalid configuration")
	ErrValidation                   = errors.New("validation failed")
	ErrMissingInput                 = errors.New("merge input missing")
	ErrOutputLocked                 = errors.New("output file could not be removed")
	ErrCompareFailed                = errors.New("compare step did not produce a patch")
	ErrToolError                    = errors.New("patch step failed without a recognised conflict")
	ErrManualMergeIncomplete        = errors.New("manual merge output not found")
	ErrConflictCandidatesUnresolved = errors.New("merge candidates could not be identified")
	ErrTreeConflict                 = errors.New("tree conflict")
	ErrBackendCommandFailed         = errors.New("version control command failed")
	ErrPartialFinish                = errors.New("finish incomplete")
)

var kinds = []struct {
	kind Kind
	err  error
}{
	{KindPartialFinish, ErrPartialFinish},
	{KindTreeConflict, ErrTreeConflict},
	{KindConflictCandidatesUnresolved, ErrConflictCandidatesUnresolved},
	{KindManualMergeIncomplete, ErrManualMergeIncomplete},
	{KindToolError, ErrToolError},
	{KindCompareFailed, ErrCompareFailed},
	{KindOutputLocked, ErrOutputLocked},
	{KindMissingInput, ErrMissingInput},
	{KindValidation, ErrValidation},
	{KindConfigInvalid, ErrConfigInvalid},
	{KindBackendCommandFailed, ErrBackendCommandFailed},
}

// KindOf returns the most specific Kind found in err's chain.
// The order matters: a PartialFinish wraps the per-target causes, so it is
// checked before the kinds those causes may carry.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindNone
}

// New creates a new error with the given message.
func New(message string) error {
	return errors.New(message)
}

// Errorf creates a new formatted error.
func Errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

// Wrap wraps an error with a message for better context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message for better context.
func Wrapf(err error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether target is in err's chain.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Validationf returns a ValidationError with a formatted message.
func Validationf(format string, args ...any) error {
	return Wrapf(ErrValidation, format, args...)
}

// BackendError represents a failed version control command.
// It captures the binary, the operation and the command output.
type BackendError struct {
	Binary    string
	Operation string
	Args      []string
	Output    string
	Err       error
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Binary, e.Operation)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg = fmt.Sprintf("%s: %s", msg, out)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *BackendError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrBackendCommandFailed}
	}
	return []error{ErrBackendCommandFailed, e.Err}
}

// NewBackendError creates a BackendError for the given command.
func NewBackendError(binary, operation string, args []string, output string, err error) *BackendError {
	return &BackendError{
		Binary:    binary,
		Operation: operation,
		Args:      args,
		Output:    output,
		Err:       err,
	}
}

// MergeError reports a failed step of the artifact merge protocol.
type MergeError struct {
	Step    string
	Paths   []string
	LogFile string
	Err     error
}

func (e *MergeError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Step, e.Err)
	if len(e.Paths) > 0 {
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(e.Paths, ", "))
	}
	if e.LogFile != "" {
		msg = fmt.Sprintf("%s; see %s for details", msg, e.LogFile)
	}
	return msg
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// NewMergeError creates a MergeError for the given step.
func NewMergeError(step string, err error, logFile string, paths ...string) *MergeError {
	return &MergeError{
		Step:    step,
		Paths:   paths,
		LogFile: logFile,
		Err:     err,
	}
}

// ConfigError represents an error in the application configuration.
type ConfigError struct {
	Parameter string
	Value     any
	Err       error
}

func (e *ConfigError) Error() string {
	if e.Value != nil && e.Value != "" {
		return fmt.Sprintf("configuration error for %s = %v: %v", e.Parameter, e.Value, e.Err)
	}
	return fmt.Sprintf("configuration error for %s: %v", e.Parameter, e.Err)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrConfigInvalid, e.Err}
}

// NewConfigError creates a new ConfigError with the given parameters.
func NewConfigError(parameter string, value any, err error) *ConfigError {
	return &ConfigError{
		Parameter: parameter,
		Value:     value,
		Err:       err,
	}
}

// CandidatesError is returned when the merge-left or merge-right file of a
// conflicting artifact cannot be identified.
type CandidatesError struct {
	Path       string
	Candidates []string
}

func (e *CandidatesError) Error() string {
	return fmt.Sprintf("failed to identify original/modified merge candidates for %s; candidates: [%s]",
		e.Path, strings.Join(e.Candidates, ", "))
}

func (e *CandidatesError) Unwrap() error {
	return ErrConflictCandidatesUnresolved
}

// UnsupportedConflictError is returned when a reintegration leaves text
// conflicts on files that are not artifacts. Only artifacts are merged.
type UnsupportedConflictError struct {
	WorkingCopy string
	Paths       []string
}

func (e *UnsupportedConflictError) Error() string {
	return fmt.Sprintf("text conflicts on non-artifact files in working copy %s: %s",
		e.WorkingCopy, strings.Join(e.Paths, ", "))
}

func (e *UnsupportedConflictError) Unwrap() error {
	return ErrConflictCandidatesUnresolved
}

// TreeConflictError is returned when a reintegration reports tree conflicts.
type TreeConflictError struct {
	WorkingCopy string
	Paths       []string
}

func (e *TreeConflictError) Error() string {
	msg := fmt.Sprintf("tree conflicts in working copy %s", e.WorkingCopy)
	if len(e.Paths) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(e.Paths, ", "))
	}
	return msg
}

func (e *TreeConflictError) Unwrap() error {
	return ErrTreeConflict
}

// ManualMergeError is returned when neither candidate output of a manual
// merge exists after the operator resumed.
type ManualMergeError struct {
	Checked []string
}

func (e *ManualMergeError) Error() string {
	return fmt.Sprintf("output not found, looked for %s", strings.Join(e.Checked, " or "))
}

func (e *ManualMergeError) Unwrap() error {
	return ErrManualMergeIncomplete
}

// PartialFinishError reports a finish where some merge targets succeeded and
// others did not. Pending lists merged targets whose push or tag failed.
// Cause aggregates the per-target failures.
type PartialFinishError struct {
	Branch      string
	Merged      []string
	Outstanding []string
	Pending     []string
	Cause       error
}

func (e *PartialFinishError) Error() string {
	msg := e.Branch + " is still active"
	if len(e.Outstanding) > 0 {
		msg = fmt.Sprintf("%s; outstanding targets: %s", msg, strings.Join(e.Outstanding, ", "))
	}
	if len(e.Pending) > 0 {
		msg = fmt.Sprintf("%s; push or tag pending on: %s", msg, strings.Join(e.Pending, ", "))
	}
	if len(e.Merged) > 0 {
		msg = fmt.Sprintf("%s (merged: %s)", msg, strings.Join(e.Merged, ", "))
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *PartialFinishError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrPartialFinish}
	}
	return []error{ErrPartialFinish, e.Cause}
}
