package errors

// Remedy returns the manual remediation an operator should follow after err.
// It returns an empty string when there is nothing more specific to say than
// the error itself.
func Remedy(err error) string {
	switch KindOf(err) {
	case KindConfigInvalid:
		return "Fix the configuration file (or the RPDFLOW_* environment overrides) and re-run."
	case KindValidation:
		return "Correct the command arguments and re-run."
	case KindMissingInput:
		return "Check that all three merge inputs exist before re-running."
	case KindOutputLocked:
		return "Close the output file in the administration tool or make it writable, then re-run."
	case KindCompareFailed:
		return "Inspect the compare log; the merge inputs were left in place for diagnosis."
	case KindToolError:
		return "Inspect the patch log, complete the merge manually, or discard the changes on the branch."
	case KindManualMergeIncomplete:
		return "Save the merged repository under one of the listed names, then re-run the action."
	case KindConflictCandidatesUnresolved:
		return "Resolve the conflict in the working copy by hand; the candidate listing is shown above."
	case KindTreeConflict:
		return "Fix and commit the conflicted working copy manually; tree conflicts are never resolved automatically."
	case KindPartialFinish:
		return "Resolve the outstanding merges manually, then re-run finish; merged targets are not merged again and a failed push or tag is retried."
	case KindBackendCommandFailed:
		return "Inspect the version control output above, fix the repository state and re-run."
	}
	return ""
}
