package automerge

import "fmt"

// Status is the terminal state of a pipeline run.
type Status uint8

const (
	StatusUndefined Status = iota
	StatusRejected
	StatusNoPRFound
	StatusQueryFailed
	StatusApprovalFailed
	StatusMergeFailed
	StatusMergedOK
	StatusMergeNoop
)

var statusStrings = [...]string{
	StatusUndefined:      "undefined",
	StatusRejected:       "rejected",
	StatusNoPRFound:      "no-pr-found",
	StatusQueryFailed:    "query-failed",
	StatusApprovalFailed: "approval-failed",
	StatusMergeFailed:    "merge-failed",
	StatusMergedOK:       "merged-ok",
	StatusMergeNoop:      "merge-noop",
}

func (s Status) String() string {
	if int(s) > len(statusStrings)-1 {
		return fmt.Sprintf("unsupported Status value: %d", s)
	}

	return statusStrings[s]
}

// IsFailure returns true if the run was aborted because of an error.
// Rejected events and commits without pull requests are not failures.
func (s Status) IsFailure() bool {
	switch s {
	case StatusQueryFailed, StatusApprovalFailed, StatusMergeFailed:
		return true
	default:
		return false
	}
}

// Outcome is the result of a pipeline run.
type Outcome struct {
	Status Status
	// PullRequest is nil if the run terminated before a pull request was
	// resolved.
	PullRequest *PullRequestRef
	Approved    bool
	// Merged is true if the pull request was merged by the run or was
	// already merged before.
	Merged bool
	// FailureReason is set when Status.IsFailure() is true.
	FailureReason string
}

func (o *Outcome) String() string {
	if o.PullRequest == nil {
		return o.Status.String()
	}

	if o.FailureReason != "" {
		return fmt.Sprintf("%s: pull request %s: %s", o.Status, o.PullRequest, o.FailureReason)
	}

	return fmt.Sprintf("%s: pull request %s", o.Status, o.PullRequest)
}
