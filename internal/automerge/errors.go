package automerge

import "fmt"

// UpstreamQueryError is returned when looking up the pull request for a
// commit failed.
type UpstreamQueryError struct {
	CommitSHA string
	Err       error
}

func (e *UpstreamQueryError) Error() string {
	return fmt.Sprintf("querying pull requests for commit %s failed: %s", e.CommitSHA, e.Err)
}

func (e *UpstreamQueryError) Unwrap() error {
	return e.Err
}

// ApprovalError is returned when approving a pull request failed.
type ApprovalError struct {
	PullRequestNumber int
	Err               error
}

func (e *ApprovalError) Error() string {
	return fmt.Sprintf("approving pull request #%d failed: %s", e.PullRequestNumber, e.Err)
}

func (e *ApprovalError) Unwrap() error {
	return e.Err
}

// MergeError is returned when merging a pull request failed.
// A pull request that was already merged does not cause a MergeError.
type MergeError struct {
	PullRequestNumber int
	Err               error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merging pull request #%d failed: %s", e.PullRequestNumber, e.Err)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}
