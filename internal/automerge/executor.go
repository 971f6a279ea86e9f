package automerge

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/simplesurance/botmerger/internal/githubclt"
	"github.com/simplesurance/botmerger/internal/logfields"
)

// DefaultApproveComment is the body of the approving review when none is
// configured.
const DefaultApproveComment = "Approved automatically: the pull request was opened by the trusted dependency update actor and CI succeeded."

// Executor approves and squash-merges pull requests.
type Executor struct {
	clt            GithubClient
	repo           Repository
	approveComment string
	logger         *zap.Logger
}

func NewExecutor(clt GithubClient, repo Repository, approveComment string) *Executor {
	if approveComment == "" {
		approveComment = DefaultApproveComment
	}

	return &Executor{
		clt:            clt,
		repo:           repo,
		approveComment: approveComment,
		logger:         zap.L().Named(loggerName).Named("executor"),
	}
}

// Execute approves the pull request and then squash-merges it.
//
// If approving fails, the merge is not attempted and an *ApprovalError is
// returned.
// If merging fails, a *MergeError is returned, the approval is not
// reverted.
// If the pull request was already merged, the outcome has the status
// StatusMergeNoop and no error is returned.
func (e *Executor) Execute(ctx context.Context, pr *PullRequestRef) (*Outcome, error) {
	logger := e.logger.With(pr.LogFields()...)
	outcome := Outcome{PullRequest: pr}

	err := e.clt.ApprovePullRequest(ctx, e.repo.Owner, e.repo.Name, pr.Number, e.approveComment)
	if err != nil {
		outcome.Status = StatusApprovalFailed
		outcome.FailureReason = err.Error()

		return &outcome, &ApprovalError{PullRequestNumber: pr.Number, Err: err}
	}

	outcome.Approved = true
	logger.Debug("pull request approved", logfields.Event("pull_request_approved"))

	err = e.clt.MergePullRequest(ctx, e.repo.Owner, e.repo.Name, pr.Number, pr.HeadCommitSHA)
	if err != nil {
		if errors.Is(err, githubclt.ErrPullRequestAlreadyMerged) {
			logger.Debug(
				"pull request was already merged",
				logfields.Event("pull_request_already_merged"),
			)

			outcome.Status = StatusMergeNoop
			outcome.Merged = true

			return &outcome, nil
		}

		outcome.Status = StatusMergeFailed
		outcome.FailureReason = err.Error()

		return &outcome, &MergeError{PullRequestNumber: pr.Number, Err: err}
	}

	outcome.Status = StatusMergedOK
	outcome.Merged = true

	return &outcome, nil
}
