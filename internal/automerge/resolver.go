package automerge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/botmerger/internal/logfields"
)

// Resolver finds the pull request of a commit.
type Resolver struct {
	clt    GithubClient
	repo   Repository
	logger *zap.Logger
}

func NewResolver(clt GithubClient, repo Repository) *Resolver {
	return &Resolver{
		clt:    clt,
		repo:   repo,
		logger: zap.L().Named(loggerName).Named("resolver"),
	}
}

// Resolve returns the open pull request that contains the commit commitSHA.
// If the commit does not belong to an open pull request or is not the head
// commit of the pull request, nil is returned.
//
// Only 1 pull request is requested. If the commit is part of multiple open
// pull requests, the most recently updated one is used. This is best-effort,
// no further disambiguation is done.
//
// An *UpstreamQueryError is returned when the lookup failed or returned an
// invalid result.
func (r *Resolver) Resolve(ctx context.Context, commitSHA string) (*PullRequestRef, error) {
	prs, err := r.clt.PullRequestsForCommit(ctx, r.repo.Owner, r.repo.Name, commitSHA, 1)
	if err != nil {
		return nil, &UpstreamQueryError{CommitSHA: commitSHA, Err: err}
	}

	if len(prs) == 0 {
		return nil, nil
	}

	first := prs[0]
	if first == nil {
		return nil, &UpstreamQueryError{CommitSHA: commitSHA, Err: errors.New("api returned a nil pull request")}
	}

	if first.Number <= 0 {
		return nil, &UpstreamQueryError{
			CommitSHA: commitSHA,
			Err:       fmt.Errorf("api returned pull request with invalid number: %d", first.Number),
		}
	}

	if first.URL == "" {
		return nil, &UpstreamQueryError{
			CommitSHA: commitSHA,
			Err:       fmt.Errorf("api returned pull request #%d with empty url", first.Number),
		}
	}

	if first.HeadCommitSHA != commitSHA {
		r.logger.Info(
			"commit is not the head commit of the pull request, the pull request was not tested with its current head",
			logfields.Event("pull_request_head_commit_differs"),
			logfields.Commit(commitSHA),
			logfields.PullRequest(first.Number),
			zap.String("github.pull_request_head_commit", first.HeadCommitSHA),
		)

		return nil, nil
	}

	return &PullRequestRef{
		Number:        first.Number,
		HTMLURL:       first.URL,
		HeadCommitSHA: first.HeadCommitSHA,
	}, nil
}
