package automerge

import (
	"context"
	"fmt"

	"github.com/simplesurance/botmerger/internal/githubclt"
)

//go:generate mockgen -destination mocks/mock_githubclient.go -package mocks . GithubClient

// GithubClient is the subset of the GitHub API used by pipeline runs.
type GithubClient interface {
	PullRequestsForCommit(ctx context.Context, owner, repo, commitSHA string, limit int) ([]*githubclt.PullRequestSummary, error)
	ApprovePullRequest(ctx context.Context, owner, repo string, pullRequestNumber int, body string) error
	MergePullRequest(ctx context.Context, owner, repo string, pullRequestNumber int, expectedHeadSHA string) error
}

// Repository identifies a GitHub repository.
type Repository struct {
	Owner string
	Name  string
}

func (r *Repository) String() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Name)
}
