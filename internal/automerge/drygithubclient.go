package automerge

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/botmerger/internal/githubclt"
	"github.com/simplesurance/botmerger/internal/logfields"
)

// DryGithubClient is a github-client that does not do any changes on github.
// Approving and merging is simulated and always succeeds.
// Lookups are forwarded to a wrapped GithubClient.
type DryGithubClient struct {
	clt    GithubClient
	logger *zap.Logger
}

func NewDryGithubClient(clt GithubClient, logger *zap.Logger) *DryGithubClient {
	return &DryGithubClient{
		clt:    clt,
		logger: logger.Named("dry_github_client"),
	}
}

func (c *DryGithubClient) PullRequestsForCommit(ctx context.Context, owner, repo, commitSHA string, limit int) ([]*githubclt.PullRequestSummary, error) {
	return c.clt.PullRequestsForCommit(ctx, owner, repo, commitSHA, limit)
}

func (c *DryGithubClient) ApprovePullRequest(_ context.Context, owner, repo string, pullRequestNumber int, _ string) error {
	c.logger.Info(
		"simulated approving pull request, no review created on github",
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.PullRequest(pullRequestNumber),
	)
	return nil
}

func (c *DryGithubClient) MergePullRequest(_ context.Context, owner, repo string, pullRequestNumber int, _ string) error {
	c.logger.Info(
		"simulated merging pull request, pull request not merged on github",
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.PullRequest(pullRequestNumber),
	)
	return nil
}
