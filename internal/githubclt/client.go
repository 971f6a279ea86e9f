// Package githubclt provides a github API client.
package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v68/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/botmerger/internal/logfields"
	"github.com/simplesurance/botmerger/internal/retryerr"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "github_client"

const mergeMethodSquash = "squash"

const reviewEventApprove = "APPROVE"

var (
	ErrPullRequestIsClosed      = errors.New("pull request is closed")
	ErrPullRequestAlreadyMerged = errors.New("pull request is already merged")
	ErrCommitNotFound           = errors.New("commit not found")
)

// New returns a new github api client that authenticates with an oauth or
// personal access token.
// If oauthAPItoken is empty, requests are sent unauthenticated.
func New(oauthAPItoken string) *Client {
	return NewWithHTTPClient(newHTTPClient(oauthAPItoken))
}

// NewAppInstallation returns a github api client that authenticates as
// installation of a GitHub App.
func NewAppInstallation(appID, installationID int64, privateKeyFile string) (*Client, error) {
	transport, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, appID, installationID, privateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("creating github app installation transport failed: %w", err)
	}

	return NewWithHTTPClient(&http.Client{
		Transport: transport,
		Timeout:   DefaultHTTPClientTimeout,
	}), nil
}

// NewWithHTTPClient returns a github api client that sends requests via httpClient.
func NewWithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		restClt:    github.NewClient(httpClient),
		graphQLClt: githubv4.NewClient(httpClient),
		logger:     zap.L().Named(loggerName),
	}
}

func newHTTPClient(apiToken string) *http.Client {
	if apiToken == "" {
		return &http.Client{
			Timeout: DefaultHTTPClientTimeout,
		}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: apiToken},
	)

	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = DefaultHTTPClientTimeout

	return tc
}

// Client is an github API client.
// All methods return a retryerr.RetryableError when the failure is transient
// and the operation could succeed when it is repeated later.
// This can be e.g. the case when the API ratelimit is exceeded.
type Client struct {
	restClt    *github.Client
	graphQLClt *githubv4.Client
	logger     *zap.Logger
}

// PullRequestSummary describes a pull request that is associated with a
// commit.
type PullRequestSummary struct {
	Number        int
	URL           string
	HeadCommitSHA string
}

// PullRequestsForCommit returns open pull requests that contain the commit
// commitSHA, at most limit are returned.
// The result is ordered by the last update time of the pull requests,
// the most recently updated one first.
// If the commit does not exist in the repository, ErrCommitNotFound is
// returned.
func (clt *Client) PullRequestsForCommit(ctx context.Context, owner, repo, commitSHA string, limit int) ([]*PullRequestSummary, error) {
	type pullRequestNode struct {
		Number     int
		URL        string
		HeadRefOid string
	}

	var q struct {
		Repository struct {
			Object struct {
				Commit struct {
					Oid                    string
					AssociatedPullRequests struct {
						Nodes []pullRequestNode
					} `graphql:"associatedPullRequests(first: $first, states: [OPEN], orderBy: {field: UPDATED_AT, direction: DESC})"`
				} `graphql:"... on Commit"`
			} `graphql:"object(oid: $oid)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	vars := map[string]any{
		"owner": githubv4.String(owner),
		"name":  githubv4.String(repo),
		"oid":   githubv4.GitObjectID(commitSHA),
		"first": githubv4.Int(limit),
	}

	err := clt.graphQLClt.Query(ctx, &q, vars)
	if err != nil {
		return nil, clt.wrapGraphQLRetryableErrors(err)
	}

	commit := q.Repository.Object.Commit
	if commit.Oid == "" {
		return nil, fmt.Errorf("%w: %s", ErrCommitNotFound, commitSHA)
	}

	result := make([]*PullRequestSummary, 0, len(commit.AssociatedPullRequests.Nodes))
	for _, node := range commit.AssociatedPullRequests.Nodes {
		result = append(result, &PullRequestSummary{
			Number:        node.Number,
			URL:           node.URL,
			HeadCommitSHA: node.HeadRefOid,
		})
	}

	return result, nil
}

// ApprovePullRequest submits an approving review with the given body.
func (clt *Client) ApprovePullRequest(ctx context.Context, owner, repo string, pullRequestNumber int, body string) error {
	event := reviewEventApprove

	_, _, err := clt.restClt.PullRequests.CreateReview(ctx, owner, repo, pullRequestNumber, &github.PullRequestReviewRequest{
		Body:  &body,
		Event: &event,
	})

	return clt.wrapRetryableErrors(err)
}

// MergePullRequest squash-merges a pull request.
// The merge only happens if the head commit of the pull request is still
// expectedHeadSHA, if it is empty, the head commit is not checked.
// If the pull request was already merged, ErrPullRequestAlreadyMerged is
// returned. If it was closed without being merged, an error wrapping
// ErrPullRequestIsClosed is returned.
func (clt *Client) MergePullRequest(ctx context.Context, owner, repo string, pullRequestNumber int, expectedHeadSHA string) error {
	logger := clt.logger.With(
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.PullRequest(pullRequestNumber),
		logfields.Commit(expectedHeadSHA),
	)

	res, _, err := clt.restClt.PullRequests.Merge(
		ctx,
		owner,
		repo,
		pullRequestNumber,
		"",
		&github.PullRequestOptions{
			MergeMethod: mergeMethodSquash,
			SHA:         expectedHeadSHA,
		},
	)
	if err == nil {
		if !res.GetMerged() {
			return fmt.Errorf("github did not merge the pull request: %s", res.GetMessage())
		}

		logger.Debug("pull request merged",
			logfields.Event("github_pull_request_merged"),
			zap.String("github.merge_commit", res.GetSHA()),
		)

		return nil
	}

	var respErr *github.ErrorResponse
	if !errors.As(err, &respErr) || respErr.Response == nil {
		return clt.wrapRetryableErrors(err)
	}

	switch respErr.Response.StatusCode {
	case http.StatusMethodNotAllowed, http.StatusConflict, http.StatusUnprocessableEntity:
		// the response does not tell reliably why the PR is not
		// mergeable, the state of the PR is checked instead
		pr, _, getErr := clt.restClt.PullRequests.Get(ctx, owner, repo, pullRequestNumber)
		if getErr != nil {
			logger.Debug("retrieving pull request state after failed merge failed",
				logfields.Event("github_pull_request_get_failed"),
				zap.Error(getErr),
			)

			return clt.wrapRetryableErrors(err)
		}

		if pr.GetMerged() {
			logger.Debug("merge failed, pull request is already merged",
				logfields.Event("github_pull_request_already_merged"),
			)

			return ErrPullRequestAlreadyMerged
		}

		if pr.GetState() == "closed" {
			return fmt.Errorf("%w: %s", ErrPullRequestIsClosed, respErr.Message)
		}
	}

	return clt.wrapRetryableErrors(err)
}

func (clt *Client) wrapRetryableErrors(err error) error {
	switch v := err.(type) {
	case *github.RateLimitError:
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			zap.Int("github_api_rate_limit", v.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", v.Rate.Reset.Time),
		)

		return retryerr.NewRetryableError(err, v.Rate.Reset.Time)

	case *github.AbuseRateLimitError:
		clt.logger.Info(
			"secondary rate limit exceeded",
			logfields.Event("github_api_secondary_rate_limit_exceeded"),
		)

		if d := v.GetRetryAfter(); d > 0 {
			return retryerr.NewRetryableError(err, time.Now().Add(d))
		}

		return retryerr.NewRetryableAnytimeError(err)

	case *github.ErrorResponse:
		if v.Response != nil && v.Response.StatusCode >= 500 && v.Response.StatusCode < 600 {
			return retryerr.NewRetryableAnytimeError(err)
		}
	}

	return err
}

var graphQlHTTPStatusErrRe = regexp.MustCompile(`^non-200 OK status code: ([0-9]+) .*`)

func (clt *Client) wrapGraphQLRetryableErrors(err error) error {
	matches := graphQlHTTPStatusErrRe.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return err
	}

	errcode, atoiErr := strconv.Atoi(matches[1])
	if atoiErr != nil {
		clt.logger.Info(
			"parsing http code from error string failed",
			zap.Error(atoiErr),
			zap.String("error_string", err.Error()),
			zap.String("http_errcode", matches[1]),
		)
		return err
	}

	if errcode >= 500 && errcode < 600 {
		return retryerr.NewRetryableAnytimeError(err)
	}

	return err
}
