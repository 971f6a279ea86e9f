package githubclt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v68/github"
	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/botmerger/internal/retryerr"
)

const (
	testOwner = "testman"
	testRepo  = "repo"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	restClt := github.NewClient(srv.Client())
	baseURL, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	restClt.BaseURL = baseURL

	return &Client{
		restClt:    restClt,
		graphQLClt: githubv4.NewEnterpriseClient(srv.URL+"/graphql", srv.Client()),
		logger:     zap.L(),
	}
}

func TestWrapRetryableErrorsGraphql(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	clt := newTestClient(t, mux)

	prs, err := clt.PullRequestsForCommit(context.Background(), testOwner, testRepo, "abc123", 1)
	require.Error(t, err)
	assert.Nil(t, prs)

	var retryableErr *retryerr.RetryableError
	assert.ErrorAs(t, err, &retryableErr)
}

func TestWrapRetryableErrorsGraphqlWithNonStatusErr(t *testing.T) {
	err := errors.New("error")
	wrappedErr := (&Client{}).wrapGraphQLRetryableErrors(err)
	assert.Equal(t, err, wrappedErr)
}

func TestPullRequestsForCommit(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	var reqBody struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &reqBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data": {"repository": {"object": {
			"oid": "abc123",
			"associatedPullRequests": {"nodes": [
				{"number": 42, "url": "https://github.com/testman/repo/pull/42", "headRefOid": "abc123"}
			]}
		}}}}`)
	})

	clt := newTestClient(t, mux)

	prs, err := clt.PullRequestsForCommit(context.Background(), testOwner, testRepo, "abc123", 1)
	require.NoError(t, err)
	require.Len(t, prs, 1)

	assert.Equal(t, 42, prs[0].Number)
	assert.Equal(t, "https://github.com/testman/repo/pull/42", prs[0].URL)
	assert.Equal(t, "abc123", prs[0].HeadCommitSHA)

	assert.Equal(t, "abc123", reqBody.Variables["oid"])
	assert.EqualValues(t, 1, reqBody.Variables["first"])
	assert.Contains(t, reqBody.Query, "associatedPullRequests(first: $first, states: [OPEN]")
}

func TestPullRequestsForCommitNoPullRequests(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data": {"repository": {"object": {
			"oid": "abc123",
			"associatedPullRequests": {"nodes": []}
		}}}}`)
	})

	clt := newTestClient(t, mux)

	prs, err := clt.PullRequestsForCommit(context.Background(), testOwner, testRepo, "abc123", 1)
	require.NoError(t, err)
	assert.Empty(t, prs)
}

func TestPullRequestsForCommitUnknownCommit(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data": {"repository": {"object": null}}}`)
	})

	clt := newTestClient(t, mux)

	prs, err := clt.PullRequestsForCommit(context.Background(), testOwner, testRepo, "abc123", 1)
	assert.ErrorIs(t, err, ErrCommitNotFound)
	assert.Nil(t, prs)
}

func TestApprovePullRequest(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	var review github.PullRequestReviewRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/testman/repo/pulls/42/reviews", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&review))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": 1, "state": "APPROVED"}`)
	})

	clt := newTestClient(t, mux)

	err := clt.ApprovePullRequest(context.Background(), testOwner, testRepo, 42, "lgtm")
	require.NoError(t, err)

	assert.Equal(t, "APPROVE", review.GetEvent())
	assert.Equal(t, "lgtm", review.GetBody())
}

func TestApprovePullRequestServerErrorIsRetryable(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/testman/repo/pulls/42/reviews", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	clt := newTestClient(t, mux)

	err := clt.ApprovePullRequest(context.Background(), testOwner, testRepo, 42, "lgtm")
	require.Error(t, err)
	assert.True(t, retryerr.IsRetryable(err))
}

func TestApprovePullRequestForbiddenIsNotRetryable(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/testman/repo/pulls/42/reviews", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"message": "Unprocessable Entity", "errors": [{"resource": "PullRequestReview", "code": "custom", "message": "Can not approve your own pull request"}]}`)
	})

	clt := newTestClient(t, mux)

	err := clt.ApprovePullRequest(context.Background(), testOwner, testRepo, 42, "lgtm")
	require.Error(t, err)
	assert.False(t, retryerr.IsRetryable(err))
}

func TestMergePullRequest(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	var mergeReq map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/testman/repo/pulls/42/merge", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&mergeReq))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"sha": "def456", "merged": true, "message": "Pull Request successfully merged"}`)
	})

	clt := newTestClient(t, mux)

	err := clt.MergePullRequest(context.Background(), testOwner, testRepo, 42, "abc123")
	require.NoError(t, err)

	assert.Equal(t, "squash", mergeReq["merge_method"])
	assert.Equal(t, "abc123", mergeReq["sha"])
}

func TestMergePullRequestAlreadyMerged(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/testman/repo/pulls/42/merge", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = io.WriteString(w, `{"message": "Pull Request is not mergeable"}`)
	})
	mux.HandleFunc("/repos/testman/repo/pulls/42", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"number": 42, "state": "closed", "merged": true}`)
	})

	clt := newTestClient(t, mux)

	err := clt.MergePullRequest(context.Background(), testOwner, testRepo, 42, "abc123")
	assert.ErrorIs(t, err, ErrPullRequestAlreadyMerged)
}

func TestMergePullRequestClosed(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/testman/repo/pulls/42/merge", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = io.WriteString(w, `{"message": "Pull Request is not mergeable"}`)
	})
	mux.HandleFunc("/repos/testman/repo/pulls/42", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"number": 42, "state": "closed", "merged": false}`)
	})

	clt := newTestClient(t, mux)

	err := clt.MergePullRequest(context.Background(), testOwner, testRepo, 42, "abc123")
	assert.ErrorIs(t, err, ErrPullRequestIsClosed)
	assert.NotErrorIs(t, err, ErrPullRequestAlreadyMerged)
}

func TestMergePullRequestConflict(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/testman/repo/pulls/42/merge", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = io.WriteString(w, `{"message": "Pull Request is not mergeable"}`)
	})
	mux.HandleFunc("/repos/testman/repo/pulls/42", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"number": 42, "state": "open", "merged": false, "mergeable_state": "dirty"}`)
	})

	clt := newTestClient(t, mux)

	err := clt.MergePullRequest(context.Background(), testOwner, testRepo, 42, "abc123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPullRequestAlreadyMerged)
	assert.NotErrorIs(t, err, ErrPullRequestIsClosed)
	assert.False(t, retryerr.IsRetryable(err))

	var respErr *github.ErrorResponse
	assert.ErrorAs(t, err, &respErr)
}
