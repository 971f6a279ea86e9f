package automerge

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/botmerger/internal/logfields"
)

// PullRequestRef references the pull request that is approved and merged in
// a pipeline run.
// HeadCommitSHA is the commit of the CI event the pull request was resolved
// for.
type PullRequestRef struct {
	Number        int
	HTMLURL       string
	HeadCommitSHA string
}

func (p *PullRequestRef) String() string {
	return fmt.Sprintf("#%d (%s)", p.Number, p.HTMLURL)
}

func (p *PullRequestRef) LogFields() []zap.Field {
	return []zap.Field{
		logfields.PullRequest(p.Number),
		logfields.PullRequestURL(p.HTMLURL),
	}
}
