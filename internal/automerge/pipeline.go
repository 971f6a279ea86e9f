package automerge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/botmerger/internal/logfields"
)

const loggerName = "automerge"

// Config are the settings of a Pipeline.
type Config struct {
	Repository   Repository
	TrustedActor string
	// ApproveComment is the body of the approving review, if it is empty
	// DefaultApproveComment is used.
	ApproveComment string
}

// Pipeline processes CI events.
// Run can be called concurrently, runs do not share state.
type Pipeline struct {
	filter   *Filter
	resolver *Resolver
	executor *Executor
	logger   *zap.Logger
}

func NewPipeline(clt GithubClient, cfg *Config) *Pipeline {
	return &Pipeline{
		filter:   NewFilter(cfg.TrustedActor),
		resolver: NewResolver(clt, cfg.Repository),
		executor: NewExecutor(clt, cfg.Repository, cfg.ApproveComment),
		logger:   zap.L().Named(loggerName),
	}
}

// Run processes ev and returns the outcome.
// The returned outcome is never nil.
// When the run failed, the error is an *UpstreamQueryError, *ApprovalError
// or *MergeError.
func (p *Pipeline) Run(ctx context.Context, ev *CIEvent) (*Outcome, error) {
	if ev == nil {
		p.logger.Debug("nil event ignored", logfields.Event("ci_event_rejected"))
		metrics.RunFinished(StatusRejected, 0)
		return &Outcome{Status: StatusRejected}, nil
	}

	logger := p.logger.With(ev.LogFields()...)
	startTime := time.Now()

	outcome, err := p.run(ctx, ev)

	metrics.RunFinished(outcome.Status, time.Since(startTime))

	logger = logger.With(logfields.Status(outcome.Status.String()))
	if outcome.PullRequest != nil {
		logger = logger.With(outcome.PullRequest.LogFields()...)
	}

	switch outcome.Status {
	case StatusRejected:
		logger.Debug(
			"event ignored, run did not succeed or actor is not trusted",
			logfields.Event("ci_event_rejected"),
		)

	case StatusNoPRFound:
		logger.Info(
			"commit does not belong to an open pull request",
			logfields.Event("pull_request_not_found"),
		)

	case StatusMergedOK:
		logger.Info("pull request approved and merged", logfields.Event("pull_request_merged"))

	case StatusMergeNoop:
		logger.Info("pull request approved, it was already merged", logfields.Event("pull_request_merge_noop"))

	default:
		logger.Error(
			"processing ci event failed",
			logfields.Event("ci_event_processing_failed"),
			zap.Error(err),
		)
	}

	return outcome, err
}

func (p *Pipeline) run(ctx context.Context, ev *CIEvent) (*Outcome, error) {
	if !p.filter.Admit(ev) {
		return &Outcome{Status: StatusRejected}, nil
	}

	pr, err := p.resolver.Resolve(ctx, ev.HeadCommitSHA)
	if err != nil {
		return &Outcome{Status: StatusQueryFailed, FailureReason: err.Error()}, err
	}

	if pr == nil {
		return &Outcome{Status: StatusNoPRFound}, nil
	}

	return p.executor.Execute(ctx, pr)
}
