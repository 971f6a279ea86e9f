package automerge

import (
	"errors"
	"fmt"

	"github.com/google/go-github/v68/github"
	"go.uber.org/zap"

	"github.com/simplesurance/botmerger/internal/logfields"
)

// Conclusion is the result of a completed CI run.
type Conclusion string

const (
	ConclusionUnknown        Conclusion = ""
	ConclusionSuccess        Conclusion = "success"
	ConclusionFailure        Conclusion = "failure"
	ConclusionCancelled      Conclusion = "cancelled"
	ConclusionNeutral        Conclusion = "neutral"
	ConclusionSkipped        Conclusion = "skipped"
	ConclusionTimedOut       Conclusion = "timed_out"
	ConclusionActionRequired Conclusion = "action_required"
	ConclusionStale          Conclusion = "stale"
	ConclusionStartupFailure Conclusion = "startup_failure"
)

// ParseConclusion converts a GitHub workflow run conclusion to a Conclusion.
// Unsupported values are returned as ConclusionUnknown.
func ParseConclusion(s string) Conclusion {
	switch c := Conclusion(s); c {
	case ConclusionSuccess,
		ConclusionFailure,
		ConclusionCancelled,
		ConclusionNeutral,
		ConclusionSkipped,
		ConclusionTimedOut,
		ConclusionActionRequired,
		ConclusionStale,
		ConclusionStartupFailure:
		return c
	default:
		return ConclusionUnknown
	}
}

func (c Conclusion) String() string {
	if c == ConclusionUnknown {
		return "unknown"
	}

	return string(c)
}

const workflowRunActionCompleted = "completed"

var ErrWorkflowRunNotCompleted = errors.New("workflow run is not completed")

// CIEvent describes a completed CI run.
type CIEvent struct {
	WorkflowName  string
	HeadCommitSHA string
	ActorLogin    string
	Conclusion    Conclusion

	// RunID is 0 when it is unknown.
	RunID int64
	// DeliveryID is the ID of the GitHub webhook delivery, it is empty
	// if the event was not received via a webhook.
	DeliveryID      string
	RepositoryOwner string
	Repository      string
}

// NewCIEventFromWorkflowRun converts a GitHub workflow_run webhook event to
// a CIEvent.
// ErrWorkflowRunNotCompleted is returned if the action of the event is not
// "completed".
func NewCIEventFromWorkflowRun(ev *github.WorkflowRunEvent) (*CIEvent, error) {
	if ev.GetAction() != workflowRunActionCompleted {
		return nil, fmt.Errorf("%w: action is %q", ErrWorkflowRunNotCompleted, ev.GetAction())
	}

	run := ev.GetWorkflowRun()
	if run == nil {
		return nil, errors.New("event has no workflow_run field")
	}

	if run.GetHeadSHA() == "" {
		return nil, errors.New("workflow run has an empty head_sha field")
	}

	workflowName := run.GetName()
	if workflowName == "" {
		workflowName = ev.GetWorkflow().GetName()
	}

	repo := ev.GetRepo()
	if repo == nil {
		repo = run.GetRepository()
	}

	return &CIEvent{
		WorkflowName:    workflowName,
		HeadCommitSHA:   run.GetHeadSHA(),
		ActorLogin:      run.GetActor().GetLogin(),
		Conclusion:      ParseConclusion(run.GetConclusion()),
		RunID:           run.GetID(),
		RepositoryOwner: repo.GetOwner().GetLogin(),
		Repository:      repo.GetName(),
	}, nil
}

func (e *CIEvent) String() string {
	return fmt.Sprintf("%s run %d of %s (conclusion: %s, actor: %s)",
		e.WorkflowName, e.RunID, e.HeadCommitSHA, e.Conclusion, e.ActorLogin,
	)
}

// LogFields returns fields describing the event, fields with empty values
// are omitted.
func (e *CIEvent) LogFields() []zap.Field {
	fields := make([]zap.Field, 0, 8)

	if e.DeliveryID != "" {
		fields = append(fields, logfields.DeliveryID(e.DeliveryID))
	}

	if e.RepositoryOwner != "" {
		fields = append(fields, logfields.RepositoryOwner(e.RepositoryOwner))
	}

	if e.Repository != "" {
		fields = append(fields, logfields.Repository(e.Repository))
	}

	if e.WorkflowName != "" {
		fields = append(fields, logfields.Workflow(e.WorkflowName))
	}

	if e.RunID != 0 {
		fields = append(fields, logfields.WorkflowRunID(e.RunID))
	}

	return append(fields,
		logfields.Commit(e.HeadCommitSHA),
		logfields.Actor(e.ActorLogin),
		logfields.Conclusion(e.Conclusion.String()),
	)
}
