package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	go_github "github.com/google/go-github/v68/github"
	"go.uber.org/zap"

	"github.com/simplesurance/botmerger/internal/automerge"
	"github.com/simplesurance/botmerger/internal/logfields"
	"github.com/simplesurance/botmerger/internal/retryerr"
)

const (
	exitCodeOK      = 0
	exitCodeFailure = 1
	// exitCodeTempFailure is EX_TEMPFAIL from sysexits.h, the event can be
	// redelivered later.
	exitCodeTempFailure = 75
)

type runner interface {
	Run(context.Context, *automerge.CIEvent) (*automerge.Outcome, error)
}

// processEventFile runs the pipeline for the workflow_run webhook payload
// stored in path.
// The terminal status is written to out, the returned value is the exit
// code of the process.
func processEventFile(ctx context.Context, r runner, repo automerge.Repository, path string, out io.Writer) int {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error(
			"reading event file failed",
			logfields.Event("event_file_read_failed"),
			zap.String("path", path),
			zap.Error(err),
		)
		return exitCodeFailure
	}

	outcome, err := processEvent(ctx, r, repo, data)
	if outcome == nil {
		logger.Error(
			"parsing event file failed",
			logfields.Event("event_file_parsing_failed"),
			zap.String("path", path),
			zap.Error(err),
		)
		return exitCodeFailure
	}

	fmt.Fprintln(out, outcome.Status.String())

	return exitCode(outcome, err)
}

// processEvent parses a workflow_run webhook payload and runs the pipeline
// for it.
// If payload can not be parsed, nil and an error is returned.
// Runs that are not completed yet and runs of other repositories than repo
// are not processed, their outcome is StatusRejected.
func processEvent(ctx context.Context, r runner, repo automerge.Repository, payload []byte) (*automerge.Outcome, error) {
	ev, err := go_github.ParseWebHook("workflow_run", payload)
	if err != nil {
		return nil, err
	}

	wrEv, ok := ev.(*go_github.WorkflowRunEvent)
	if !ok {
		return nil, fmt.Errorf("parsed event has unexpected type %T", ev)
	}

	ciEvent, err := automerge.NewCIEventFromWorkflowRun(wrEv)
	if err != nil {
		if errors.Is(err, automerge.ErrWorkflowRunNotCompleted) {
			logger.Info(
				"workflow run is not completed, event ignored",
				logfields.Event("workflow_run_not_completed"),
			)
			return &automerge.Outcome{Status: automerge.StatusRejected}, nil
		}

		return nil, err
	}

	if !strings.EqualFold(ciEvent.RepositoryOwner, repo.Owner) || !strings.EqualFold(ciEvent.Repository, repo.Name) {
		logger.Info(
			"workflow run belongs to a repository that is not monitored, event ignored",
			logfields.Event("repository_not_monitored"),
			logfields.RepositoryOwner(ciEvent.RepositoryOwner),
			logfields.Repository(ciEvent.Repository),
			zap.String("monitored_repository", repo.String()),
		)
		return &automerge.Outcome{Status: automerge.StatusRejected}, nil
	}

	return r.Run(ctx, ciEvent)
}

func exitCode(outcome *automerge.Outcome, err error) int {
	if !outcome.Status.IsFailure() {
		return exitCodeOK
	}

	if retryerr.IsRetryable(err) {
		return exitCodeTempFailure
	}

	return exitCodeFailure
}
