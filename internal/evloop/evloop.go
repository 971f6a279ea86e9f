// Package evloop runs an automerge pipeline for every received GitHub
// workflow_run event.
package evloop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	go_github "github.com/google/go-github/v68/github"
	"go.uber.org/zap"

	"github.com/simplesurance/botmerger/internal/automerge"
	"github.com/simplesurance/botmerger/internal/logfields"
	"github.com/simplesurance/botmerger/internal/provider/github"
	"github.com/simplesurance/botmerger/internal/routines"
)

const DefEventChannelBufferSize = 512

const workflowRunEventType = "workflow_run"
const DefRunTimeout = 5 * time.Minute
const DefWorkers = 8

const loggerName = "event_loop"

// Runner processes a CI event.
type Runner interface {
	Run(context.Context, *automerge.CIEvent) (*automerge.Outcome, error)
}

// EvLoop receives events and runs the pipeline for workflow_run events of
// the monitored repository.
// Pipeline runs are executed asynchronously in a pool of go-routines, every
// event is processed independently of the others.
type EvLoop struct {
	ch     chan *github.Event
	done   chan struct{}
	logger *zap.Logger

	runner    Runner
	repo      automerge.Repository
	workflows map[string]struct{}

	runTimeout time.Duration
	workers    int
	bufSize    int
	pool       *routines.Pool
	runDeferFn func()
}

// WithRunRoutineDeferFunc sets a function to be run when a go-routine that
// executes a pipeline run returns.
// It can be used to set a panic handler.
func WithRunRoutineDeferFunc(fn func()) func(*EvLoop) {
	return func(e *EvLoop) {
		e.runDeferFn = fn
	}
}

// WithWorkflows restricts processing to workflow runs of the workflows with
// the given names.
// If no names are passed, runs of all workflows are processed.
func WithWorkflows(names ...string) func(*EvLoop) {
	return func(e *EvLoop) {
		if len(names) == 0 {
			e.workflows = nil
			return
		}

		e.workflows = make(map[string]struct{}, len(names))
		for _, name := range names {
			e.workflows[name] = struct{}{}
		}
	}
}

// WithRunTimeout sets the maximum duration of a pipeline run.
func WithRunTimeout(d time.Duration) func(*EvLoop) {
	return func(e *EvLoop) {
		e.runTimeout = d
	}
}

// WithEventChannelBufferSize sets the capacity of the event channel.
func WithEventChannelBufferSize(n int) func(*EvLoop) {
	return func(e *EvLoop) {
		e.bufSize = n
	}
}

// WithWorkers sets the maximum number of concurrent pipeline runs.
func WithWorkers(n int) func(*EvLoop) {
	return func(e *EvLoop) {
		e.workers = n
	}
}

func NewEventLoop(runner Runner, repo automerge.Repository, opts ...func(*EvLoop)) *EvLoop {
	evl := EvLoop{
		done:       make(chan struct{}),
		runner:     runner,
		repo:       repo,
		runTimeout: DefRunTimeout,
		workers:    DefWorkers,
		bufSize:    DefEventChannelBufferSize,
	}

	for _, opt := range opts {
		opt(&evl)
	}

	if evl.logger == nil {
		evl.logger = zap.L().Named(loggerName)
	}

	evl.ch = make(chan *github.Event, evl.bufSize)
	evl.pool = routines.NewPool(evl.workers)

	return &evl
}

// C returns the event channel.
// Events sent to this channel will be processed.
// The channel is closed when Stop() is called.
func (e *EvLoop) C() chan<- *github.Event {
	return e.ch
}

// Start processes events until Stop() is called.
func (e *EvLoop) Start() {
	defer close(e.done)

	e.logger.Info("ready to process events", logfields.Event("eventloop_started"))

	for ev := range e.ch {
		logger := e.logger.With(ev.LogFields...)
		logger.Debug("event received", logfields.Event("event_received"))

		metrics.ProcessedEventsInc()

		ciEvent, ignoreReason := e.toCIEvent(ev)
		if ciEvent == nil {
			logger.Debug(
				"event ignored",
				logfields.Event("event_ignored"),
				logFieldReason(ignoreReason),
			)
			metrics.IgnoredEventsInc(ignoreReason)

			continue
		}

		e.scheduleRun(ciEvent)
	}

	e.logger.Info(
		"event loop terminated, event channel was closed",
		logfields.Event("eventloop_terminated"),
	)
}

const (
	ignoreReasonUnsupportedEvent = "unsupported_event"
	ignoreReasonNotCompleted     = "workflow_run_not_completed"
	ignoreReasonInvalid          = "invalid_event"
	ignoreReasonRepository       = "repository_not_monitored"
	ignoreReasonWorkflow         = "workflow_not_monitored"
)

func logFieldReason(reason string) zap.Field {
	return zap.String("reason", reason)
}

// toCIEvent converts ev to a CIEvent.
// If the event is not processed, nil and the reason is returned.
func (e *EvLoop) toCIEvent(ev *github.Event) (*automerge.CIEvent, string) {
	if ev.Type != workflowRunEventType {
		return nil, ignoreReasonUnsupportedEvent
	}

	wrEvent, ok := ev.Event.(*go_github.WorkflowRunEvent)
	if !ok {
		e.logger.Info(
			"workflow_run event has an unexpected payload type",
			logfields.Event("workflow_run_event_invalid_payload"),
			logfields.DeliveryID(ev.DeliveryID),
			zap.String("payload_type", fmt.Sprintf("%T", ev.Event)),
		)

		return nil, ignoreReasonInvalid
	}

	ciEvent, err := automerge.NewCIEventFromWorkflowRun(wrEvent)
	if err != nil {
		if errors.Is(err, automerge.ErrWorkflowRunNotCompleted) {
			return nil, ignoreReasonNotCompleted
		}

		e.logger.Info(
			"converting workflow run event failed",
			logfields.Event("workflow_run_event_conversion_failed"),
			logfields.DeliveryID(ev.DeliveryID),
			zap.Error(err),
		)

		return nil, ignoreReasonInvalid
	}

	ciEvent.DeliveryID = ev.DeliveryID

	if !strings.EqualFold(ciEvent.RepositoryOwner, e.repo.Owner) || !strings.EqualFold(ciEvent.Repository, e.repo.Name) {
		return nil, ignoreReasonRepository
	}

	if e.workflows != nil {
		if _, exists := e.workflows[ciEvent.WorkflowName]; !exists {
			return nil, ignoreReasonWorkflow
		}
	}

	return ciEvent, ""
}

func (e *EvLoop) scheduleRun(ev *automerge.CIEvent) {
	e.pool.Queue(func() {
		if e.runDeferFn != nil {
			defer e.runDeferFn()
		}

		ctx, cancelFn := context.WithTimeout(context.Background(), e.runTimeout)
		defer cancelFn()

		// the outcome is logged and recorded by the runner
		_, _ = e.runner.Run(ctx, ev)
	})
}

// Stop closes the event channel (Evloop.C()) and waits until all scheduled
// pipeline runs terminated.
// Start() must have been called before.
func (e *EvLoop) Stop() {
	e.logger.Debug("event loop terminating", logfields.Event("eventloop_terminating"))
	close(e.ch)
	<-e.done

	e.logger.Debug(
		"waiting for scheduled runs to terminate",
		logfields.Event("eventloop_waiting_for_runs"),
	)
	e.pool.Wait()

	e.logger.Info("event loop terminated", logfields.Event("eventloop_terminated"))
}
