// Package dispatch converts received GitHub webhook events to merge queue
// events and passes them sequentially to the merge queue engine.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/mergequeue/internal/logfields"
	"github.com/simplesurance/mergequeue/internal/mergequeue"
	"github.com/simplesurance/mergequeue/internal/provider/github"
)

const DefEventChannelBufferSize = 512

const loggerName = "event_loop"

// ErrAdmissionUnauthorized is returned by Process when the admission filter
// rejected a queue admission request.
var ErrAdmissionUnauthorized = errors.New("admission request rejected by filter")

// Handler processes merge queue events.
type Handler interface {
	Handle(context.Context, mergequeue.Event) error
	CommandLabel() string
}

// EvLoop receives github webhook events and processes them one after
// another.
type EvLoop struct {
	ch      chan *github.Event
	done    chan struct{}
	logger  *zap.Logger
	handler Handler

	repositories    map[repository]struct{}
	admissionFilter *Filter
}

type repository struct {
	owner string
	name  string
}

// WithRepositories restricts processing to events of the passed
// repositories. Events of all repositories are processed when no
// repositories are set.
func WithRepositories(repos []mergequeue.Repository) func(*EvLoop) {
	return func(e *EvLoop) {
		for _, r := range repos {
			e.repositories[repository{owner: r.Owner, name: r.Name}] = struct{}{}
		}
	}
}

// WithAdmissionFilter sets a filter that must match the JSON payload of a
// webhook event that requests the admission of a pull request to the queue.
func WithAdmissionFilter(f *Filter) func(*EvLoop) {
	return func(e *EvLoop) {
		e.admissionFilter = f
	}
}

func NewEventLoop(handler Handler, opts ...func(*EvLoop)) *EvLoop {
	evl := EvLoop{
		ch:           make(chan *github.Event, DefEventChannelBufferSize),
		done:         make(chan struct{}),
		handler:      handler,
		repositories: map[repository]struct{}{},
		logger:       zap.L().Named(loggerName),
	}

	for _, opt := range opts {
		opt(&evl)
	}

	return &evl
}

// C returns the event channel.
// Events sent to this channel will be processed.
// The channel is closed when Stop() is called.
func (e *EvLoop) C() chan<- *github.Event {
	return e.ch
}

// Start processes events from the event channel until it is closed.
func (e *EvLoop) Start() {
	defer close(e.done)

	ctx := context.Background()
	e.logger.Info("ready to process events", logfields.Event("eventloop_started"))

	for ev := range e.ch {
		logger := e.logger.With(ev.LogFields...)

		err := e.Process(ctx, ev)
		if err != nil {
			if errors.Is(err, ErrAdmissionUnauthorized) {
				continue
			}

			logger.Error(
				"processing event failed",
				logfields.Event("event_processing_failed"),
				zap.Error(err),
			)
		}
	}

	e.logger.Info(
		"event loop terminated, event channel was closed",
		logfields.Event("eventloop_terminated"),
	)
}

func (e *EvLoop) isMonitoredRepository(repo *mergequeue.Repository) bool {
	if len(e.repositories) == 0 {
		return true
	}

	_, exist := e.repositories[repository{owner: repo.Owner, name: repo.Name}]
	return exist
}

// Process converts ev to a merge queue event and passes it to the
// Handler.
// Events that are not relevant for the merge queue and events of
// repositories that are not monitored are ignored.
func (e *EvLoop) Process(ctx context.Context, ev *github.Event) error {
	logger := e.logger.With(ev.LogFields...)

	mqEvent := mergequeue.EventFromWebhook(ev.Event, e.handler.CommandLabel())
	if mqEvent == nil {
		logger.Debug(
			"ignoring event, event is not relevant for the merge queue",
			logfields.Event("event_ignored"),
			zap.String("github.webhook_type", ev.Type),
		)

		return nil
	}

	repo := mqEvent.Repo()
	logger = logger.With(mqEvent.LogFields()...)

	if !e.isMonitoredRepository(repo) {
		logger.Debug(
			"ignoring event, repository is not monitored",
			logfields.Event("event_ignored"),
		)

		return nil
	}

	if _, isAdmission := mqEvent.(*mergequeue.QueueAdmissionRequested); isAdmission && e.admissionFilter != nil {
		match, err := e.admissionFilter.Match(ctx, ev.JSON)
		if err != nil {
			return fmt.Errorf("evaluating admission filter failed: %w", err)
		}

		if !match {
			logger.Info(
				"ignoring queue admission request, sender is not authorized",
				logfields.Event("admission_unauthorized"),
				zap.Stringer("filter_query", e.admissionFilter),
			)

			return ErrAdmissionUnauthorized
		}
	}

	logger.Debug("processing event", logfields.Event("event_processing"))

	return e.handler.Handle(ctx, mqEvent)
}

// Stop closes the event channel and waits until all events in the channel
// were processed.
// Start() must have been called before.
func (e *EvLoop) Stop() {
	e.logger.Debug("event loop terminating", logfields.Event("eventloop_terminating"))
	close(e.ch)
	<-e.done
}
