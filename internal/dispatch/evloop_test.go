package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/mergequeue/internal/mergequeue"
	"github.com/simplesurance/mergequeue/internal/mergequeue/mocks"
	"github.com/simplesurance/mergequeue/internal/provider/github"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const commandLabel = "command:queue-for-merging"

const labeledEventPayload = `{
  "action": "labeled",
  "number": 7,
  "label": {"name": "command:queue-for-merging"},
  "pull_request": {"number": 7, "node_id": "PR_7", "state": "open"},
  "repository": {"node_id": "R_1", "name": "repo", "owner": {"login": "testman"}},
  "sender": {"login": "fho"}
}`

const statusEventPayload = `{
  "sha": "sha7",
  "state": "success",
  "commit": {"sha": "sha7", "node_id": "C_7"},
  "repository": {"node_id": "R_1", "name": "repo", "owner": {"login": "testman"}}
}`

const pushEventPayload = `{
  "ref": "refs/heads/main",
  "repository": {"node_id": "R_1", "name": "repo", "owner": {"login": "testman"}}
}`

type recordingHandler struct {
	lock   sync.Mutex
	events []mergequeue.Event
	err    error
}

func (h *recordingHandler) Handle(_ context.Context, ev mergequeue.Event) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.events = append(h.events, ev)

	return h.err
}

func (h *recordingHandler) CommandLabel() string {
	return commandLabel
}

func (h *recordingHandler) received() []mergequeue.Event {
	h.lock.Lock()
	defer h.lock.Unlock()

	return append([]mergequeue.Event(nil), h.events...)
}

func mustParseEvent(t *testing.T, eventType, payload string) *github.Event {
	t.Helper()

	ev, err := github.ParseEvent(eventType, []byte(payload))
	require.NoError(t, err)

	return ev
}

func TestProcessConvertsEvents(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	handler := recordingHandler{}
	evLoop := NewEventLoop(&handler)

	require.NoError(t, evLoop.Process(context.Background(), mustParseEvent(t, "pull_request", labeledEventPayload)))
	require.NoError(t, evLoop.Process(context.Background(), mustParseEvent(t, "status", statusEventPayload)))
	require.NoError(t, evLoop.Process(context.Background(), mustParseEvent(t, "push", pushEventPayload)))

	events := handler.received()
	require.Len(t, events, 2)

	require.IsType(t, &mergequeue.QueueAdmissionRequested{}, events[0])
	assert.Equal(t, 7, events[0].(*mergequeue.QueueAdmissionRequested).PullRequestNumber)

	require.IsType(t, &mergequeue.CommitStatusSettled{}, events[1])
	assert.Equal(t, "C_7", events[1].(*mergequeue.CommitStatusSettled).Commit)
}

func TestProcessIgnoresUnmonitoredRepositories(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	handler := recordingHandler{}
	evLoop := NewEventLoop(&handler, WithRepositories([]mergequeue.Repository{{Owner: "testman", Name: "other"}}))

	require.NoError(t, evLoop.Process(context.Background(), mustParseEvent(t, "pull_request", labeledEventPayload)))
	assert.Empty(t, handler.received())

	evLoop = NewEventLoop(&handler, WithRepositories([]mergequeue.Repository{{Owner: "testman", Name: "repo"}}))

	require.NoError(t, evLoop.Process(context.Background(), mustParseEvent(t, "pull_request", labeledEventPayload)))
	assert.Len(t, handler.received(), 1)
}

func TestProcessAdmissionFilter(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	unauthorized, err := NewFilter(`.sender.login == "ck"`)
	require.NoError(t, err)

	handler := recordingHandler{}
	evLoop := NewEventLoop(&handler, WithAdmissionFilter(unauthorized))

	err = evLoop.Process(context.Background(), mustParseEvent(t, "pull_request", labeledEventPayload))
	assert.ErrorIs(t, err, ErrAdmissionUnauthorized)
	assert.Empty(t, handler.received())

	// settlements are not filtered
	require.NoError(t, evLoop.Process(context.Background(), mustParseEvent(t, "status", statusEventPayload)))
	assert.Len(t, handler.received(), 1)

	authorized, err := NewFilter(`.sender.login == "fho"`)
	require.NoError(t, err)

	evLoop = NewEventLoop(&handler, WithAdmissionFilter(authorized))
	require.NoError(t, evLoop.Process(context.Background(), mustParseEvent(t, "pull_request", labeledEventPayload)))
	assert.Len(t, handler.received(), 2)
}

func TestProcessReturnsHandlerErrors(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mockctrl := gomock.NewController(t)
	clt := mocks.NewMockGithubClient(mockctrl)
	clt.
		EXPECT().
		QueueLabels(gomock.Any(), "testman", "repo", gomock.Any()).
		Return(nil, errors.New("connection refused"))

	engine := mergequeue.NewEngine(clt, &mergequeue.Config{
		CommandLabel: commandLabel,
		MergingLabel: "bot:merging",
		QueuedLabel:  "bot:queued",
	})

	evLoop := NewEventLoop(engine)

	err := evLoop.Process(context.Background(), mustParseEvent(t, "status", statusEventPayload))

	var gwErr *mergequeue.GatewayError
	assert.ErrorAs(t, err, &gwErr)
}

func TestEvLoopProcessesQueuedEventsOnStop(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	handler := recordingHandler{err: errors.New("failed")}
	evLoop := NewEventLoop(&handler)

	evLoop.C() <- mustParseEvent(t, "pull_request", labeledEventPayload)
	evLoop.C() <- mustParseEvent(t, "status", statusEventPayload)

	go evLoop.Start()
	evLoop.Stop()

	assert.Len(t, handler.received(), 2)
}
