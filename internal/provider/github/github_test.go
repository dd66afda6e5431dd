package github

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-github/v59/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const pullRequestLabeledEventPayload = `{
  "action": "labeled",
  "number": 7,
  "label": {"name": "command:queue-for-merging"},
  "pull_request": {"number": 7, "node_id": "PR_kwDOABC", "state": "open"},
  "repository": {"node_id": "R_kgDOABC", "name": "repo", "owner": {"login": "testman"}},
  "sender": {"login": "fho"}
}`

const deliveryID = "3355fab0-b22c-11eb-9936-51d9540c0cdc"

func newWebhookReq(t *testing.T, eventType, payload, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/listener/github", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-GitHub-Delivery", deliveryID)

	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		_, err := mac.Write([]byte(payload))
		require.NoError(t, err)

		req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	return req
}

func TestHTTPHandlerEventParsing(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t)))

	evChan := make(chan *Event, 1)
	provider := New(evChan, WithPayloadSecret("secret"))

	respRecorder := httptest.NewRecorder()
	provider.HTTPHandler(respRecorder, newWebhookReq(t, "pull_request", pullRequestLabeledEventPayload, "secret"))
	require.Equal(t, http.StatusOK, respRecorder.Code)

	require.Len(t, evChan, 1)
	event := <-evChan

	assert.Equal(t, pullRequestLabeledEventPayload, string(event.JSON))
	assert.Equal(t, deliveryID, event.DeliveryID)
	assert.Equal(t, "pull_request", event.Type)
	assert.NotEmpty(t, event.LogFields)

	require.IsType(t, &github.PullRequestEvent{}, event.Event)
	prEv := event.Event.(*github.PullRequestEvent)
	assert.Equal(t, "labeled", prEv.GetAction())
	assert.Equal(t, 7, prEv.GetPullRequest().GetNumber())
	assert.Equal(t, "command:queue-for-merging", prEv.GetLabel().GetName())
}

func TestHTTPHandlerInvalidSignature(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t)))

	evChan := make(chan *Event, 1)
	provider := New(evChan, WithPayloadSecret("secret"))

	respRecorder := httptest.NewRecorder()
	provider.HTTPHandler(respRecorder, newWebhookReq(t, "pull_request", pullRequestLabeledEventPayload, "wrong"))

	assert.Equal(t, http.StatusBadRequest, respRecorder.Code)
	assert.Empty(t, evChan)
}

func TestHTTPHandlerUnparseablePayload(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t)))

	evChan := make(chan *Event, 1)
	provider := New(evChan)

	respRecorder := httptest.NewRecorder()
	provider.HTTPHandler(respRecorder, newWebhookReq(t, "pull_request", `{"action": `, ""))

	assert.Equal(t, http.StatusBadRequest, respRecorder.Code)
	assert.Empty(t, evChan)
}

func TestHTTPHandlerChannelFull(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t)))

	evChan := make(chan *Event)
	provider := New(evChan)

	respRecorder := httptest.NewRecorder()
	provider.HTTPHandler(respRecorder, newWebhookReq(t, "pull_request", pullRequestLabeledEventPayload, ""))

	assert.Equal(t, http.StatusServiceUnavailable, respRecorder.Code)
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent("pull_request", []byte(pullRequestLabeledEventPayload))
	require.NoError(t, err)

	assert.Equal(t, "pull_request", ev.Type)
	assert.Empty(t, ev.DeliveryID)
	assert.IsType(t, &github.PullRequestEvent{}, ev.Event)

	_, err = ParseEvent("unknown_event", []byte(`{}`))
	assert.Error(t, err)
}
