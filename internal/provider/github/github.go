// Package github receives GitHub webhook http-requests and forwards them as
// Events to a channel.
package github

import (
	"net/http"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/mergequeue/internal/logfields"
)

const loggerName = "github_event_provider"

// Provider listens for github-webhook http-requests at a http-server handler,
// validates and converts the requests to Events and forwards them to an
// event channel.
type Provider struct {
	logger        *zap.Logger
	webhookSecret []byte
	c             chan<- *Event
}

type option func(*Provider)

// WithPayloadSecret sets the secret that is used to validate the signature
// of received webhook requests.
func WithPayloadSecret(secret string) option {
	return func(p *Provider) {
		p.webhookSecret = []byte(secret)
	}
}

func New(eventChan chan<- *Event, opts ...option) *Provider {
	p := Provider{
		c: eventChan,
	}

	for _, o := range opts {
		o(&p)
	}

	if p.logger == nil {
		p.logger = zap.L().Named(loggerName)
	}

	return &p
}

func (p *Provider) HTTPHandler(resp http.ResponseWriter, req *http.Request) {
	deliveryID := github.DeliveryID(req)
	hookType := github.WebHookType(req)

	logFields := []zap.Field{
		logfields.EventProvider("github"),
		logfields.DeliveryID(deliveryID),
		zap.String("github.webhook_type", hookType),
	}

	logger := p.logger.With(logFields...)

	logger.Debug("received a http request", logfields.Event("github_http_request_received"))

	payload, err := github.ValidatePayload(req, p.webhookSecret)
	if err != nil {
		logger.Info(
			"received invalid http request, payload validation failed",
			logfields.Event("github_http_request_validation_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	ev, err := newEvent(hookType, deliveryID, payload)
	if err != nil {
		logger.Info(
			"received invalid http request, parsing failed",
			logfields.Event("github_event_parsing_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	ev.LogFields = append(ev.LogFields, logFields...)

	select {
	case p.c <- ev:
		logger.Debug("event forwarded to channel",
			logfields.Event("github_event_forwarded"),
		)

	default:
		logger.Warn(
			"event lost, forwarding event to channel failed",
			zap.String("error", "could not forward event to channel, send would have blocked"),
			logfields.Event("github_forwarding_event_failed"),
		)

		http.Error(resp, "queue full", http.StatusServiceUnavailable)
		return
	}
}

// ParseEvent parses a webhook payload of the given event type, as it is
// stored in the file referenced by the GITHUB_EVENT_PATH environment
// variable of GitHub Actions runs.
func ParseEvent(eventType string, payload []byte) (*Event, error) {
	ev, err := newEvent(eventType, "", payload)
	if err != nil {
		return nil, err
	}

	ev.LogFields = append(ev.LogFields,
		logfields.EventProvider("github"),
		zap.String("github.webhook_type", eventType),
	)

	return ev, nil
}

func newEvent(eventType, deliveryID string, payload []byte) (*Event, error) {
	parsed, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		DeliveryID: deliveryID,
		Type:       eventType,
		JSON:       payload,
		Event:      parsed,
	}, nil
}
