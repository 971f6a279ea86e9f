// Package github receives GitHub webhook events via http.
package github

import (
	"net/http"

	"github.com/google/go-github/v68/github"
	"go.uber.org/zap"

	"github.com/simplesurance/botmerger/internal/logfields"
)

const loggerName = "github_event_provider"

// Provider listens for github-webhook http-requests at a http-server handler,
// validates and converts the requests to Events and forwards them to event
// channels.
type Provider struct {
	logger        *zap.Logger
	webhookSecret []byte
	eventTypes    map[string]struct{}
	chans         []chan<- *Event
}

type option func(*Provider)

// WithPayloadSecret sets the secret that is used to validate the signature
// of received webhook payloads.
func WithPayloadSecret(secret string) option {
	return func(p *Provider) {
		p.webhookSecret = []byte(secret)
	}
}

// WithEventTypes restricts the forwarded events to the given webhook types
// (e.g. "workflow_run").
// Requests for other types are acknowledged and dropped.
func WithEventTypes(types ...string) option {
	return func(p *Provider) {
		p.eventTypes = make(map[string]struct{}, len(types))
		for _, t := range types {
			p.eventTypes[t] = struct{}{}
		}
	}
}

func New(eventChans []chan<- *Event, opts ...option) *Provider {
	p := Provider{
		chans: eventChans,
	}

	for _, o := range opts {
		o(&p)
	}

	if p.logger == nil {
		p.logger = zap.L().Named(loggerName)
	}

	return &p
}

func (p *Provider) isSubscribed(eventType string) bool {
	if p.eventTypes == nil {
		return true
	}

	_, exists := p.eventTypes[eventType]
	return exists
}

func (p *Provider) HTTPHandler(resp http.ResponseWriter, req *http.Request) {
	deliveryID := github.DeliveryID(req)
	hookType := github.WebHookType(req)

	logFields := []zap.Field{
		logfields.EventProvider("github"),
		logfields.DeliveryID(deliveryID),
		logfields.WebhookType(hookType),
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

	if !p.isSubscribed(hookType) {
		logger.Debug(
			"ignoring event, event type is not subscribed",
			logfields.Event("github_unsubscribed_event_received"),
		)
		return
	}

	event, err := github.ParseWebHook(hookType, payload)
	if err != nil {
		logger.Info(
			"received invalid http request, parsing failed",
			logfields.Event("github_event_parsing_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	ev := Event{
		DeliveryID: deliveryID,
		Type:       hookType,
		Event:      event,
		LogFields:  logFields,
	}

	for _, ch := range p.chans {
		select {
		case ch <- &ev:
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
}
