package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Event statuses published during a deployment.
const (
	StatusStarted   = "started"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusCompleted = "completed"
)

// Event is one deployment lifecycle notification. NodeID is empty for
// deployment-level events.
type Event struct {
	DeploymentID string    `json:"deployment_id"`
	Stack        string    `json:"stack"`
	Status       string    `json:"status"`
	NodeID       string    `json:"node_id,omitempty"`
	Operation    string    `json:"operation,omitempty"`
	Message      string    `json:"message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher delivers lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// MultiPublisher fans an event out to every publisher and reports all
// failures together.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, event Event) error {
	var result *multierror.Error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Multi builds a MultiPublisher, dropping nil entries.
func Multi(publishers ...Publisher) Publisher {
	out := make(MultiPublisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return NopPublisher{}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

var errMissingTarget = errors.New("notify: target is required")

func encode(event Event) (string, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
