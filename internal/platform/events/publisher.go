package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
)

// CommerceEvent is the payload published after a completed commerce operation.
// It is the telemetry counterpart of the storefront's order pipeline: one
// message per purchase, seat addition, or renewal.
type CommerceEvent struct {
	EventType     string    `json:"eventType"`
	CustomerID    string    `json:"customerId"`
	OrderID       string    `json:"orderId,omitempty"`
	OperationType string    `json:"operationType,omitempty"`
	AmountCharged int64     `json:"amountCharged,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Publisher delivers commerce events to subscribers.
type Publisher interface {
	PublishCommerceEvent(ctx context.Context, event CommerceEvent) (string, error)
}

// PubSubPublisher publishes commerce events to a Pub/Sub topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubPublisher constructs a Pub/Sub backed commerce event publisher.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub publisher: topic is required")
	}
	return &PubSubPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishCommerceEvent enqueues an event message on the configured topic.
func (p *PubSubPublisher) PublishCommerceEvent(ctx context.Context, event CommerceEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal commerce event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.EventType)
	setAttr(attrs, "customerId", event.CustomerID)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "operationType", event.OperationType)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish commerce event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

// NopPublisher discards events; used when no topic is configured.
type NopPublisher struct{}

// PublishCommerceEvent implements Publisher as a no-op.
func (NopPublisher) PublishCommerceEvent(context.Context, CommerceEvent) (string, error) {
	return "", nil
}
