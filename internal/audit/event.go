// Package audit publishes the events emitted by committed operations.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Topic names an event kind.
type Topic string

const (
	TopicInit            Topic = "init"
	TopicPackageSet      Topic = "package_set"
	TopicPurchaseCreated Topic = "purchase_created"
	TopicGrant           Topic = "grant"
	TopicStart           Topic = "start"
	TopicPause           Topic = "pause"
)

// Event is a single audit record. Payload values are strings or unsigned
// integers so that every sink can render them without loss.
type Event struct {
	ID      string         `json:"id"`
	Topic   Topic          `json:"topic"`
	Payload map[string]any `json:"payload"`
	At      time.Time      `json:"at"`
}

// NewEvent creates an event with a fresh id.
func NewEvent(topic Topic, payload map[string]any, at time.Time) Event {
	return Event{
		ID:      uuid.NewString(),
		Topic:   topic,
		Payload: payload,
		At:      at.UTC(),
	}
}

// Sink receives published events. Publishing is best effort: callers log
// failures and carry on.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Buffer collects the events of one transaction. It is discarded when the
// transaction aborts and flushed once it has committed.
type Buffer struct {
	events []Event
}

// Add appends an event.
func (b *Buffer) Add(event Event) {
	b.events = append(b.events, event)
}

// Events returns the buffered events in emission order.
func (b *Buffer) Events() []Event {
	return b.events
}

// Reset drops all buffered events.
func (b *Buffer) Reset() {
	b.events = nil
}
