package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
)

// Topics for the quest event stream. Events are keyed by quest ID so every
// consumer sees a quest's history in order.
const (
	EventsTopic = "quests.events"
	DLQTopic    = "quests.events.dlq"
)

// EventPublisher marshals domain events onto the quest event stream. It is
// the production implementation of the Publisher interfaces the arbiter,
// the session tracker and the API surface depend on.
type EventPublisher struct {
	producer Producer
	topic    string
}

// NewEventPublisher wraps a Producer for the events topic.
func NewEventPublisher(p Producer) *EventPublisher {
	return &EventPublisher{producer: p, topic: EventsTopic}
}

// Publish serializes the event and routes it by quest ID.
func (e *EventPublisher) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}
	return e.producer.Publish(ctx, e.topic, event.QuestID, payload)
}

// Close releases the underlying producer.
func (e *EventPublisher) Close() error {
	return e.producer.Close()
}
