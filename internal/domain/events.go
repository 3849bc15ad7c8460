package domain

import (
	"encoding/json"
	"time"
)

// EventType identifies a domain event on the quests.events topic.
type EventType string

const (
	EventQuestClaimed     EventType = "quest.claimed"
	EventQuestExpired     EventType = "quest.expired"
	EventQuestReverted    EventType = "quest.reverted"
	EventSessionStarted   EventType = "session.started"
	EventSessionArrived   EventType = "session.arrived"
	EventSessionCancelled EventType = "session.cancelled"
	EventSessionGhosted   EventType = "session.ghosted"
	EventProofScored      EventType = "proof.scored"
)

// Event is the envelope published for every domain side effect. Messages
// are keyed by QuestID so all events for one quest land on one partition
// in order.
type Event struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	QuestID    string          `json:"quest_id,omitempty"`
	WorkerID   string          `json:"worker_id,omitempty"`
	ClaimID    string          `json:"claim_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}
