package domain

import "time"

// SessionState represents the states of an on-the-way session.
type SessionState string

const (
	SessionAwaitingNavigation SessionState = "AWAITING_NAVIGATION"
	SessionEnRoute            SessionState = "EN_ROUTE"
	SessionArrived            SessionState = "ARRIVED"
	SessionGhosted            SessionState = "GHOSTED"
	SessionCancelled          SessionState = "CANCELLED"
)

// IsTerminal returns true once the session can no longer transition.
func (s SessionState) IsTerminal() bool {
	return s == SessionArrived || s == SessionGhosted || s == SessionCancelled
}

// OnTheWaySession tracks a winning claim from claim time until arrival.
// NavigationDeadline and MovementDeadline are wall-clock instants enforced
// by the engine's own timers; a disconnected client still gets ghosted on
// schedule.
type OnTheWaySession struct {
	ClaimID            string       `json:"claim_id"`
	QuestID            string       `json:"quest_id"`
	WorkerID           string       `json:"worker_id"`
	State              SessionState `json:"state"`
	ClaimedAt          time.Time    `json:"claimed_at"`
	NavigationDeadline time.Time    `json:"navigation_deadline"`
	MovementDeadline   time.Time    `json:"movement_deadline"`
	NavigationStartedAt *time.Time  `json:"navigation_started_at,omitempty"`
	ArrivedAt          *time.Time   `json:"arrived_at,omitempty"`
	LastLocation       *Location    `json:"last_location,omitempty"`
	DistanceRemaining  float64      `json:"distance_remaining_meters"`
	ETASeconds         int64        `json:"eta_seconds"`
}
