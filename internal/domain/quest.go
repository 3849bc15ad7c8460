package domain

import "time"

// QuestState represents the lifecycle states a quest can be in.
type QuestState string

const (
	QuestOpen      QuestState = "OPEN"
	QuestClaimed   QuestState = "CLAIMED"
	QuestEnRoute   QuestState = "EN_ROUTE"
	QuestArrived   QuestState = "ARRIVED"
	QuestCompleted QuestState = "COMPLETED"
	QuestExpired   QuestState = "EXPIRED"
	QuestCancelled QuestState = "CANCELLED"
)

// IsTerminal returns true if no further state transitions are possible.
func (s QuestState) IsTerminal() bool {
	return s == QuestCompleted || s == QuestExpired || s == QuestCancelled
}

// Location is a WGS84 point.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinates are inside the WGS84 envelope.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// Quest is a postable, claimable unit of paid work with a location and
// eligibility requirements. The posting side owns creation; this engine
// only reads quests and transitions their state on claim, expiry and
// ghosting reversion.
type Quest struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Category       string     `json:"category"`
	Location       Location   `json:"location"`
	RequiredTier   TrustTier  `json:"required_tier"`
	RequiredSkills []string   `json:"required_skills,omitempty"`
	PaymentCents   int64      `json:"payment_cents"`
	State          QuestState `json:"state"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
}

// ExpiredAt reports whether the quest's claim window has closed at t.
func (q *Quest) ExpiredAt(t time.Time) bool {
	return !q.ExpiresAt.IsZero() && !t.Before(q.ExpiresAt)
}

// QuestAlert is what a live worker receives for each visible quest.
// TimeRemaining and DistanceMeters are computed server-side so client
// clock or location spoofing cannot affect fairness.
type QuestAlert struct {
	QuestID        string  `json:"quest_id"`
	Title          string  `json:"title"`
	Category       string  `json:"category"`
	PaymentCents   int64   `json:"payment_cents"`
	DistanceMeters float64 `json:"distance_meters"`
	TimeRemaining  int64   `json:"time_remaining_seconds"`
	Locked         bool    `json:"locked"`
	LockReason     string  `json:"lock_reason,omitempty"`
}
