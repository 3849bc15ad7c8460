package domain

import "fmt"

// QuestNotFoundError is returned when a quest ID does not exist.
type QuestNotFoundError struct {
	QuestID string
}

func (e *QuestNotFoundError) Error() string {
	return fmt.Sprintf("quest not found: %s", e.QuestID)
}

// ClaimNotFoundError is returned when a claim ID has no session.
type ClaimNotFoundError struct {
	ClaimID string
}

func (e *ClaimNotFoundError) Error() string {
	return fmt.Sprintf("claim not found: %s", e.ClaimID)
}

// NoLiveSessionError is returned when an operation requires live mode but
// the worker has not enabled it (or the session timed out).
type NoLiveSessionError struct {
	WorkerID string
}

func (e *NoLiveSessionError) Error() string {
	return fmt.Sprintf("worker %s has no live session", e.WorkerID)
}

// SessionStateError is returned when a session operation is invalid in the
// session's current state.
type SessionStateError struct {
	ClaimID string
	State   SessionState
	Op      string
}

func (e *SessionStateError) Error() string {
	return fmt.Sprintf("cannot %s claim %s in state %s", e.Op, e.ClaimID, e.State)
}

// InvalidLocationError is returned at the API boundary for coordinates
// outside the WGS84 envelope. Rejected before any engine state is touched.
type InvalidLocationError struct {
	Lat, Lng float64
}

func (e *InvalidLocationError) Error() string {
	return fmt.Sprintf("invalid location (%f, %f)", e.Lat, e.Lng)
}

// RateLimitExceededError is returned when a worker reports locations faster
// than the configured window allows.
type RateLimitExceededError struct {
	WorkerID string
	Limit    int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for worker %s: limit is %d", e.WorkerID, e.Limit)
}
