package domain

import "time"

// ClaimStatus represents the states a claim record can be in.
type ClaimStatus string

const (
	ClaimPending ClaimStatus = "PENDING"
	ClaimWon     ClaimStatus = "WON"
	ClaimLost    ClaimStatus = "LOST"
	ClaimExpired ClaimStatus = "EXPIRED"
)

// Claim is the only mutable link between a worker and a quest.
// Invariant: for any quest, at most one claim has status WON at any time.
type Claim struct {
	ID        string      `json:"id"`
	QuestID   string      `json:"quest_id"`
	WorkerID  string      `json:"worker_id"`
	Status    ClaimStatus `json:"status"`
	ClaimedAt time.Time   `json:"claimed_at"`
}

// ClaimResult is the outcome variant of a claim attempt. Lost and Expired
// are expected contention outcomes, not failures.
type ClaimResult string

const (
	ClaimResultWon         ClaimResult = "WON"
	ClaimResultLost        ClaimResult = "LOST"
	ClaimResultExpired     ClaimResult = "EXPIRED"
	ClaimResultNotEligible ClaimResult = "NOT_ELIGIBLE"
)

// ClaimOutcome is what the arbiter returns to the caller. Claim is set
// only when Result is WON. Reason is set only when Result is NOT_ELIGIBLE
// and carries the eligibility reason code for the client's locked-quest UI.
type ClaimOutcome struct {
	Result ClaimResult `json:"result"`
	Reason string      `json:"reason,omitempty"`
	Claim  *Claim      `json:"claim,omitempty"`
}
