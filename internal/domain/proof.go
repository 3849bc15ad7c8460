package domain

import "time"

// Recommendation is the scorer's verdict for a completion proof.
type Recommendation string

const (
	RecommendApprove      Recommendation = "APPROVE"
	RecommendManualReview Recommendation = "MANUAL_REVIEW"
	RecommendReject       Recommendation = "REJECT"
)

// RiskLevel is derived from the lowest scoring dimension.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// ProofSubmission carries the already-computed signals for one completion
// proof. Liveness and Authenticity are produced by the external ML
// collaborator; a nil pointer means the signal is missing and the scorer
// fails closed on that dimension. DistanceMeters is the geometric distance
// between the submission GPS fix and the quest location.
type ProofSubmission struct {
	ClaimID        string   `json:"claim_id"`
	Liveness       *int     `json:"liveness,omitempty"`     // 0-100
	Authenticity   *int     `json:"authenticity,omitempty"` // 0-100, inverse of deepfake likelihood
	DistanceMeters float64  `json:"distance_meters"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// ProofValidationResult is produced once per submission and immutable
// after creation. Scores are 0-100 per dimension.
type ProofValidationResult struct {
	ClaimID        string         `json:"claim_id"`
	Liveness       int            `json:"liveness"`
	Authenticity   int            `json:"authenticity"`
	GPSProximity   int            `json:"gps_proximity"`
	Risk           RiskLevel      `json:"risk"`
	Recommendation Recommendation `json:"recommendation"`
	Reasoning      string         `json:"reasoning"`
	Flags          []string       `json:"flags,omitempty"`
	ScoredAt       time.Time      `json:"scored_at"`
}
