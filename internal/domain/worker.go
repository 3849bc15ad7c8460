package domain

import (
	"context"
	"time"
)

// TrustTier is a worker's verification/reputation level. Tiers are ordered:
// a higher tier may claim everything a lower tier may.
type TrustTier int

const (
	TierRookie TrustTier = iota
	TierVerified
	TierTrusted
	TierElite
)

// String returns the tier's wire name.
func (t TrustTier) String() string {
	switch t {
	case TierRookie:
		return "ROOKIE"
	case TierVerified:
		return "VERIFIED"
	case TierTrusted:
		return "TRUSTED"
	case TierElite:
		return "ELITE"
	}
	return "UNKNOWN"
}

// WorkerSnapshot is a point-in-time view of the profile fields the engine
// needs for eligibility decisions. Profiles are owned by an external
// collaborator; the engine never mutates them.
type WorkerSnapshot struct {
	WorkerID       string    `json:"worker_id"`
	Tier           TrustTier `json:"tier"`
	VerifiedSkills []string  `json:"verified_skills,omitempty"`
	GhostingStrikes int      `json:"ghosting_strikes"`
}

// HasSkill reports whether the worker holds a verified record for the tag.
func (w WorkerSnapshot) HasSkill(tag string) bool {
	for _, s := range w.VerifiedSkills {
		if s == tag {
			return true
		}
	}
	return false
}

// WorkerLiveSession is the state held for a worker who has live mode on.
// Destroyed when the worker toggles off or when the location goes stale
// past the configured TTL.
type WorkerLiveSession struct {
	WorkerID    string    `json:"worker_id"`
	Location    Location  `json:"location"`
	Categories  []string  `json:"categories,omitempty"`
	ActiveSince time.Time `json:"active_since"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	VisibleQuests []string `json:"visible_quests,omitempty"`
}

// QuestSource is the posting/marketplace side's view of quests.
type QuestSource interface {
	ListOpenQuests(ctx context.Context) ([]*Quest, error)
	GetQuest(ctx context.Context, id string) (*Quest, error)
	ExpireQuest(ctx context.Context, id string) error
}

// WorkerProfileSource provides the profile fields eligibility depends on.
type WorkerProfileSource interface {
	Snapshot(ctx context.Context, workerID string) (WorkerSnapshot, error)
}
