// Package eligibility decides whether a worker may see or claim a quest.
// It is a pure function of the worker snapshot and quest requirements:
// no I/O, no side effects.
package eligibility

import "github.com/Sebdysart/hustlexp-engine/internal/domain"

// Reason codes surfaced when a worker is not eligible. The client renders
// them as locked-quest upsells (tier prompt, license prompt).
const (
	ReasonTierTooLow   = "tier_too_low"
	ReasonMissingSkill = "missing_skill"
)

// Check reports whether the worker may act on the quest. When not, the
// returned reason identifies the first unmet requirement: tier before
// skills, so the client always shows the cheaper upsell first.
func Check(w domain.WorkerSnapshot, q *domain.Quest) (bool, string) {
	if w.Tier < q.RequiredTier {
		return false, ReasonTierTooLow
	}
	for _, tag := range q.RequiredSkills {
		if !w.HasSkill(tag) {
			return false, ReasonMissingSkill
		}
	}
	return true, ""
}
