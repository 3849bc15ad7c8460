package eligibility_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
	"github.com/Sebdysart/hustlexp-engine/internal/eligibility"
)

func quest(tier domain.TrustTier, skills ...string) *domain.Quest {
	return &domain.Quest{ID: "q", RequiredTier: tier, RequiredSkills: skills}
}

func worker(tier domain.TrustTier, skills ...string) domain.WorkerSnapshot {
	return domain.WorkerSnapshot{WorkerID: "w", Tier: tier, VerifiedSkills: skills}
}

func TestCheck_Table(t *testing.T) {
	tests := []struct {
		name       string
		worker     domain.WorkerSnapshot
		quest      *domain.Quest
		wantOK     bool
		wantReason string
	}{
		{
			name:   "equal tier, no skills required",
			worker: worker(domain.TierVerified),
			quest:  quest(domain.TierVerified),
			wantOK: true,
		},
		{
			name:   "higher tier passes",
			worker: worker(domain.TierElite),
			quest:  quest(domain.TierRookie),
			wantOK: true,
		},
		{
			name:       "lower tier blocked",
			worker:     worker(domain.TierRookie),
			quest:      quest(domain.TierTrusted),
			wantOK:     false,
			wantReason: eligibility.ReasonTierTooLow,
		},
		{
			name:   "skill present",
			worker: worker(domain.TierVerified, "drivers_license"),
			quest:  quest(domain.TierVerified, "drivers_license"),
			wantOK: true,
		},
		{
			name:       "skill missing",
			worker:     worker(domain.TierElite),
			quest:      quest(domain.TierRookie, "drivers_license"),
			wantOK:     false,
			wantReason: eligibility.ReasonMissingSkill,
		},
		{
			name:       "tier reported before skills",
			worker:     worker(domain.TierRookie),
			quest:      quest(domain.TierTrusted, "drivers_license"),
			wantOK:     false,
			wantReason: eligibility.ReasonTierTooLow,
		},
		{
			name:   "multiple skills all present",
			worker: worker(domain.TierTrusted, "drivers_license", "food_handler"),
			quest:  quest(domain.TierTrusted, "food_handler", "drivers_license"),
			wantOK: true,
		},
		{
			name:       "one of several skills missing",
			worker:     worker(domain.TierTrusted, "drivers_license"),
			quest:      quest(domain.TierTrusted, "drivers_license", "food_handler"),
			wantOK:     false,
			wantReason: eligibility.ReasonMissingSkill,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := eligibility.Check(tt.worker, tt.quest)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

// Tier monotonicity: if a worker is eligible for a tiered quest, any worker
// of equal or higher tier (with the same skills) is too, and adding skills
// never removes eligibility.
func TestCheck_Monotonicity(t *testing.T) {
	q := quest(domain.TierVerified)

	ok, _ := eligibility.Check(worker(domain.TierVerified), q)
	assert.True(t, ok)
	ok, _ = eligibility.Check(worker(domain.TierElite), q)
	assert.True(t, ok, "higher tier must never lose eligibility")
	ok, _ = eligibility.Check(worker(domain.TierRookie), q)
	assert.False(t, ok, "lower tier must not gain eligibility")

	licensed := quest(domain.TierVerified, "drivers_license")
	ok, _ = eligibility.Check(worker(domain.TierElite), licensed)
	assert.False(t, ok, "tier alone cannot substitute for a missing license")
	ok, _ = eligibility.Check(worker(domain.TierVerified, "drivers_license"), licensed)
	assert.True(t, ok, "verified skill strictly increases eligibility")
}
