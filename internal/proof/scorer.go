// Package proof scores completion-proof submissions. The scorer is a pure
// function over already-computed signals; it never calls out to the ML
// collaborator or the geo index itself.
package proof

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
	"github.com/Sebdysart/hustlexp-engine/pkg/telemetry"
)

// Thresholds is the single place scoring policy lives. Evaluated in order:
// any score below Reject rejects, all scores at or above Approve approve,
// anything else goes to manual review. Warn thresholds attach flags per
// dimension independent of the overall verdict.
type Thresholds struct {
	Reject  int // any dimension below this → Reject
	Approve int // every dimension at or above this → Approve
	Warn    int // per-dimension flag threshold

	// GPS proximity decay: full score at or inside NearRadius meters,
	// linear falloff to zero at FarRadius.
	NearRadius float64
	FarRadius  float64
}

// DefaultThresholds is the production policy.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Reject:     30,
		Approve:    70,
		Warn:       60,
		NearRadius: 25,
		FarRadius:  250,
	}
}

// Scorer turns a ProofSubmission into an immutable ProofValidationResult.
type Scorer struct {
	t   Thresholds
	now func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option { return func(s *Scorer) { s.now = now } }

// NewScorer constructs a Scorer. Zero-value thresholds fall back to the
// defaults so a missing config section cannot silently approve everything.
func NewScorer(t Thresholds, opts ...Option) *Scorer {
	if t.Reject == 0 && t.Approve == 0 {
		t = DefaultThresholds()
	}
	s := &Scorer{t: t, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score evaluates one submission. Missing liveness or authenticity signals
// score zero: an absent signal must read as the worst case, not a pass.
func (s *Scorer) Score(sub domain.ProofSubmission) domain.ProofValidationResult {
	liveness := signalScore(sub.Liveness)
	authenticity := signalScore(sub.Authenticity)
	gps := s.proximityScore(sub.DistanceMeters)

	var flags []string
	if liveness < s.t.Warn {
		flags = append(flags, "low_liveness")
	}
	if authenticity < s.t.Warn {
		flags = append(flags, "possible_deepfake")
	}
	if gps < s.t.Warn {
		flags = append(flags, "gps_mismatch")
	}

	lowest := min3(liveness, authenticity, gps)
	rec := s.recommend(liveness, authenticity, gps)

	res := domain.ProofValidationResult{
		ClaimID:        sub.ClaimID,
		Liveness:       liveness,
		Authenticity:   authenticity,
		GPSProximity:   gps,
		Risk:           riskFor(lowest),
		Recommendation: rec,
		Reasoning:      s.reasoning(rec, liveness, authenticity, gps, flags),
		Flags:          flags,
		ScoredAt:       s.now().UTC(),
	}

	telemetry.ProofScores.WithLabelValues(strings.ToLower(string(rec))).Inc()
	return res
}

func (s *Scorer) recommend(scores ...int) domain.Recommendation {
	for _, sc := range scores {
		if sc < s.t.Reject {
			return domain.RecommendReject
		}
	}
	for _, sc := range scores {
		if sc < s.t.Approve {
			return domain.RecommendManualReview
		}
	}
	return domain.RecommendApprove
}

// proximityScore maps submission distance to 0-100. Inside NearRadius the
// fix is as good as on-site; past FarRadius it is worthless.
func (s *Scorer) proximityScore(distanceMeters float64) int {
	if distanceMeters < 0 {
		distanceMeters = 0
	}
	if distanceMeters <= s.t.NearRadius {
		return 100
	}
	if distanceMeters >= s.t.FarRadius {
		return 0
	}
	frac := (s.t.FarRadius - distanceMeters) / (s.t.FarRadius - s.t.NearRadius)
	return int(frac * 100)
}

func (s *Scorer) reasoning(rec domain.Recommendation, liveness, authenticity, gps int, flags []string) string {
	base := fmt.Sprintf("liveness=%d authenticity=%d gps_proximity=%d", liveness, authenticity, gps)
	if len(flags) == 0 {
		return fmt.Sprintf("%s: all signals clear", base)
	}
	sorted := append([]string(nil), flags...)
	sort.Strings(sorted)
	return fmt.Sprintf("%s: %s (%s)", base, verdictPhrase(rec), strings.Join(sorted, ", "))
}

func verdictPhrase(rec domain.Recommendation) string {
	switch rec {
	case domain.RecommendReject:
		return "rejected on low signal"
	case domain.RecommendManualReview:
		return "flagged for manual review"
	default:
		return "approved with warnings"
	}
}

func riskFor(lowest int) domain.RiskLevel {
	switch {
	case lowest < 30:
		return domain.RiskCritical
	case lowest < 60:
		return domain.RiskHigh
	case lowest < 80:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

func signalScore(v *int) int {
	if v == nil {
		return 0
	}
	switch {
	case *v < 0:
		return 0
	case *v > 100:
		return 100
	}
	return *v
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
