// Package arbiter resolves concurrent claim attempts so that exactly one
// worker wins each quest. Resolution order is "first atomic transition
// wins", not request-arrival order: network reordering means arrival order
// is not authoritative anyway, and this avoids a global sequencer.
package arbiter

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
	"github.com/Sebdysart/hustlexp-engine/internal/eligibility"
	"github.com/Sebdysart/hustlexp-engine/pkg/telemetry"
)

// ClaimStore persists claim records. Postgres in production.
type ClaimStore interface {
	CreateClaim(ctx context.Context, claim *domain.Claim) error
}

// Publisher emits domain events. Kafka in production.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// SessionStarter hands a winning claim to the session tracker.
type SessionStarter interface {
	StartSession(ctx context.Context, claim *domain.Claim, quest domain.Quest) (*domain.OnTheWaySession, error)
}

// Arbiter arbitrates claim attempts against the quest registry.
type Arbiter struct {
	registry *Registry
	profiles domain.WorkerProfileSource
	claims   ClaimStore
	events   Publisher
	sessions SessionStarter
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option { return func(a *Arbiter) { a.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(a *Arbiter) { a.logger = l } }

// NewArbiter constructs an Arbiter over the given registry and collaborators.
func NewArbiter(
	registry *Registry,
	profiles domain.WorkerProfileSource,
	claims ClaimStore,
	events Publisher,
	sessions SessionStarter,
	opts ...Option,
) *Arbiter {
	a := &Arbiter{
		registry: registry,
		profiles: profiles,
		claims:   claims,
		events:   events,
		sessions: sessions,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TryClaim resolves one claim attempt. At most one concurrent call per
// quest returns a WON outcome; everyone else observes the post-transition
// state and returns immediately. A Lost result is final for this attempt;
// the engine never retries on the caller's behalf.
//
// Eligibility is re-checked here with a fresh profile snapshot, not only at
// list time: the worker's tier or verified skills may have changed since
// the quest was listed. The snapshot is fetched before the per-quest lock
// is taken so no I/O happens inside the critical section.
func (a *Arbiter) TryClaim(ctx context.Context, questID, workerID string) (domain.ClaimOutcome, error) {
	ctx, span := otel.Tracer("arbiter").Start(ctx, "arbiter.try_claim")
	defer span.End()
	started := time.Now()
	defer func() {
		telemetry.ClaimLatencySeconds.Observe(time.Since(started).Seconds())
	}()
	span.SetAttributes(
		attribute.String("quest.id", questID),
		attribute.String("worker.id", workerID),
	)

	quest, ok := a.registry.Snapshot(questID)
	if !ok {
		return domain.ClaimOutcome{}, &domain.QuestNotFoundError{QuestID: questID}
	}

	worker, err := a.profiles.Snapshot(ctx, workerID)
	if err != nil {
		return domain.ClaimOutcome{}, err
	}
	if ok, reason := eligibility.Check(worker, &quest); !ok {
		telemetry.ClaimAttempts.WithLabelValues("not_eligible").Inc()
		return domain.ClaimOutcome{Result: domain.ClaimResultNotEligible, Reason: reason}, nil
	}

	now := a.now()
	quest, result := a.registry.claimCAS(questID, now)
	if result != domain.ClaimResultWon {
		telemetry.ClaimAttempts.WithLabelValues(strings.ToLower(string(result))).Inc()
		return domain.ClaimOutcome{Result: result}, nil
	}

	claim := &domain.Claim{
		ID:        uuid.New().String(),
		QuestID:   questID,
		WorkerID:  workerID,
		Status:    domain.ClaimWon,
		ClaimedAt: now,
	}

	// Side effects happen outside the quest lock. Persistence and the event
	// stream are the audit trail; the in-process registry already holds the
	// authoritative transition, so failures here are logged, not unwound.
	if err := a.claims.CreateClaim(ctx, claim); err != nil {
		a.logger.Error("failed to persist claim",
			slog.String("claim_id", claim.ID),
			slog.String("quest_id", questID),
			slog.String("error", err.Error()),
		)
	}

	session, err := a.sessions.StartSession(ctx, claim, quest)
	if err != nil {
		a.logger.Error("failed to start on-the-way session",
			slog.String("claim_id", claim.ID),
			slog.String("error", err.Error()),
		)
	}

	payload, _ := json.Marshal(struct {
		PaymentCents int64  `json:"payment_cents"`
		Category     string `json:"category"`
	}{quest.PaymentCents, quest.Category})
	a.publish(ctx, domain.Event{
		Type:     domain.EventQuestClaimed,
		QuestID:  questID,
		WorkerID: workerID,
		ClaimID:  claim.ID,
		Payload:  payload,
	})
	if session != nil {
		a.publish(ctx, domain.Event{
			Type:     domain.EventSessionStarted,
			QuestID:  questID,
			WorkerID: workerID,
			ClaimID:  claim.ID,
		})
	}

	telemetry.ClaimAttempts.WithLabelValues("won").Inc()
	a.logger.Info("claim won",
		slog.String("quest_id", questID),
		slog.String("worker_id", workerID),
		slog.String("claim_id", claim.ID),
	)
	return domain.ClaimOutcome{Result: domain.ClaimResultWon, Claim: claim}, nil
}

func (a *Arbiter) publish(ctx context.Context, ev domain.Event) {
	ev.ID = uuid.New().String()
	ev.OccurredAt = a.now().UTC()
	if err := a.events.Publish(ctx, ev); err != nil {
		a.logger.Error("failed to publish event",
			slog.String("event_type", string(ev.Type)),
			slog.String("quest_id", ev.QuestID),
			slog.String("error", err.Error()),
		)
	}
}
