// Package auditor consumes the quest event stream and writes the durable
// audit trail: every event appended to Postgres, ghost strikes mirrored
// into the Redis counters the eligibility filter reads.
package auditor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
	"github.com/Sebdysart/hustlexp-engine/internal/kafka"
	redisstore "github.com/Sebdysart/hustlexp-engine/internal/redis"
	"github.com/Sebdysart/hustlexp-engine/pkg/telemetry"
)

// Auditor tails quests.events and persists what it sees. Event IDs are the
// idempotency key, so Kafka redeliveries are harmless.
type Auditor struct {
	consumer kafka.Consumer
	producer kafka.Producer
	audit    AuditSink
	strikes  redisstore.StrikeCounter
	logger   *slog.Logger
	now      func() time.Time
}

// AuditSink is the persistence half of the auditor.
type AuditSink interface {
	RecordEvent(ctx context.Context, ev *domain.Event) error
	AddGhostStrike(ctx context.Context, workerID, questID, claimID string, at time.Time) error
}

// Option overrides an Auditor internal, mainly for tests.
type Option func(*Auditor)

// WithNow substitutes the clock.
func WithNow(now func() time.Time) Option {
	return func(a *Auditor) { a.now = now }
}

func NewAuditor(
	consumer kafka.Consumer,
	producer kafka.Producer,
	audit AuditSink,
	strikes redisstore.StrikeCounter,
	logger *slog.Logger,
	opts ...Option,
) *Auditor {
	a := &Auditor{
		consumer: consumer,
		producer: producer,
		audit:    audit,
		strikes:  strikes,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts consuming. Blocks until ctx is cancelled.
func (a *Auditor) Run(ctx context.Context) error {
	return a.consumer.Subscribe(ctx, a.Handle)
}

// Handle processes one message. Returning an error leaves the offset
// uncommitted so the message is redelivered; malformed payloads go to the
// DLQ instead, since retrying them cannot help.
func (a *Auditor) Handle(ctx context.Context, msg kafka.Message) error {
	ctx, span := otel.Tracer("auditor").Start(ctx, "auditor.handle",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var ev domain.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		a.logger.Error("malformed event, sending to DLQ", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed event")
		telemetry.AuditorDLQTotal.Inc()
		return a.toDLQ(ctx, msg.Value)
	}

	if ev.ID == "" || ev.Type == "" {
		a.logger.Error("event missing id or type, sending to DLQ")
		span.SetStatus(codes.Error, "incomplete event")
		telemetry.AuditorDLQTotal.Inc()
		return a.toDLQ(ctx, msg.Value)
	}

	span.SetAttributes(
		attribute.String("event.id", ev.ID),
		attribute.String("event.type", string(ev.Type)),
	)

	log := a.logger.With(
		slog.String("event_id", ev.ID),
		slog.String("event_type", string(ev.Type)),
		slog.String("quest_id", ev.QuestID),
	)

	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = a.now().UTC()
	}

	if err := a.audit.RecordEvent(ctx, &ev); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record event failed")
		// Transient Postgres error, leave the offset uncommitted.
		return fmt.Errorf("record event %s: %w", ev.ID, err)
	}

	if ev.Type == domain.EventSessionGhosted {
		a.applyGhostStrike(ctx, log, &ev)
	}

	telemetry.AuditorEventsConsumed.WithLabelValues(strings.ToLower(string(ev.Type))).Inc()
	log.Debug("event recorded")
	return nil
}

// applyGhostStrike mirrors a ghosting into both strike stores. The Postgres
// ledger is keyed by claim ID, so a redelivered event cannot double-strike
// there; the Redis counter is a best-effort fast path and the ledger stays
// the source of truth.
func (a *Auditor) applyGhostStrike(ctx context.Context, log *slog.Logger, ev *domain.Event) {
	if ev.WorkerID == "" {
		log.Warn("ghosted event without worker id, skipping strike")
		return
	}

	if err := a.audit.AddGhostStrike(ctx, ev.WorkerID, ev.QuestID, ev.ClaimID, ev.OccurredAt); err != nil {
		log.Error("add ghost strike", slog.String("error", err.Error()))
		return
	}

	total, err := a.strikes.Increment(ctx, ev.WorkerID)
	if err != nil {
		log.Error("increment strike counter", slog.String("error", err.Error()))
		return
	}
	log.Info("ghost strike applied",
		slog.String("worker_id", ev.WorkerID),
		slog.Int64("total_strikes", total),
	)
}

// toDLQ publishes a raw message to the dead-letter queue.
func (a *Auditor) toDLQ(ctx context.Context, payload []byte) error {
	if err := a.producer.Publish(ctx, kafka.DLQTopic, "", payload); err != nil {
		a.logger.Error("failed to publish to DLQ", slog.String("error", err.Error()))
		return err
	}
	return nil
}
