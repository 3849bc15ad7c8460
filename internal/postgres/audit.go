package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
)

// AuditRepository is the auditor's write path: an append-only event log
// plus the durable ghost-strike ledger.
type AuditRepository interface {
	RecordEvent(ctx context.Context, ev *domain.Event) error
	AddGhostStrike(ctx context.Context, workerID, questID, claimID string, at time.Time) error
	CountGhostStrikes(ctx context.Context, workerID string) (int, error)
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository wraps a pgxpool with the AuditRepository interface.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

// RecordEvent appends one event. The primary key on event ID makes replays
// from Kafka idempotent: a re-delivered event is a no-op.
func (r *auditRepository) RecordEvent(ctx context.Context, ev *domain.Event) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO quest_events
			(id, type, quest_id, worker_id, claim_id, payload, occurred_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`,
		ev.ID, string(ev.Type), ev.QuestID, ev.WorkerID, ev.ClaimID,
		ev.Payload, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("record event %s: %w", ev.ID, err)
	}
	return nil
}

func (r *auditRepository) AddGhostStrike(ctx context.Context, workerID, questID, claimID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ghost_strikes (worker_id, quest_id, claim_id, struck_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (claim_id) DO NOTHING
	`, workerID, questID, claimID, at)
	if err != nil {
		return fmt.Errorf("add ghost strike for worker %s: %w", workerID, err)
	}
	return nil
}

func (r *auditRepository) CountGhostStrikes(ctx context.Context, workerID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM ghost_strikes WHERE worker_id = $1
	`, workerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count ghost strikes for worker %s: %w", workerID, err)
	}
	return n, nil
}

// PruneEvents deletes audit rows older than the cutoff and returns the
// number removed.
func (r *auditRepository) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM quest_events WHERE occurred_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("prune events before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}
