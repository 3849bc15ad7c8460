package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
)

// ProfileRepository reads the worker profile fields eligibility depends
// on. The marketplace side owns writes; the engine only reads.
type ProfileRepository interface {
	GetWorkerProfile(ctx context.Context, workerID string) (*domain.WorkerSnapshot, error)
}

type profileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository wraps a pgxpool with the ProfileRepository interface.
func NewProfileRepository(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepository{pool: pool}
}

// GetWorkerProfile returns the stored profile. A worker the marketplace
// has not synced yet reads as an unverified rookie with no skills, so an
// unknown worker can never claim a gated quest.
func (r *profileRepository) GetWorkerProfile(ctx context.Context, workerID string) (*domain.WorkerSnapshot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT worker_id, tier, verified_skills, ghosting_strikes
		FROM worker_profiles
		WHERE worker_id = $1
	`, workerID)

	var w domain.WorkerSnapshot
	var tier int
	if err := row.Scan(&w.WorkerID, &tier, &w.VerifiedSkills, &w.GhostingStrikes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.WorkerSnapshot{WorkerID: workerID, Tier: domain.TierRookie}, nil
		}
		return nil, fmt.Errorf("get worker profile %s: %w", workerID, err)
	}
	w.Tier = domain.TrustTier(tier)
	return &w, nil
}
