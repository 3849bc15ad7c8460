// Package postgres is the engine's durable layer. Redis holds the hot
// state; everything here is the system of record for quests, claims and
// session history.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
)

// Repository abstracts all engine-side database access.
type Repository interface {
	UpsertQuest(ctx context.Context, q *domain.Quest) error
	UpdateQuestState(ctx context.Context, id string, state domain.QuestState) error
	GetQuest(ctx context.Context, id string) (*domain.Quest, error)
	ListQuestsByState(ctx context.Context, state domain.QuestState, limit int) ([]*domain.Quest, error)

	CreateClaim(ctx context.Context, c *domain.Claim) error
	GetClaim(ctx context.Context, id string) (*domain.Claim, error)
	UpdateClaimStatus(ctx context.Context, id string, status domain.ClaimStatus) error

	SaveSession(ctx context.Context, s *domain.OnTheWaySession) error
	GetSession(ctx context.Context, claimID string) (*domain.OnTheWaySession, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps a pgxpool with the Repository interface.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (r *repository) UpsertQuest(ctx context.Context, q *domain.Quest) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO quests
			(id, title, category, lat, lng, required_tier, required_skills, payment_cents, state, created_at, expires_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title,
		    category = EXCLUDED.category,
		    lat = EXCLUDED.lat,
		    lng = EXCLUDED.lng,
		    required_tier = EXCLUDED.required_tier,
		    required_skills = EXCLUDED.required_skills,
		    payment_cents = EXCLUDED.payment_cents,
		    state = EXCLUDED.state,
		    expires_at = EXCLUDED.expires_at
	`,
		q.ID, q.Title, q.Category, q.Location.Lat, q.Location.Lng,
		int(q.RequiredTier), q.RequiredSkills, q.PaymentCents,
		string(q.State), q.CreatedAt, nullableTime(q.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("upsert quest %s: %w", q.ID, err)
	}
	return nil
}

func (r *repository) UpdateQuestState(ctx context.Context, id string, state domain.QuestState) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE quests SET state = $1, updated_at = NOW() WHERE id = $2
	`, string(state), id)
	if err != nil {
		return fmt.Errorf("update state for quest %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.QuestNotFoundError{QuestID: id}
	}
	return nil
}

func (r *repository) GetQuest(ctx context.Context, id string) (*domain.Quest, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, title, category, lat, lng, required_tier, required_skills,
		       payment_cents, state, created_at, expires_at
		FROM quests
		WHERE id = $1
	`, id)
	q, err := scanQuest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.QuestNotFoundError{QuestID: id}
		}
		return nil, err
	}
	return q, nil
}

func (r *repository) ListQuestsByState(ctx context.Context, state domain.QuestState, limit int) ([]*domain.Quest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, category, lat, lng, required_tier, required_skills,
		       payment_cents, state, created_at, expires_at
		FROM quests
		WHERE state = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, string(state), limit)
	if err != nil {
		return nil, fmt.Errorf("list quests by state %s: %w", state, err)
	}
	defer rows.Close()

	var quests []*domain.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, err
		}
		quests = append(quests, q)
	}
	return quests, rows.Err()
}

func (r *repository) CreateClaim(ctx context.Context, c *domain.Claim) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO claims (id, quest_id, worker_id, status, claimed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.QuestID, c.WorkerID, string(c.Status), c.ClaimedAt)
	if err != nil {
		return fmt.Errorf("create claim %s: %w", c.ID, err)
	}
	return nil
}

func (r *repository) GetClaim(ctx context.Context, id string) (*domain.Claim, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, quest_id, worker_id, status, claimed_at
		FROM claims
		WHERE id = $1
	`, id)

	var c domain.Claim
	var status string
	if err := row.Scan(&c.ID, &c.QuestID, &c.WorkerID, &status, &c.ClaimedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.ClaimNotFoundError{ClaimID: id}
		}
		return nil, fmt.Errorf("scan claim: %w", err)
	}
	c.Status = domain.ClaimStatus(status)
	return &c, nil
}

func (r *repository) UpdateClaimStatus(ctx context.Context, id string, status domain.ClaimStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE claims SET status = $1 WHERE id = $2
	`, string(status), id)
	if err != nil {
		return fmt.Errorf("update status for claim %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ClaimNotFoundError{ClaimID: id}
	}
	return nil
}

// SaveSession upserts so every transition overwrites the archived row with
// the latest state.
func (r *repository) SaveSession(ctx context.Context, s *domain.OnTheWaySession) error {
	var lastLat, lastLng *float64
	if s.LastLocation != nil {
		lastLat, lastLng = &s.LastLocation.Lat, &s.LastLocation.Lng
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO otw_sessions
			(claim_id, quest_id, worker_id, state, claimed_at, navigation_deadline,
			 movement_deadline, navigation_started_at, arrived_at, last_lat, last_lng,
			 distance_remaining, eta_seconds, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (claim_id) DO UPDATE
		SET state = EXCLUDED.state,
		    movement_deadline = EXCLUDED.movement_deadline,
		    navigation_started_at = EXCLUDED.navigation_started_at,
		    arrived_at = EXCLUDED.arrived_at,
		    last_lat = EXCLUDED.last_lat,
		    last_lng = EXCLUDED.last_lng,
		    distance_remaining = EXCLUDED.distance_remaining,
		    eta_seconds = EXCLUDED.eta_seconds,
		    updated_at = NOW()
	`,
		s.ClaimID, s.QuestID, s.WorkerID, string(s.State), s.ClaimedAt,
		s.NavigationDeadline, s.MovementDeadline, s.NavigationStartedAt,
		s.ArrivedAt, lastLat, lastLng, s.DistanceRemaining, s.ETASeconds,
	)
	if err != nil {
		return fmt.Errorf("save session for claim %s: %w", s.ClaimID, err)
	}
	return nil
}

func (r *repository) GetSession(ctx context.Context, claimID string) (*domain.OnTheWaySession, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT claim_id, quest_id, worker_id, state, claimed_at, navigation_deadline,
		       movement_deadline, navigation_started_at, arrived_at, last_lat, last_lng,
		       distance_remaining, eta_seconds
		FROM otw_sessions
		WHERE claim_id = $1
	`, claimID)

	var s domain.OnTheWaySession
	var state string
	var lastLat, lastLng *float64
	err := row.Scan(
		&s.ClaimID, &s.QuestID, &s.WorkerID, &state, &s.ClaimedAt,
		&s.NavigationDeadline, &s.MovementDeadline, &s.NavigationStartedAt,
		&s.ArrivedAt, &lastLat, &lastLng, &s.DistanceRemaining, &s.ETASeconds,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.ClaimNotFoundError{ClaimID: claimID}
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	s.State = domain.SessionState(state)
	if lastLat != nil && lastLng != nil {
		s.LastLocation = &domain.Location{Lat: *lastLat, Lng: *lastLng}
	}
	return &s, nil
}

// scanQuest reads a quest row from any pgx row type.
func scanQuest(row interface {
	Scan(...any) error
}) (*domain.Quest, error) {
	var q domain.Quest
	var state string
	var tier int
	var expiresAt *time.Time
	err := row.Scan(
		&q.ID, &q.Title, &q.Category, &q.Location.Lat, &q.Location.Lng,
		&tier, &q.RequiredSkills, &q.PaymentCents, &state, &q.CreatedAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}
	q.RequiredTier = domain.TrustTier(tier)
	q.State = domain.QuestState(state)
	if expiresAt != nil {
		q.ExpiresAt = *expiresAt
	}
	return &q, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
