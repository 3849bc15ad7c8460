// Package live owns worker live-mode sessions: who is broadcasting, where
// they are, and which quests they can currently see.
package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Sebdysart/hustlexp-engine/internal/arbiter"
	"github.com/Sebdysart/hustlexp-engine/internal/domain"
	"github.com/Sebdysart/hustlexp-engine/internal/eligibility"
	"github.com/Sebdysart/hustlexp-engine/pkg/telemetry"
)

// SessionStore mirrors live-session state into shared storage so live mode
// survives an engine restart. Redis in production; failures are logged,
// never block the toggle.
type SessionStore interface {
	PutLiveSession(ctx context.Context, s *domain.WorkerLiveSession) error
	DeleteLiveSession(ctx context.Context, workerID string) error
}

// Config tunes visibility and staleness.
type Config struct {
	SessionTTL    time.Duration // no location update for this long reaps the session
	VisibleRadius float64       // meters around the worker to search
	MaxVisible    int           // cap on alerts per refresh, 0 = unlimited
}

// DefaultConfig matches the mobile refresh cadence.
func DefaultConfig() Config {
	return Config{
		SessionTTL:    90 * time.Second,
		VisibleRadius: 5000,
		MaxVisible:    50,
	}
}

// Registry tracks every worker with live mode on.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*domain.WorkerLiveSession

	quests   *arbiter.Registry
	profiles domain.WorkerProfileSource
	store    SessionStore
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(r *Registry) { r.logger = l } }

// WithStore attaches the shared session store.
func WithStore(s SessionStore) Option { return func(r *Registry) { r.store = s } }

// NewRegistry constructs a live-mode registry over the quest registry.
func NewRegistry(quests *arbiter.Registry, profiles domain.WorkerProfileSource, cfg Config, opts ...Option) *Registry {
	if cfg.SessionTTL <= 0 {
		cfg = DefaultConfig()
	}
	r := &Registry{
		sessions: make(map[string]*domain.WorkerLiveSession),
		quests:   quests,
		profiles: profiles,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enable turns live mode on for a worker. Enabling an already-live worker
// refreshes its location and filters in place.
func (r *Registry) Enable(ctx context.Context, workerID string, loc domain.Location, categories []string) (*domain.WorkerLiveSession, error) {
	if !loc.Valid() {
		return nil, &domain.InvalidLocationError{Lat: loc.Lat, Lng: loc.Lng}
	}
	now := r.now().UTC()

	r.mu.Lock()
	s, ok := r.sessions[workerID]
	if !ok {
		s = &domain.WorkerLiveSession{WorkerID: workerID, ActiveSince: now}
		r.sessions[workerID] = s
		telemetry.APILiveSessions.Inc()
	}
	s.Location = loc
	s.Categories = categories
	s.LastSeenAt = now
	cp := *s
	r.mu.Unlock()

	r.persist(ctx, &cp)
	if !ok {
		r.logger.Info("live mode enabled", slog.String("worker_id", workerID))
	}
	return &cp, nil
}

// Disable turns live mode off. Disabling a worker who is not live is a
// no-op.
func (r *Registry) Disable(ctx context.Context, workerID string) {
	r.mu.Lock()
	_, ok := r.sessions[workerID]
	if ok {
		delete(r.sessions, workerID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	telemetry.APILiveSessions.Dec()
	if r.store != nil {
		if err := r.store.DeleteLiveSession(ctx, workerID); err != nil {
			r.logger.Error("failed to delete live session",
				slog.String("worker_id", workerID),
				slog.String("error", err.Error()),
			)
		}
	}
	r.logger.Info("live mode disabled", slog.String("worker_id", workerID))
}

// Session returns a snapshot of the worker's live session.
func (r *Registry) Session(workerID string) (domain.WorkerLiveSession, error) {
	r.mu.RLock()
	s, ok := r.sessions[workerID]
	if !ok {
		r.mu.RUnlock()
		return domain.WorkerLiveSession{}, &domain.NoLiveSessionError{WorkerID: workerID}
	}
	cp := *s
	r.mu.RUnlock()
	return cp, nil
}

// RefreshLocation records a new position for a live worker and extends the
// session TTL.
func (r *Registry) RefreshLocation(ctx context.Context, workerID string, loc domain.Location) error {
	if !loc.Valid() {
		return &domain.InvalidLocationError{Lat: loc.Lat, Lng: loc.Lng}
	}

	r.mu.Lock()
	s, ok := r.sessions[workerID]
	if !ok {
		r.mu.Unlock()
		return &domain.NoLiveSessionError{WorkerID: workerID}
	}
	s.Location = loc
	s.LastSeenAt = r.now().UTC()
	cp := *s
	r.mu.Unlock()

	r.persist(ctx, &cp)
	return nil
}

// VisibleQuests computes the alert list for a live worker: open quests in
// radius, filtered by the worker's category preferences, partitioned into
// claimable and locked-with-reason by the eligibility rules. Distance and
// time remaining are computed here, server-side.
func (r *Registry) VisibleQuests(ctx context.Context, workerID string) ([]domain.QuestAlert, error) {
	r.mu.RLock()
	s, ok := r.sessions[workerID]
	if !ok {
		r.mu.RUnlock()
		return nil, &domain.NoLiveSessionError{WorkerID: workerID}
	}
	loc := s.Location
	categories := append([]string(nil), s.Categories...)
	r.mu.RUnlock()

	profile, err := r.profiles.Snapshot(ctx, workerID)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	refs := r.quests.Index().Query(loc, r.cfg.VisibleRadius, nil)

	alerts := make([]domain.QuestAlert, 0, len(refs))
	visible := make([]string, 0, len(refs))
	for _, ref := range refs {
		if r.cfg.MaxVisible > 0 && len(alerts) >= r.cfg.MaxVisible {
			break
		}
		q, ok := r.quests.Snapshot(ref.QuestID)
		if !ok || q.State != domain.QuestOpen || q.ExpiredAt(now) {
			continue
		}
		if !categoryMatch(categories, q.Category) {
			continue
		}

		eligible, reason := eligibility.Check(profile, &q)
		alerts = append(alerts, domain.QuestAlert{
			QuestID:        q.ID,
			Title:          q.Title,
			Category:       q.Category,
			PaymentCents:   q.PaymentCents,
			DistanceMeters: ref.DistanceMeters,
			TimeRemaining:  timeRemaining(&q, now),
			Locked:         !eligible,
			LockReason:     reason,
		})
		visible = append(visible, q.ID)
	}

	r.mu.Lock()
	if s, ok := r.sessions[workerID]; ok {
		s.VisibleQuests = visible
	}
	r.mu.Unlock()
	return alerts, nil
}

// ReapStale removes every session whose last location update is older than
// the TTL. Returns the reaped worker IDs. Called on a cadence by the
// engine's ticker and by the sweeper.
func (r *Registry) ReapStale(ctx context.Context) []string {
	cutoff := r.now().UTC().Add(-r.cfg.SessionTTL)

	r.mu.Lock()
	var reaped []string
	for id, s := range r.sessions {
		if s.LastSeenAt.Before(cutoff) {
			delete(r.sessions, id)
			reaped = append(reaped, id)
		}
	}
	r.mu.Unlock()

	for _, id := range reaped {
		telemetry.APILiveSessions.Dec()
		if r.store != nil {
			if err := r.store.DeleteLiveSession(ctx, id); err != nil {
				r.logger.Error("failed to delete reaped session",
					slog.String("worker_id", id),
					slog.String("error", err.Error()),
				)
			}
		}
		r.logger.Info("live session reaped", slog.String("worker_id", id))
	}
	return reaped
}

// Count returns the number of live workers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) persist(ctx context.Context, s *domain.WorkerLiveSession) {
	if r.store == nil {
		return
	}
	if err := r.store.PutLiveSession(ctx, s); err != nil {
		r.logger.Error("failed to persist live session",
			slog.String("worker_id", s.WorkerID),
			slog.String("error", err.Error()),
		)
	}
}

// timeRemaining is the server-computed claim window in seconds. Zero means
// the quest carries no expiry.
func timeRemaining(q *domain.Quest, now time.Time) int64 {
	if q.ExpiresAt.IsZero() {
		return 0
	}
	rem := q.ExpiresAt.Sub(now)
	if rem < 0 {
		return 0
	}
	return int64(rem.Seconds())
}

func categoryMatch(want []string, category string) bool {
	if len(want) == 0 {
		return true
	}
	for _, c := range want {
		if c == category {
			return true
		}
	}
	return false
}
