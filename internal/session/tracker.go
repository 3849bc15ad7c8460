// Package session owns the lifecycle of a winning claim from "en route"
// through "arrived". Deadlines are enforced by the engine's own wall-clock
// timers, so a worker whose app was killed or lost connectivity still gets
// ghosted on schedule.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
	"github.com/Sebdysart/hustlexp-engine/internal/geo"
	"github.com/Sebdysart/hustlexp-engine/pkg/telemetry"
)

// QuestReverter is the slice of the quest registry the tracker needs to
// transition quest state alongside session state.
type QuestReverter interface {
	Transition(questID string, from, to domain.QuestState) (domain.Quest, bool)
	Reopen(questID string) (domain.Quest, bool)
}

// Store archives session state transitions. Postgres in production;
// failures are logged, never block a transition.
type Store interface {
	SaveSession(ctx context.Context, s *domain.OnTheWaySession) error
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Config holds the deadline policy. The sample durations from product
// screens are defaults only; production values come from service config.
type Config struct {
	NavigationWindow time.Duration // claim → startNavigation deadline
	MovementWindow   time.Duration // rolling window of meaningful displacement
	MinDisplacement  float64       // meters of movement that count as progress
	AverageSpeed     float64       // m/s used for the running ETA estimate
}

// DefaultConfig mirrors the illustrative product values.
func DefaultConfig() Config {
	return Config{
		NavigationWindow: 60 * time.Second,
		MovementWindow:   120 * time.Second,
		MinDisplacement:  50,
		AverageSpeed:     5,
	}
}

type entry struct {
	mu        sync.Mutex
	s         domain.OnTheWaySession
	questLoc  domain.Location
	anchor    domain.Location // last position that counted as progress
	hasAnchor bool
	navTimer  *time.Timer
	moveTimer *time.Timer
}

// Tracker is the deadline state machine over all live on-the-way sessions.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]*entry

	registry QuestReverter
	store    Store
	events   Publisher
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(t *Tracker) { t.logger = l } }

// NewTracker constructs a Tracker.
func NewTracker(registry QuestReverter, store Store, events Publisher, cfg Config, opts ...Option) *Tracker {
	t := &Tracker{
		entries:  make(map[string]*entry),
		registry: registry,
		store:    store,
		events:   events,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartSession creates the on-the-way session for a winning claim and arms
// both deadline timers. Implements arbiter.SessionStarter.
func (t *Tracker) StartSession(ctx context.Context, claim *domain.Claim, quest domain.Quest) (*domain.OnTheWaySession, error) {
	now := t.now().UTC()
	s := domain.OnTheWaySession{
		ClaimID:            claim.ID,
		QuestID:            claim.QuestID,
		WorkerID:           claim.WorkerID,
		State:              domain.SessionAwaitingNavigation,
		ClaimedAt:          now,
		NavigationDeadline: now.Add(t.cfg.NavigationWindow),
		MovementDeadline:   now.Add(t.cfg.MovementWindow),
	}

	e := &entry{s: s, questLoc: quest.Location}
	t.mu.Lock()
	t.entries[claim.ID] = e
	t.mu.Unlock()

	claimID := claim.ID
	e.navTimer = time.AfterFunc(t.cfg.NavigationWindow, func() { t.deadlineFired(claimID, domain.SessionAwaitingNavigation) })
	e.moveTimer = time.AfterFunc(t.cfg.MovementWindow, func() { t.deadlineFired(claimID, domain.SessionEnRoute) })

	telemetry.SessionsActive.Inc()
	t.save(ctx, &s)
	return &s, nil
}

// Get returns a snapshot of the session for claimID.
func (t *Tracker) Get(claimID string) (domain.OnTheWaySession, error) {
	e, ok := t.lookup(claimID)
	if !ok {
		return domain.OnTheWaySession{}, &domain.ClaimNotFoundError{ClaimID: claimID}
	}
	e.mu.Lock()
	cp := e.s
	e.mu.Unlock()
	return cp, nil
}

// StartNavigation transitions AwaitingNavigation → EnRoute. Called after
// the navigation deadline it instead forces Ghosted, exactly once, no
// matter how many late calls race the timer.
func (t *Tracker) StartNavigation(ctx context.Context, claimID string) (domain.OnTheWaySession, error) {
	e, ok := t.lookup(claimID)
	if !ok {
		return domain.OnTheWaySession{}, &domain.ClaimNotFoundError{ClaimID: claimID}
	}

	e.mu.Lock()
	switch {
	case e.s.State.IsTerminal():
		cp := e.s
		e.mu.Unlock()
		if cp.State == domain.SessionGhosted {
			return cp, nil // the timer beat this call; the ghost already happened
		}
		return cp, &domain.SessionStateError{ClaimID: claimID, State: cp.State, Op: "start navigation"}
	case e.s.State != domain.SessionAwaitingNavigation:
		cp := e.s
		e.mu.Unlock()
		return cp, &domain.SessionStateError{ClaimID: claimID, State: cp.State, Op: "start navigation"}
	}

	now := t.now().UTC()
	if now.After(e.s.NavigationDeadline) {
		e.mu.Unlock()
		t.ghost(ctx, e, "navigation deadline passed")
		e.mu.Lock()
		cp := e.s
		e.mu.Unlock()
		return cp, nil
	}

	e.s.State = domain.SessionEnRoute
	e.s.NavigationStartedAt = &now
	if e.navTimer != nil {
		e.navTimer.Stop()
	}
	cp := e.s
	e.mu.Unlock()

	t.registry.Transition(cp.QuestID, domain.QuestClaimed, domain.QuestEnRoute)
	t.save(ctx, &cp)
	return cp, nil
}

// ReportLocation records a periodic location update while EnRoute,
// recomputing the running ETA and distance remaining. Displacement of at
// least MinDisplacement from the last progress point pushes the movement
// deadline out by a full window.
func (t *Tracker) ReportLocation(ctx context.Context, claimID string, loc domain.Location) (domain.OnTheWaySession, error) {
	e, ok := t.lookup(claimID)
	if !ok {
		return domain.OnTheWaySession{}, &domain.ClaimNotFoundError{ClaimID: claimID}
	}

	e.mu.Lock()
	if e.s.State != domain.SessionEnRoute {
		cp := e.s
		e.mu.Unlock()
		return cp, &domain.SessionStateError{ClaimID: claimID, State: cp.State, Op: "report location"}
	}

	e.s.LastLocation = &loc
	e.s.DistanceRemaining = geo.Distance(loc, e.questLoc)
	if t.cfg.AverageSpeed > 0 {
		e.s.ETASeconds = int64(e.s.DistanceRemaining / t.cfg.AverageSpeed)
	}

	progressed := !e.hasAnchor || geo.Distance(loc, e.anchor) >= t.cfg.MinDisplacement
	if progressed {
		e.anchor = loc
		e.hasAnchor = true
		e.s.MovementDeadline = t.now().UTC().Add(t.cfg.MovementWindow)
		if e.moveTimer != nil {
			e.moveTimer.Reset(t.cfg.MovementWindow)
		}
	}
	cp := e.s
	e.mu.Unlock()
	return cp, nil
}

// MarkArrived transitions EnRoute → Arrived. Idempotent: repeat calls
// return the already-recorded arrival.
func (t *Tracker) MarkArrived(ctx context.Context, claimID string) (domain.OnTheWaySession, error) {
	e, ok := t.lookup(claimID)
	if !ok {
		return domain.OnTheWaySession{}, &domain.ClaimNotFoundError{ClaimID: claimID}
	}

	e.mu.Lock()
	if e.s.State == domain.SessionArrived {
		cp := e.s
		e.mu.Unlock()
		return cp, nil
	}
	if e.s.State != domain.SessionEnRoute {
		cp := e.s
		e.mu.Unlock()
		return cp, &domain.SessionStateError{ClaimID: claimID, State: cp.State, Op: "mark arrived"}
	}

	now := t.now().UTC()
	e.s.State = domain.SessionArrived
	e.s.ArrivedAt = &now
	e.stopTimers()
	cp := e.s
	e.mu.Unlock()

	t.registry.Transition(cp.QuestID, domain.QuestEnRoute, domain.QuestArrived)
	telemetry.SessionsActive.Dec()
	telemetry.SessionOutcomes.WithLabelValues("arrived").Inc()
	t.publish(ctx, domain.EventSessionArrived, &cp)
	t.save(ctx, &cp)
	t.logger.Info("worker arrived",
		slog.String("claim_id", cp.ClaimID),
		slog.String("quest_id", cp.QuestID),
	)
	return cp, nil
}

// Cancel moves any non-terminal session to Cancelled and re-broadcasts the
// quest. An explicit back-out before the deadline is not a strike.
func (t *Tracker) Cancel(ctx context.Context, claimID string) (domain.OnTheWaySession, error) {
	e, ok := t.lookup(claimID)
	if !ok {
		return domain.OnTheWaySession{}, &domain.ClaimNotFoundError{ClaimID: claimID}
	}

	e.mu.Lock()
	if e.s.State.IsTerminal() {
		cp := e.s
		e.mu.Unlock()
		return cp, &domain.SessionStateError{ClaimID: claimID, State: cp.State, Op: "cancel"}
	}
	e.s.State = domain.SessionCancelled
	e.stopTimers()
	cp := e.s
	e.mu.Unlock()

	t.registry.Reopen(cp.QuestID)
	telemetry.SessionsActive.Dec()
	telemetry.SessionOutcomes.WithLabelValues("cancelled").Inc()
	t.publish(ctx, domain.EventSessionCancelled, &cp)
	t.publish(ctx, domain.EventQuestReverted, &cp)
	t.save(ctx, &cp)
	return cp, nil
}

// deadlineFired is the timer callback for both deadlines. The expected
// state pins which deadline this is: a session that has already moved on
// (navigation started before the navigation deadline, arrived before the
// movement deadline) is left alone.
func (t *Tracker) deadlineFired(claimID string, expected domain.SessionState) {
	e, ok := t.lookup(claimID)
	if !ok {
		return
	}
	e.mu.Lock()
	fire := e.s.State == expected
	e.mu.Unlock()
	if !fire {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reason := "navigation deadline passed"
	if expected == domain.SessionEnRoute {
		reason = "movement deadline passed with no meaningful displacement"
	}
	t.ghost(ctx, e, reason)
}

// ghost is the single path into the Ghosted terminal. Exactly one caller
// wins the transition under the entry lock; every other racer (late
// StartNavigation calls, the other timer) sees a terminal state and does
// nothing, so the strike is emitted exactly once.
func (t *Tracker) ghost(ctx context.Context, e *entry, reason string) {
	e.mu.Lock()
	if e.s.State.IsTerminal() {
		e.mu.Unlock()
		return
	}
	e.s.State = domain.SessionGhosted
	e.stopTimers()
	cp := e.s
	e.mu.Unlock()

	t.registry.Reopen(cp.QuestID)
	telemetry.SessionsActive.Dec()
	telemetry.SessionOutcomes.WithLabelValues("ghosted").Inc()
	t.publish(ctx, domain.EventSessionGhosted, &cp)
	t.publish(ctx, domain.EventQuestReverted, &cp)
	t.save(ctx, &cp)
	t.logger.Warn("session ghosted",
		slog.String("claim_id", cp.ClaimID),
		slog.String("quest_id", cp.QuestID),
		slog.String("worker_id", cp.WorkerID),
		slog.String("reason", reason),
	)
}

// Shutdown stops every armed timer. Sessions are recoverable from the
// archive on restart.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		e.mu.Lock()
		e.stopTimers()
		e.mu.Unlock()
	}
}

func (t *Tracker) lookup(claimID string) (*entry, bool) {
	t.mu.RLock()
	e, ok := t.entries[claimID]
	t.mu.RUnlock()
	return e, ok
}

func (e *entry) stopTimers() {
	if e.navTimer != nil {
		e.navTimer.Stop()
	}
	if e.moveTimer != nil {
		e.moveTimer.Stop()
	}
}

func (t *Tracker) save(ctx context.Context, s *domain.OnTheWaySession) {
	if t.store == nil {
		return
	}
	if err := t.store.SaveSession(ctx, s); err != nil {
		t.logger.Error("failed to archive session",
			slog.String("claim_id", s.ClaimID),
			slog.String("error", err.Error()),
		)
	}
}

func (t *Tracker) publish(ctx context.Context, typ domain.EventType, s *domain.OnTheWaySession) {
	if t.events == nil {
		return
	}
	ev := domain.Event{
		ID:         uuid.New().String(),
		Type:       typ,
		OccurredAt: t.now().UTC(),
		QuestID:    s.QuestID,
		WorkerID:   s.WorkerID,
		ClaimID:    s.ClaimID,
	}
	if err := t.events.Publish(ctx, ev); err != nil {
		t.logger.Error("failed to publish event",
			slog.String("event_type", string(typ)),
			slog.String("claim_id", s.ClaimID),
			slog.String("error", err.Error()),
		)
	}
}
