package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
)

// Windows are kept short so deadline behaviour runs in real time without
// slowing the suite down.
func testConfig() Config {
	return Config{
		NavigationWindow: 60 * time.Millisecond,
		MovementWindow:   120 * time.Millisecond,
		MinDisplacement:  50,
		AverageSpeed:     5,
	}
}

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeRegistry struct {
	mu          sync.Mutex
	reopened    []string
	transitions []string
}

func (f *fakeRegistry) Transition(questID string, _, to domain.QuestState) (domain.Quest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, questID+":"+string(to))
	return domain.Quest{ID: questID, State: to}, true
}

func (f *fakeRegistry) Reopen(questID string) (domain.Quest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reopened = append(f.reopened, questID)
	return domain.Quest{ID: questID, State: domain.QuestOpen}, true
}

func (f *fakeRegistry) reopenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reopened)
}

type fakeStore struct {
	mu    sync.Mutex
	saves []domain.OnTheWaySession
}

func (f *fakeStore) SaveSession(_ context.Context, s *domain.OnTheWaySession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, *s)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (f *fakePublisher) Publish(_ context.Context, ev domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) count(t domain.EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// ── helpers ──────────────────────────────────────────────────────────────────

var questLoc = domain.Location{Lat: 30.2672, Lng: -97.7431}

func newTestTracker(cfg Config) (*Tracker, *fakeRegistry, *fakeStore, *fakePublisher) {
	reg := &fakeRegistry{}
	store := &fakeStore{}
	events := &fakePublisher{}
	tr := NewTracker(reg, store, events, cfg)
	return tr, reg, store, events
}

func startSession(t *testing.T, tr *Tracker) *domain.OnTheWaySession {
	t.Helper()
	claim := &domain.Claim{ID: "c1", QuestID: "q1", WorkerID: "w1", Status: domain.ClaimWon}
	s, err := tr.StartSession(context.Background(), claim, domain.Quest{ID: "q1", Location: questLoc})
	require.NoError(t, err)
	return s
}

// offset returns questLoc displaced north by the given meters.
func offset(meters float64) domain.Location {
	return domain.Location{Lat: questLoc.Lat + meters/111_320.0, Lng: questLoc.Lng}
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestStartSession_InitialState(t *testing.T) {
	tr, _, _, _ := newTestTracker(testConfig())
	defer tr.Shutdown()
	s := startSession(t, tr)

	assert.Equal(t, domain.SessionAwaitingNavigation, s.State)
	assert.Equal(t, s.ClaimedAt.Add(60*time.Millisecond), s.NavigationDeadline)
	assert.Equal(t, s.ClaimedAt.Add(120*time.Millisecond), s.MovementDeadline)
}

func TestStartNavigation_BeforeDeadline(t *testing.T) {
	tr, reg, _, _ := newTestTracker(testConfig())
	defer tr.Shutdown()
	startSession(t, tr)

	s, err := tr.StartNavigation(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionEnRoute, s.State)
	require.NotNil(t, s.NavigationStartedAt)
	assert.Contains(t, reg.transitions, "q1:EN_ROUTE")
}

func TestStartNavigation_AfterDeadline_Ghosts(t *testing.T) {
	cfg := testConfig()
	cfg.NavigationWindow = 30 * time.Millisecond
	tr, reg, _, events := newTestTracker(cfg)
	defer tr.Shutdown()
	startSession(t, tr)

	// Let the navigation deadline pass; the timer ghosts on its own.
	time.Sleep(60 * time.Millisecond)

	s, err := tr.StartNavigation(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionGhosted, s.State)

	// Repeated late calls remain no-ops: one strike, one reversion.
	s, err = tr.StartNavigation(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionGhosted, s.State)

	assert.Equal(t, 1, events.count(domain.EventSessionGhosted), "strike must be emitted exactly once")
	assert.Equal(t, 1, events.count(domain.EventQuestReverted))
	assert.Equal(t, 1, reg.reopenCount(), "quest must revert to open exactly once")
}

func TestNavigationDeadline_FiresWithoutAnyClientCall(t *testing.T) {
	cfg := testConfig()
	cfg.NavigationWindow = 20 * time.Millisecond
	tr, reg, _, events := newTestTracker(cfg)
	defer tr.Shutdown()
	startSession(t, tr)

	// No client call at all, as if connectivity was lost. The engine still ghosts.
	assert.Eventually(t, func() bool {
		return events.count(domain.EventSessionGhosted) == 1 && reg.reopenCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestMovementDeadline_NoDisplacementGhosts(t *testing.T) {
	cfg := testConfig()
	cfg.NavigationWindow = 200 * time.Millisecond
	cfg.MovementWindow = 80 * time.Millisecond
	tr, _, _, events := newTestTracker(cfg)
	defer tr.Shutdown()
	startSession(t, tr)

	_, err := tr.StartNavigation(context.Background(), "c1")
	require.NoError(t, err)

	// Anchor at 1km out, then keep reporting the same spot.
	_, err = tr.ReportLocation(context.Background(), "c1", offset(1000))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		time.Sleep(20 * time.Millisecond)
		_, _ = tr.ReportLocation(context.Background(), "c1", offset(1000))
	}

	assert.Eventually(t, func() bool {
		return events.count(domain.EventSessionGhosted) == 1
	}, time.Second, 5*time.Millisecond)

	s, err := tr.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionGhosted, s.State)
}

func TestMovementDeadline_ProgressExtends(t *testing.T) {
	cfg := testConfig()
	cfg.NavigationWindow = 500 * time.Millisecond
	cfg.MovementWindow = 60 * time.Millisecond
	tr, _, _, events := newTestTracker(cfg)
	defer tr.Shutdown()
	startSession(t, tr)

	_, err := tr.StartNavigation(context.Background(), "c1")
	require.NoError(t, err)

	// Meaningful displacement on every report keeps the session alive well
	// past the original movement deadline.
	for i := 0; i < 6; i++ {
		_, err = tr.ReportLocation(context.Background(), "c1", offset(float64(1000-i*100)))
		require.NoError(t, err)
		time.Sleep(30 * time.Millisecond)
	}

	assert.Zero(t, events.count(domain.EventSessionGhosted))
	s, err := tr.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionEnRoute, s.State)
}

func TestReportLocation_UpdatesETA(t *testing.T) {
	tr, _, _, _ := newTestTracker(testConfig())
	defer tr.Shutdown()
	startSession(t, tr)
	_, err := tr.StartNavigation(context.Background(), "c1")
	require.NoError(t, err)

	s, err := tr.ReportLocation(context.Background(), "c1", offset(1000))
	require.NoError(t, err)
	assert.InDelta(t, 1000, s.DistanceRemaining, 10)
	assert.InDelta(t, 200, s.ETASeconds, 5) // 1000m at 5 m/s
}

func TestReportLocation_RequiresEnRoute(t *testing.T) {
	tr, _, _, _ := newTestTracker(testConfig())
	defer tr.Shutdown()
	startSession(t, tr)

	_, err := tr.ReportLocation(context.Background(), "c1", offset(1000))
	var stateErr *domain.SessionStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, domain.SessionAwaitingNavigation, stateErr.State)
}

func TestMarkArrived_Idempotent(t *testing.T) {
	tr, reg, _, events := newTestTracker(testConfig())
	defer tr.Shutdown()
	startSession(t, tr)
	_, err := tr.StartNavigation(context.Background(), "c1")
	require.NoError(t, err)

	first, err := tr.MarkArrived(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionArrived, first.State)
	require.NotNil(t, first.ArrivedAt)

	second, err := tr.MarkArrived(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, first.ArrivedAt, second.ArrivedAt, "repeat calls return the recorded arrival")

	assert.Equal(t, 1, events.count(domain.EventSessionArrived))
	assert.Contains(t, reg.transitions, "q1:ARRIVED")
}

func TestMarkArrived_BlocksDeadlines(t *testing.T) {
	cfg := testConfig()
	cfg.MovementWindow = 40 * time.Millisecond
	tr, _, _, events := newTestTracker(cfg)
	defer tr.Shutdown()
	startSession(t, tr)

	_, err := tr.StartNavigation(context.Background(), "c1")
	require.NoError(t, err)
	_, err = tr.MarkArrived(context.Background(), "c1")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, events.count(domain.EventSessionGhosted), "an arrived session must never ghost")
}

func TestCancel_NoStrike(t *testing.T) {
	tr, reg, _, events := newTestTracker(testConfig())
	defer tr.Shutdown()
	startSession(t, tr)

	s, err := tr.Cancel(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCancelled, s.State)

	assert.Equal(t, 1, reg.reopenCount(), "cancelled quest must be re-broadcast")
	assert.Equal(t, 1, events.count(domain.EventSessionCancelled))
	assert.Zero(t, events.count(domain.EventSessionGhosted), "an explicit back-out is not a strike")

	_, err = tr.Cancel(context.Background(), "c1")
	var stateErr *domain.SessionStateError
	require.ErrorAs(t, err, &stateErr)
}

func TestGet_UnknownClaim(t *testing.T) {
	tr, _, _, _ := newTestTracker(testConfig())
	defer tr.Shutdown()

	_, err := tr.Get("missing")
	var notFound *domain.ClaimNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.ClaimID)
}

// Racing the navigation timer with concurrent late StartNavigation calls
// must still produce exactly one ghost.
func TestGhost_ExactlyOnceUnderRace(t *testing.T) {
	cfg := testConfig()
	cfg.NavigationWindow = 10 * time.Millisecond
	tr, reg, _, events := newTestTracker(cfg)
	defer tr.Shutdown()
	startSession(t, tr)

	time.Sleep(15 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = tr.StartNavigation(context.Background(), "c1")
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		return events.count(domain.EventSessionGhosted) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, reg.reopenCount())
}
