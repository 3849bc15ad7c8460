package live

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sebdysart/hustlexp-engine/internal/arbiter"
	"github.com/Sebdysart/hustlexp-engine/internal/domain"
	"github.com/Sebdysart/hustlexp-engine/internal/geo"
)

var downtown = domain.Location{Lat: 30.2672, Lng: -97.7431}

type fakeProfiles struct {
	snapshots map[string]domain.WorkerSnapshot
}

func (f *fakeProfiles) Snapshot(_ context.Context, workerID string) (domain.WorkerSnapshot, error) {
	if s, ok := f.snapshots[workerID]; ok {
		return s, nil
	}
	return domain.WorkerSnapshot{WorkerID: workerID}, nil
}

type fakeStore struct {
	mu      sync.Mutex
	puts    map[string]int
	deletes map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{puts: make(map[string]int), deletes: make(map[string]int)}
}

func (f *fakeStore) PutLiveSession(_ context.Context, s *domain.WorkerLiveSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts[s.WorkerID]++
	return nil
}

func (f *fakeStore) DeleteLiveSession(_ context.Context, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes[workerID]++
	return nil
}

func openQuest(id, category string, loc domain.Location, tier domain.TrustTier, skills ...string) *domain.Quest {
	return &domain.Quest{
		ID:             id,
		Title:          "quest " + id,
		Category:       category,
		Location:       loc,
		RequiredTier:   tier,
		RequiredSkills: skills,
		PaymentCents:   2500,
		State:          domain.QuestOpen,
		ExpiresAt:      time.Now().Add(time.Hour),
	}
}

func newTestRegistry(profiles *fakeProfiles, opts ...Option) (*Registry, *arbiter.Registry) {
	quests := arbiter.NewRegistry(geo.NewIndex())
	return NewRegistry(quests, profiles, DefaultConfig(), opts...), quests
}

func TestEnableDisable(t *testing.T) {
	store := newFakeStore()
	r, _ := newTestRegistry(&fakeProfiles{}, WithStore(store))

	s, err := r.Enable(context.Background(), "w1", downtown, []string{"delivery"})
	require.NoError(t, err)
	assert.Equal(t, "w1", s.WorkerID)
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, 1, store.puts["w1"])

	// Re-enabling refreshes in place rather than resetting the session.
	s2, err := r.Enable(context.Background(), "w1", downtown, nil)
	require.NoError(t, err)
	assert.Equal(t, s.ActiveSince, s2.ActiveSince)
	assert.Equal(t, 1, r.Count())

	r.Disable(context.Background(), "w1")
	assert.Zero(t, r.Count())
	assert.Equal(t, 1, store.deletes["w1"])

	_, err = r.Session("w1")
	var noSession *domain.NoLiveSessionError
	require.ErrorAs(t, err, &noSession)
}

func TestEnable_RejectsInvalidLocation(t *testing.T) {
	r, _ := newTestRegistry(&fakeProfiles{})
	_, err := r.Enable(context.Background(), "w1", domain.Location{Lat: 120, Lng: 0}, nil)
	var locErr *domain.InvalidLocationError
	require.ErrorAs(t, err, &locErr)
	assert.Zero(t, r.Count())
}

func TestVisibleQuests_RequiresLiveMode(t *testing.T) {
	r, _ := newTestRegistry(&fakeProfiles{})
	_, err := r.VisibleQuests(context.Background(), "w1")
	var noSession *domain.NoLiveSessionError
	require.ErrorAs(t, err, &noSession)
}

func TestVisibleQuests_NearestFirstWithServerComputedFields(t *testing.T) {
	profiles := &fakeProfiles{snapshots: map[string]domain.WorkerSnapshot{
		"w1": {WorkerID: "w1", Tier: domain.TierElite},
	}}
	r, quests := newTestRegistry(profiles)

	near := openQuest("near", "delivery", domain.Location{Lat: downtown.Lat + 0.002, Lng: downtown.Lng}, domain.TierRookie)
	far := openQuest("far", "delivery", domain.Location{Lat: downtown.Lat + 0.02, Lng: downtown.Lng}, domain.TierRookie)
	far.ExpiresAt = time.Now().Add(30 * time.Minute)
	quests.Add(near)
	quests.Add(far)

	_, err := r.Enable(context.Background(), "w1", downtown, nil)
	require.NoError(t, err)

	alerts, err := r.VisibleQuests(context.Background(), "w1")
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "near", alerts[0].QuestID)
	assert.Equal(t, "far", alerts[1].QuestID)
	assert.Greater(t, alerts[1].DistanceMeters, alerts[0].DistanceMeters)
	assert.InDelta(t, 30*60, alerts[1].TimeRemaining, 5, "time remaining is computed server-side")
	assert.False(t, alerts[0].Locked)
}

func TestVisibleQuests_LockedWithReason(t *testing.T) {
	profiles := &fakeProfiles{snapshots: map[string]domain.WorkerSnapshot{
		"w1": {WorkerID: "w1", Tier: domain.TierRookie, VerifiedSkills: []string{"cleaning"}},
	}}
	r, quests := newTestRegistry(profiles)

	quests.Add(openQuest("tiered", "delivery", downtown, domain.TierTrusted))
	quests.Add(openQuest("skilled", "delivery", downtown, domain.TierRookie, "plumbing"))
	quests.Add(openQuest("fine", "delivery", downtown, domain.TierRookie, "cleaning"))

	_, err := r.Enable(context.Background(), "w1", downtown, nil)
	require.NoError(t, err)

	alerts, err := r.VisibleQuests(context.Background(), "w1")
	require.NoError(t, err)
	require.Len(t, alerts, 3, "ineligible quests stay visible, locked")

	byID := map[string]domain.QuestAlert{}
	for _, a := range alerts {
		byID[a.QuestID] = a
	}
	assert.True(t, byID["tiered"].Locked)
	assert.Equal(t, "tier_too_low", byID["tiered"].LockReason)
	assert.True(t, byID["skilled"].Locked)
	assert.Equal(t, "missing_skill", byID["skilled"].LockReason)
	assert.False(t, byID["fine"].Locked)
	assert.Empty(t, byID["fine"].LockReason)
}

func TestVisibleQuests_CategoryFilter(t *testing.T) {
	profiles := &fakeProfiles{snapshots: map[string]domain.WorkerSnapshot{
		"w1": {WorkerID: "w1", Tier: domain.TierElite},
	}}
	r, quests := newTestRegistry(profiles)
	quests.Add(openQuest("d1", "delivery", downtown, domain.TierRookie))
	quests.Add(openQuest("c1", "cleaning", downtown, domain.TierRookie))

	_, err := r.Enable(context.Background(), "w1", downtown, []string{"cleaning"})
	require.NoError(t, err)

	alerts, err := r.VisibleQuests(context.Background(), "w1")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "c1", alerts[0].QuestID)
}

func TestVisibleQuests_SkipsClaimedAndExpired(t *testing.T) {
	profiles := &fakeProfiles{snapshots: map[string]domain.WorkerSnapshot{
		"w1": {WorkerID: "w1", Tier: domain.TierElite},
	}}
	r, quests := newTestRegistry(profiles)

	open := openQuest("open", "delivery", downtown, domain.TierRookie)
	quests.Add(open)

	lapsed := openQuest("lapsed", "delivery", downtown, domain.TierRookie)
	lapsed.ExpiresAt = time.Now().Add(-time.Minute)
	quests.Add(lapsed)

	_, err := r.Enable(context.Background(), "w1", downtown, nil)
	require.NoError(t, err)

	alerts, err := r.VisibleQuests(context.Background(), "w1")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "open", alerts[0].QuestID)
}

func TestReapStale(t *testing.T) {
	store := newFakeStore()
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r, _ := newTestRegistry(&fakeProfiles{}, WithStore(store),
		WithNow(func() time.Time { return current }))

	_, err := r.Enable(context.Background(), "stale", downtown, nil)
	require.NoError(t, err)

	current = current.Add(60 * time.Second)
	_, err = r.Enable(context.Background(), "fresh", downtown, nil)
	require.NoError(t, err)

	current = current.Add(45 * time.Second) // stale is now 105s old, fresh 45s
	reaped := r.ReapStale(context.Background())
	assert.Equal(t, []string{"stale"}, reaped)
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, 1, store.deletes["stale"])

	_, err = r.Session("fresh")
	assert.NoError(t, err)
}

func TestRefreshLocation_ExtendsTTL(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r, _ := newTestRegistry(&fakeProfiles{}, WithNow(func() time.Time { return current }))

	_, err := r.Enable(context.Background(), "w1", downtown, nil)
	require.NoError(t, err)

	current = current.Add(80 * time.Second)
	require.NoError(t, r.RefreshLocation(context.Background(), "w1", offsetNorth(100)))

	current = current.Add(80 * time.Second) // 160s since enable, 80s since refresh
	reaped := r.ReapStale(context.Background())
	assert.Empty(t, reaped, "a refreshed session must survive the reaper")

	s, err := r.Session("w1")
	require.NoError(t, err)
	assert.Equal(t, offsetNorth(100), s.Location)
}

func offsetNorth(meters float64) domain.Location {
	return domain.Location{Lat: downtown.Lat + meters/111_320.0, Lng: downtown.Lng}
}
