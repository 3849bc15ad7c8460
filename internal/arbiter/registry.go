package arbiter

import (
	"sync"
	"time"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
	"github.com/Sebdysart/hustlexp-engine/internal/geo"
)

// entry pairs a quest with its own mutex. Claim attempts against the same
// quest serialize on this lock; attempts against distinct quests never
// contend, so throughput scales with the number of active quests.
type entry struct {
	mu    sync.Mutex
	quest *domain.Quest
}

// Registry is the engine's in-process view of broadcastable quests. It is
// loaded from the quest source at boot and kept in sync by the engine as
// quests open, claim, expire and revert. The geo index is updated in
// lockstep so visibility queries and claim state never drift.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	index   *geo.Index
}

// NewRegistry creates an empty registry backed by the given geo index.
func NewRegistry(index *geo.Index) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		index:   index,
	}
}

// Index exposes the backing geo index for read-side consumers.
func (r *Registry) Index() *geo.Index { return r.index }

// Add inserts or replaces a quest. Open quests are indexed for discovery;
// anything else is tracked but not broadcast.
func (r *Registry) Add(q *domain.Quest) {
	cp := *q
	r.mu.Lock()
	e, ok := r.entries[cp.ID]
	if !ok {
		e = &entry{}
		r.entries[cp.ID] = e
	}
	r.mu.Unlock()

	e.mu.Lock()
	e.quest = &cp
	e.mu.Unlock()

	if cp.State == domain.QuestOpen {
		r.index.Insert(cp.ID, cp.Location)
	} else {
		r.index.Remove(cp.ID)
	}
}

// Load replaces the registry contents with the given quests.
func (r *Registry) Load(quests []*domain.Quest) {
	for _, q := range quests {
		r.Add(q)
	}
}

// Snapshot returns a copy of the quest, or false if unknown.
func (r *Registry) Snapshot(questID string) (domain.Quest, bool) {
	r.mu.RLock()
	e, ok := r.entries[questID]
	r.mu.RUnlock()
	if !ok {
		return domain.Quest{}, false
	}
	e.mu.Lock()
	cp := *e.quest
	e.mu.Unlock()
	return cp, true
}

// lookup returns the live entry for questID.
func (r *Registry) lookup(questID string) (*entry, bool) {
	r.mu.RLock()
	e, ok := r.entries[questID]
	r.mu.RUnlock()
	return e, ok
}

// Transition moves a quest from one state to another under its lock.
// Returns the post-transition snapshot and whether the CAS succeeded.
// The geo index is updated to match the new state.
func (r *Registry) Transition(questID string, from, to domain.QuestState) (domain.Quest, bool) {
	e, ok := r.lookup(questID)
	if !ok {
		return domain.Quest{}, false
	}

	e.mu.Lock()
	if e.quest.State != from {
		cp := *e.quest
		e.mu.Unlock()
		return cp, false
	}
	e.quest.State = to
	cp := *e.quest
	e.mu.Unlock()

	if to == domain.QuestOpen {
		r.index.Insert(cp.ID, cp.Location)
	} else {
		r.index.Remove(cp.ID)
	}
	return cp, true
}

// claimCAS atomically resolves a claim attempt under the quest's lock:
// an unexpired Open quest transitions to Claimed and the attempt wins.
// An expired quest is transitioned to Expired on the spot; anything else
// loses. Never blocks beyond the per-quest critical section.
func (r *Registry) claimCAS(questID string, now time.Time) (domain.Quest, domain.ClaimResult) {
	e, ok := r.lookup(questID)
	if !ok {
		return domain.Quest{}, domain.ClaimResultExpired
	}

	e.mu.Lock()
	switch {
	case e.quest.State == domain.QuestOpen && e.quest.ExpiredAt(now):
		e.quest.State = domain.QuestExpired
		cp := *e.quest
		e.mu.Unlock()
		r.index.Remove(questID)
		return cp, domain.ClaimResultExpired
	case e.quest.State == domain.QuestExpired:
		cp := *e.quest
		e.mu.Unlock()
		return cp, domain.ClaimResultExpired
	case e.quest.State != domain.QuestOpen:
		cp := *e.quest
		e.mu.Unlock()
		return cp, domain.ClaimResultLost
	}
	e.quest.State = domain.QuestClaimed
	cp := *e.quest
	e.mu.Unlock()

	r.index.Remove(questID)
	return cp, domain.ClaimResultWon
}

// Reopen reverts a quest to Open regardless of its current non-terminal
// state. Used for ghosting reversion so the quest is re-broadcast.
func (r *Registry) Reopen(questID string) (domain.Quest, bool) {
	e, ok := r.lookup(questID)
	if !ok {
		return domain.Quest{}, false
	}

	e.mu.Lock()
	if e.quest.State.IsTerminal() {
		cp := *e.quest
		e.mu.Unlock()
		return cp, false
	}
	e.quest.State = domain.QuestOpen
	cp := *e.quest
	e.mu.Unlock()

	r.index.Insert(cp.ID, cp.Location)
	return cp, true
}

// Remove drops a quest from the registry and the index.
func (r *Registry) Remove(questID string) {
	r.mu.Lock()
	delete(r.entries, questID)
	r.mu.Unlock()
	r.index.Remove(questID)
}

// ExpireDue transitions every Open quest past its expiry at now to
// Expired and returns the affected quest IDs.
func (r *Registry) ExpireDue(now time.Time) []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var expired []string
	for _, id := range ids {
		e, ok := r.lookup(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		due := e.quest.State == domain.QuestOpen && e.quest.ExpiredAt(now)
		if due {
			e.quest.State = domain.QuestExpired
		}
		e.mu.Unlock()
		if due {
			r.index.Remove(id)
			expired = append(expired, id)
		}
	}
	return expired
}

// OpenQuests returns copies of every quest currently in the Open state.
func (r *Registry) OpenQuests() []domain.Quest {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]domain.Quest, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.quest.State == domain.QuestOpen {
			out = append(out, *e.quest)
		}
		e.mu.Unlock()
	}
	return out
}
