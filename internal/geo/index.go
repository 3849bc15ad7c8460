package geo

import (
	"sort"
	"sync"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
)

// QuestRef is the index's view of a quest: enough to rank and filter
// without touching the quest registry.
type QuestRef struct {
	QuestID        string
	Location       domain.Location
	DistanceMeters float64
}

// Index is a grid-bucket spatial index over open quests. Readers and
// writers share an RWMutex; critical sections only touch the bucket map,
// never I/O, so writers are blocked for microseconds at most.
type Index struct {
	mu          sync.RWMutex
	cellSizeDeg float64
	maxRadius   float64
	buckets     map[cell]map[string]domain.Location
	cells       map[string]cell // quest ID → current cell, for removal
}

// Option configures an Index.
type Option func(*Index)

// WithCellSize sets the grid cell edge in degrees.
func WithCellSize(deg float64) Option { return func(i *Index) { i.cellSizeDeg = deg } }

// WithMaxRadius sets the clamp applied to query radii, in meters.
func WithMaxRadius(m float64) Option { return func(i *Index) { i.maxRadius = m } }

// NewIndex creates an empty index. The default cell size of 0.02 degrees
// (~2.2 km of latitude) keeps a typical 1-3 km query within a 3x3
// neighborhood.
func NewIndex(opts ...Option) *Index {
	idx := &Index{
		cellSizeDeg: 0.02,
		maxRadius:   10_000,
		buckets:     make(map[cell]map[string]domain.Location),
		cells:       make(map[string]cell),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Insert adds or repositions a quest. Replacing an existing entry moves it
// between buckets if its location changed.
func (i *Index) Insert(questID string, loc domain.Location) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if old, ok := i.cells[questID]; ok {
		delete(i.buckets[old], questID)
	}
	c := cellFor(loc, i.cellSizeDeg)
	b, ok := i.buckets[c]
	if !ok {
		b = make(map[string]domain.Location)
		i.buckets[c] = b
	}
	b[questID] = loc
	i.cells[questID] = c
}

// Remove drops a quest from the index. Removing an absent quest is a no-op.
func (i *Index) Remove(questID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	c, ok := i.cells[questID]
	if !ok {
		return
	}
	delete(i.buckets[c], questID)
	if len(i.buckets[c]) == 0 {
		delete(i.buckets, c)
	}
	delete(i.cells, questID)
}

// Len returns the number of indexed quests.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.cells)
}

// Query returns every indexed quest whose great-circle distance to p is
// at most radiusMeters (boundary inclusive), nearest first. An oversized
// radius is clamped to the configured maximum, never rejected. filter may
// be nil.
func (i *Index) Query(p domain.Location, radiusMeters float64, filter func(QuestRef) bool) []QuestRef {
	if radiusMeters > i.maxRadius {
		radiusMeters = i.maxRadius
	}
	if radiusMeters < 0 {
		radiusMeters = 0
	}

	i.mu.RLock()
	candidates := make([]QuestRef, 0, 32)
	for _, c := range coveringCells(p, radiusMeters, i.cellSizeDeg) {
		for id, loc := range i.buckets[c] {
			candidates = append(candidates, QuestRef{QuestID: id, Location: loc})
		}
	}
	i.mu.RUnlock()

	// Exact distance check outside the lock.
	out := candidates[:0]
	for _, ref := range candidates {
		ref.DistanceMeters = Distance(p, ref.Location)
		if ref.DistanceMeters > radiusMeters {
			continue
		}
		if filter != nil && !filter(ref) {
			continue
		}
		out = append(out, ref)
	}

	sort.Slice(out, func(a, b int) bool { return out[a].DistanceMeters < out[b].DistanceMeters })
	return out
}
