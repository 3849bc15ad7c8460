// Package heatmap buckets open-quest density into zones for the discovery
// map. Strictly read-side: it looks at a snapshot of open quests and never
// transitions quest state.
package heatmap

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
	"github.com/Sebdysart/hustlexp-engine/internal/geo"
	"github.com/Sebdysart/hustlexp-engine/pkg/telemetry"
)

// QuestLister supplies the current open-quest snapshot.
type QuestLister interface {
	OpenQuests() []domain.Quest
}

// Cache holds a shared snapshot so replicas can serve the map without
// recomputing. Redis in production; nil disables sharing.
type Cache interface {
	PutHeatSnapshot(ctx context.Context, snap *domain.HeatSnapshot) error
	GetHeatSnapshot(ctx context.Context) (*domain.HeatSnapshot, error)
}

// Config tunes zone geometry and staleness.
type Config struct {
	ZoneSizeDeg  float64       // zone cell edge in degrees
	Staleness    time.Duration // memoized snapshot validity
	QueryRadius  float64       // meters around the requested center to cover
}

// DefaultConfig covers a city-scale view.
func DefaultConfig() Config {
	return Config{
		ZoneSizeDeg: 0.02,
		Staleness:   45 * time.Second,
		QueryRadius: 8000,
	}
}

// Aggregator computes heat snapshots with a memoized staleness bound.
type Aggregator struct {
	quests QuestLister
	cache  Cache
	cfg    Config
	now    func() time.Time

	mu    sync.Mutex
	memo  *domain.HeatSnapshot
	memoT time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option { return func(a *Aggregator) { a.now = now } }

// WithCache attaches a shared snapshot cache.
func WithCache(c Cache) Option { return func(a *Aggregator) { a.cache = c } }

// NewAggregator constructs an Aggregator over the given quest snapshot
// source.
func NewAggregator(quests QuestLister, cfg Config, opts ...Option) *Aggregator {
	if cfg.ZoneSizeDeg <= 0 {
		cfg = DefaultConfig()
	}
	a := &Aggregator{quests: quests, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Snapshot returns the heat zones around center, nearest first. The full
// snapshot is memoized for the configured staleness bound; only the
// center-radius filtering happens per call.
func (a *Aggregator) Snapshot(ctx context.Context, center domain.Location) ([]domain.HeatZone, error) {
	if !center.Valid() {
		return nil, &domain.InvalidLocationError{Lat: center.Lat, Lng: center.Lng}
	}

	snap, err := a.current(ctx)
	if err != nil {
		return nil, err
	}

	zones := make([]domain.HeatZone, 0, len(snap.Zones))
	for _, z := range snap.Zones {
		if geo.Distance(center, z.Center) <= a.cfg.QueryRadius {
			zones = append(zones, z)
		}
	}
	sort.Slice(zones, func(i, j int) bool {
		return geo.Distance(center, zones[i].Center) < geo.Distance(center, zones[j].Center)
	})
	return zones, nil
}

// Refresh forcibly recomputes the snapshot and, when a cache is attached,
// publishes it for other replicas. The sweeper calls this on a cadence.
func (a *Aggregator) Refresh(ctx context.Context) (*domain.HeatSnapshot, error) {
	snap := a.compute()

	a.mu.Lock()
	a.memo = snap
	a.memoT = a.now()
	a.mu.Unlock()

	if a.cache != nil {
		if err := a.cache.PutHeatSnapshot(ctx, snap); err != nil {
			return snap, fmt.Errorf("publish heat snapshot: %w", err)
		}
	}
	return snap, nil
}

// current returns the memoized snapshot if fresh, then the shared cache,
// then a local recompute.
func (a *Aggregator) current(ctx context.Context) (*domain.HeatSnapshot, error) {
	now := a.now()

	a.mu.Lock()
	if a.memo != nil && now.Sub(a.memoT) < a.cfg.Staleness {
		snap := a.memo
		a.mu.Unlock()
		return snap, nil
	}
	a.mu.Unlock()

	if a.cache != nil {
		if snap, err := a.cache.GetHeatSnapshot(ctx); err == nil && snap != nil &&
			now.Sub(snap.ComputedAt) < a.cfg.Staleness {
			a.mu.Lock()
			a.memo = snap
			a.memoT = now
			a.mu.Unlock()
			return snap, nil
		}
	}

	snap := a.compute()
	a.mu.Lock()
	a.memo = snap
	a.memoT = now
	a.mu.Unlock()
	return snap, nil
}

func (a *Aggregator) compute() *domain.HeatSnapshot {
	type bucket struct {
		count   int
		payment int64
		latSum  float64
		lngSum  float64
	}

	buckets := make(map[string]*bucket)
	for _, q := range a.quests.OpenQuests() {
		key := a.zoneKey(q.Location)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.count++
		b.payment += q.PaymentCents
		b.latSum += q.Location.Lat
		b.lngSum += q.Location.Lng
	}

	zones := make([]domain.HeatZone, 0, len(buckets))
	for key, b := range buckets {
		n := float64(b.count)
		zones = append(zones, domain.HeatZone{
			ID:              key,
			Center:          domain.Location{Lat: b.latSum / n, Lng: b.lngSum / n},
			RadiusMeters:    a.cfg.ZoneSizeDeg * 111_320.0 / 2,
			QuestCount:      b.count,
			AvgPaymentCents: b.payment / int64(b.count),
			Intensity:       IntensityFor(b.count),
		})
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].ID < zones[j].ID })

	telemetry.HeatMapRebuilds.Inc()
	return &domain.HeatSnapshot{Zones: zones, ComputedAt: a.now().UTC()}
}

func (a *Aggregator) zoneKey(l domain.Location) string {
	x := int(l.Lng / a.cfg.ZoneSizeDeg)
	y := int(l.Lat / a.cfg.ZoneSizeDeg)
	return fmt.Sprintf("z:%d:%d", x, y)
}

// IntensityFor buckets a zone's open-quest count. Monotone: more quests
// never map to a lower bucket.
func IntensityFor(count int) domain.Intensity {
	switch {
	case count >= 20:
		return domain.IntensityVeryHigh
	case count >= 10:
		return domain.IntensityHigh
	case count >= 4:
		return domain.IntensityMedium
	default:
		return domain.IntensityLow
	}
}
