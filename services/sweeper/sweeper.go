// Package sweeper runs the cadence jobs behind the quest engine: expiring
// quests past their deadline, rebuilding the shared heat map snapshot, and
// pruning the audit log. A Redis lease keeps exactly one instance active
// across replicas.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
	"github.com/Sebdysart/hustlexp-engine/internal/heatmap"
)

const (
	LeaderKey = "sweeper:leader"
	LeaderTTL = 30 * time.Second

	tickInterval = 15 * time.Second
)

// Lease is the leadership check run before every tick.
type Lease interface {
	AcquireOrRenew(ctx context.Context) (bool, error)
}

// Publisher emits quest lifecycle events onto the event stream.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// EventPruner deletes audit rows older than a cutoff.
type EventPruner interface {
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}

// Job is one named cadence task with a standard cron expression.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

type scheduledJob struct {
	Job
	schedule cron.Schedule
	next     time.Time
}

// Sweeper fires registered jobs on their cron cadence while this instance
// holds the leader lease.
type Sweeper struct {
	lease  Lease
	jobs   []*scheduledJob
	logger *slog.Logger
	now    func() time.Time
}

// Option overrides a Sweeper internal, mainly for tests.
type Option func(*Sweeper)

// WithNow substitutes the clock.
func WithNow(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// New parses each job's cron expression and schedules its first run.
// Invalid expressions are rejected up front rather than at fire time.
func New(lease Lease, jobs []Job, logger *slog.Logger, opts ...Option) (*Sweeper, error) {
	s := &Sweeper{
		lease:  lease,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	start := s.now().UTC()
	for _, j := range jobs {
		schedule, err := cron.ParseStandard(j.Spec)
		if err != nil {
			return nil, err
		}
		s.jobs = append(s.jobs, &scheduledJob{
			Job:      j,
			schedule: schedule,
			next:     schedule.Next(start),
		})
	}
	return s, nil
}

// Run blocks until ctx is cancelled, checking leadership and due jobs on
// every tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one leadership check and fires every due job. Exported so
// tests can drive the loop directly.
func (s *Sweeper) Tick(ctx context.Context) {
	leader, err := s.lease.AcquireOrRenew(ctx)
	if err != nil {
		s.logger.Error("leader election", slog.String("error", err.Error()))
		return
	}
	if !leader {
		return
	}

	now := s.now().UTC()
	for _, j := range s.jobs {
		if now.Before(j.next) {
			continue
		}
		if err := j.Run(ctx); err != nil {
			s.logger.Error("job failed",
				slog.String("job", j.Name),
				slog.String("error", err.Error()),
			)
		}
		j.next = j.schedule.Next(now)
	}
}

// Jobs bundles the dependencies the three standard cadence jobs need.
type Jobs struct {
	Quests         domain.QuestSource
	Events         Publisher
	HeatCache      heatmap.Cache
	HeatConfig     heatmap.Config
	Pruner         EventPruner
	EventRetention time.Duration
	Logger         *slog.Logger

	now func() time.Time
}

// Standard returns the default cadence jobs:
// quest expiry and heat map refresh every minute, audit pruning hourly.
func (j *Jobs) Standard() []Job {
	return []Job{
		{Name: "expire-quests", Spec: "* * * * *", Run: j.ExpireQuests},
		{Name: "refresh-heatmap", Spec: "* * * * *", Run: j.RefreshHeatMap},
		{Name: "prune-events", Spec: "0 * * * *", Run: j.PruneEvents},
	}
}

func (j *Jobs) clock() time.Time {
	if j.now != nil {
		return j.now()
	}
	return time.Now()
}

// ExpireQuests marks open quests past their deadline as expired and emits
// a quest.expired event for each. The engine's in-process expiry usually
// wins this race; this job catches quests whose engine instance died.
func (j *Jobs) ExpireQuests(ctx context.Context) error {
	quests, err := j.Quests.ListOpenQuests(ctx)
	if err != nil {
		return err
	}

	now := j.clock().UTC()
	expired := 0
	for _, q := range quests {
		if !q.ExpiredAt(now) {
			continue
		}
		if err := j.Quests.ExpireQuest(ctx, q.ID); err != nil {
			j.Logger.Error("expire quest",
				slog.String("quest_id", q.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		expired++
		ev := domain.Event{
			ID:         uuid.New().String(),
			Type:       domain.EventQuestExpired,
			OccurredAt: now,
			QuestID:    q.ID,
		}
		if err := j.Events.Publish(ctx, ev); err != nil {
			j.Logger.Error("publish quest.expired",
				slog.String("quest_id", q.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if expired > 0 {
		j.Logger.Info("expired quests", slog.Int("count", expired))
	}
	return nil
}

// questList adapts a fetched batch of quests to the heat map aggregator.
type questList []domain.Quest

func (q questList) OpenQuests() []domain.Quest { return q }

// RefreshHeatMap recomputes the city-wide heat snapshot from the open
// quests in Postgres and publishes it to the shared cache, so engine
// replicas can serve heat reads without recomputing.
func (j *Jobs) RefreshHeatMap(ctx context.Context) error {
	quests, err := j.Quests.ListOpenQuests(ctx)
	if err != nil {
		return err
	}

	list := make(questList, 0, len(quests))
	for _, q := range quests {
		list = append(list, *q)
	}

	agg := heatmap.NewAggregator(list, j.HeatConfig, heatmap.WithCache(j.HeatCache))
	snap, err := agg.Refresh(ctx)
	if err != nil {
		return err
	}
	j.Logger.Info("heat snapshot refreshed",
		slog.Int("zones", len(snap.Zones)),
		slog.Int("quests", len(list)),
	)
	return nil
}

// PruneEvents drops audit rows older than the retention window.
func (j *Jobs) PruneEvents(ctx context.Context) error {
	cutoff := j.clock().UTC().Add(-j.EventRetention)
	removed, err := j.Pruner.PruneEvents(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		j.Logger.Info("pruned audit events",
			slog.Int64("removed", removed),
			slog.Time("cutoff", cutoff),
		)
	}
	return nil
}
