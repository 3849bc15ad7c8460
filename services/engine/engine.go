// Package engine wires the core components into the single client-facing
// process: quest registry + geo index, claim arbiter, session tracker,
// live-mode registry, heat map and the proof scorer.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Sebdysart/hustlexp-engine/internal/arbiter"
	"github.com/Sebdysart/hustlexp-engine/internal/domain"
	"github.com/Sebdysart/hustlexp-engine/internal/geo"
	"github.com/Sebdysart/hustlexp-engine/internal/heatmap"
	"github.com/Sebdysart/hustlexp-engine/internal/live"
	"github.com/Sebdysart/hustlexp-engine/internal/proof"
	"github.com/Sebdysart/hustlexp-engine/internal/session"
	"github.com/Sebdysart/hustlexp-engine/pkg/retry"
	"github.com/Sebdysart/hustlexp-engine/pkg/telemetry"
)

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Store is the durable side the engine writes through to.
type Store interface {
	arbiter.ClaimStore
	session.Store
	UpdateQuestState(ctx context.Context, id string, state domain.QuestState) error
}

// Options carries the collaborators and tuning the engine needs.
type Options struct {
	Quests    domain.QuestSource
	Profiles  domain.WorkerProfileSource
	Store     Store
	Events    Publisher
	LiveStore live.SessionStore
	HeatCache heatmap.Cache

	SessionConfig session.Config
	LiveConfig    live.Config
	HeatConfig    heatmap.Config
	Thresholds    proof.Thresholds

	ExpiryInterval time.Duration
	ReapInterval   time.Duration

	Logger *slog.Logger
}

// Engine owns the in-process core and its background loops.
type Engine struct {
	Registry *arbiter.Registry
	Arbiter  *arbiter.Arbiter
	Tracker  *session.Tracker
	Live     *live.Registry
	Heat     *heatmap.Aggregator
	Scorer   *proof.Scorer

	quests         domain.QuestSource
	store          Store
	events         Publisher
	expiryInterval time.Duration
	reapInterval   time.Duration
	logger         *slog.Logger
}

// New assembles the engine. Boot loads every open quest from the quest
// source so the registry and geo index start warm.
func New(ctx context.Context, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ExpiryInterval <= 0 {
		opts.ExpiryInterval = 5 * time.Second
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = 30 * time.Second
	}

	registry := arbiter.NewRegistry(geo.NewIndex())

	open, err := opts.Quests.ListOpenQuests(ctx)
	if err != nil {
		return nil, fmt.Errorf("load open quests: %w", err)
	}
	registry.Load(open)
	logger.Info("quest registry loaded", slog.Int("open_quests", len(open)))

	tracker := session.NewTracker(registry, opts.Store, opts.Events, opts.SessionConfig,
		session.WithLogger(logger))
	arb := arbiter.NewArbiter(registry, opts.Profiles, opts.Store, opts.Events, tracker,
		arbiter.WithLogger(logger))

	liveOpts := []live.Option{live.WithLogger(logger)}
	if opts.LiveStore != nil {
		liveOpts = append(liveOpts, live.WithStore(opts.LiveStore))
	}
	liveReg := live.NewRegistry(registry, opts.Profiles, opts.LiveConfig, liveOpts...)

	heatOpts := []heatmap.Option{}
	if opts.HeatCache != nil {
		heatOpts = append(heatOpts, heatmap.WithCache(opts.HeatCache))
	}
	heat := heatmap.NewAggregator(registry, opts.HeatConfig, heatOpts...)

	return &Engine{
		Registry:       registry,
		Arbiter:        arb,
		Tracker:        tracker,
		Live:           liveReg,
		Heat:           heat,
		Scorer:         proof.NewScorer(opts.Thresholds),
		quests:         opts.Quests,
		store:          opts.Store,
		events:         opts.Events,
		expiryInterval: opts.ExpiryInterval,
		reapInterval:   opts.ReapInterval,
		logger:         logger,
	}, nil
}

// Run drives the background loops until ctx is cancelled: quest expiry and
// live-session reaping.
func (e *Engine) Run(ctx context.Context) {
	expiry := time.NewTicker(e.expiryInterval)
	reap := time.NewTicker(e.reapInterval)
	defer expiry.Stop()
	defer reap.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Tracker.Shutdown()
			return
		case <-expiry.C:
			e.expireDue(ctx)
		case <-reap.C:
			e.Live.ReapStale(ctx)
		}
	}
}

// expireDue sweeps quests whose claim window closed, transitions them in
// the registry and writes the expiry through to the source of record.
func (e *Engine) expireDue(ctx context.Context) {
	expired := e.Registry.ExpireDue(time.Now().UTC())
	for _, id := range expired {
		if err := e.quests.ExpireQuest(ctx, id); err != nil {
			e.logger.Error("failed to persist quest expiry",
				slog.String("quest_id", id),
				slog.String("error", err.Error()),
			)
		}
		e.publish(ctx, domain.Event{Type: domain.EventQuestExpired, QuestID: id})
		e.logger.Info("quest expired", slog.String("quest_id", id))
	}
}

// AddQuest makes a new quest claimable. The posting side writes the quest
// to the shared database; this registers it for broadcast without waiting
// for the next boot.
func (e *Engine) AddQuest(q *domain.Quest) {
	e.Registry.Add(q)
	telemetry.APIQuestsBroadcast.WithLabelValues(strings.ToLower(q.Category)).Inc()
	e.logger.Info("quest broadcast",
		slog.String("quest_id", q.ID),
		slog.String("category", q.Category),
	)
}

func (e *Engine) publish(ctx context.Context, ev domain.Event) {
	if e.events == nil {
		return
	}
	ev.ID = uuid.New().String()
	ev.OccurredAt = time.Now().UTC()

	// Events from background loops have no caller to retry for them, so
	// ride out short broker hiccups here before giving up.
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
	}, func() error {
		return e.events.Publish(ctx, ev)
	})
	if err != nil {
		e.logger.Error("failed to publish event",
			slog.String("event_type", string(ev.Type)),
			slog.String("quest_id", ev.QuestID),
			slog.String("error", err.Error()),
		)
	}
}
