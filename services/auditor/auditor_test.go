package auditor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
	"github.com/Sebdysart/hustlexp-engine/internal/kafka"
)

// ── mocks ────────────────────────────────────────────────────────────────────

type publishedMsg struct {
	topic string
	key   string
	value []byte
}

type fakeProducer struct {
	msgs []publishedMsg
	err  error
}

func (p *fakeProducer) Publish(_ context.Context, topic, key string, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, publishedMsg{topic, key, value})
	return nil
}
func (p *fakeProducer) Close() error { return nil }

type fakeSink struct {
	events    []*domain.Event
	strikes   []string // claim IDs
	recordErr error
	strikeErr error
}

func (s *fakeSink) RecordEvent(_ context.Context, ev *domain.Event) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeSink) AddGhostStrike(_ context.Context, _, _, claimID string, _ time.Time) error {
	if s.strikeErr != nil {
		return s.strikeErr
	}
	s.strikes = append(s.strikes, claimID)
	return nil
}

type fakeStrikes struct {
	counts map[string]int64
	err    error
}

func (c *fakeStrikes) Increment(_ context.Context, workerID string) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.counts == nil {
		c.counts = make(map[string]int64)
	}
	c.counts[workerID]++
	return c.counts[workerID], nil
}

func (c *fakeStrikes) Get(_ context.Context, workerID string) (int64, error) {
	return c.counts[workerID], nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func newTestAuditor(prod *fakeProducer, sink *fakeSink, strikes *fakeStrikes) *Auditor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuditor(nil, prod, sink, strikes, logger)
}

func eventMessage(t *testing.T, ev domain.Event) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafka.Message{Value: raw}
}

func claimedEvent() domain.Event {
	return domain.Event{
		ID:         "ev-1",
		Type:       domain.EventQuestClaimed,
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		QuestID:    "q-1",
		WorkerID:   "w-1",
		ClaimID:    "c-1",
	}
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestHandle_RecordsEvent(t *testing.T) {
	prod := &fakeProducer{}
	sink := &fakeSink{}
	a := newTestAuditor(prod, sink, &fakeStrikes{})

	err := a.Handle(context.Background(), eventMessage(t, claimedEvent()))
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "ev-1", sink.events[0].ID)
	assert.Empty(t, prod.msgs)
	assert.Empty(t, sink.strikes)
}

func TestHandle_MalformedGoesToDLQ(t *testing.T) {
	prod := &fakeProducer{}
	sink := &fakeSink{}
	a := newTestAuditor(prod, sink, &fakeStrikes{})

	err := a.Handle(context.Background(), kafka.Message{Value: []byte("{not json")})
	require.NoError(t, err)

	require.Len(t, prod.msgs, 1)
	assert.Equal(t, kafka.DLQTopic, prod.msgs[0].topic)
	assert.Empty(t, sink.events)
}

func TestHandle_MissingIDGoesToDLQ(t *testing.T) {
	prod := &fakeProducer{}
	sink := &fakeSink{}
	a := newTestAuditor(prod, sink, &fakeStrikes{})

	ev := claimedEvent()
	ev.ID = ""
	err := a.Handle(context.Background(), eventMessage(t, ev))
	require.NoError(t, err)

	require.Len(t, prod.msgs, 1)
	assert.Equal(t, kafka.DLQTopic, prod.msgs[0].topic)
	assert.Empty(t, sink.events)
}

func TestHandle_SinkErrorLeavesOffsetUncommitted(t *testing.T) {
	sink := &fakeSink{recordErr: errors.New("postgres down")}
	a := newTestAuditor(&fakeProducer{}, sink, &fakeStrikes{})

	err := a.Handle(context.Background(), eventMessage(t, claimedEvent()))
	assert.Error(t, err)
}

func TestHandle_GhostedAppliesStrike(t *testing.T) {
	sink := &fakeSink{}
	strikes := &fakeStrikes{}
	a := newTestAuditor(&fakeProducer{}, sink, strikes)

	ev := claimedEvent()
	ev.Type = domain.EventSessionGhosted
	err := a.Handle(context.Background(), eventMessage(t, ev))
	require.NoError(t, err)

	assert.Equal(t, []string{"c-1"}, sink.strikes)
	assert.Equal(t, int64(1), strikes.counts["w-1"])
}

func TestHandle_GhostedWithoutWorkerSkipsStrike(t *testing.T) {
	sink := &fakeSink{}
	strikes := &fakeStrikes{}
	a := newTestAuditor(&fakeProducer{}, sink, strikes)

	ev := claimedEvent()
	ev.Type = domain.EventSessionGhosted
	ev.WorkerID = ""
	err := a.Handle(context.Background(), eventMessage(t, ev))
	require.NoError(t, err)

	// The event itself is still recorded.
	assert.Len(t, sink.events, 1)
	assert.Empty(t, sink.strikes)
	assert.Empty(t, strikes.counts)
}

func TestHandle_StrikeLedgerErrorSkipsCounter(t *testing.T) {
	sink := &fakeSink{strikeErr: errors.New("postgres down")}
	strikes := &fakeStrikes{}
	a := newTestAuditor(&fakeProducer{}, sink, strikes)

	ev := claimedEvent()
	ev.Type = domain.EventSessionGhosted
	err := a.Handle(context.Background(), eventMessage(t, ev))
	require.NoError(t, err)

	assert.Empty(t, strikes.counts)
}

func TestHandle_BackfillsOccurredAt(t *testing.T) {
	sink := &fakeSink{}
	now := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := NewAuditor(nil, &fakeProducer{}, sink, &fakeStrikes{}, logger,
		WithNow(func() time.Time { return now }))

	ev := claimedEvent()
	ev.OccurredAt = time.Time{}
	err := a.Handle(context.Background(), eventMessage(t, ev))
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	assert.Equal(t, now, sink.events[0].OccurredAt)
}
