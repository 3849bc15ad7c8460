// Package redis holds the engine's hot-state layer: live-mode sessions,
// the shared heat-map snapshot, ghosting strike counters, the location
// rate limiter and the sweeper's leader lock.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
)

const (
	liveSessionTTL = 5 * time.Minute
	heatTTL        = 2 * time.Minute
)

func liveKey(workerID string) string { return "live:session:" + workerID }

const heatKey = "heatmap:snapshot"

// LiveStore mirrors live-mode session state and the shared heat snapshot
// into Redis so an engine restart does not drop every worker to offline.
type LiveStore interface {
	PutLiveSession(ctx context.Context, s *domain.WorkerLiveSession) error
	GetLiveSession(ctx context.Context, workerID string) (*domain.WorkerLiveSession, error)
	DeleteLiveSession(ctx context.Context, workerID string) error
	PutHeatSnapshot(ctx context.Context, snap *domain.HeatSnapshot) error
	GetHeatSnapshot(ctx context.Context) (*domain.HeatSnapshot, error)
}

type liveStore struct {
	client *redis.Client
}

// NewLiveStore creates a Redis-backed LiveStore.
func NewLiveStore(client *redis.Client) LiveStore {
	return &liveStore{client: client}
}

// NewClient creates and returns a new Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

func (s *liveStore) PutLiveSession(ctx context.Context, sess *domain.WorkerLiveSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal live session: %w", err)
	}
	if err := s.client.Set(ctx, liveKey(sess.WorkerID), data, liveSessionTTL).Err(); err != nil {
		return fmt.Errorf("redis put live session for %s: %w", sess.WorkerID, err)
	}
	return nil
}

func (s *liveStore) GetLiveSession(ctx context.Context, workerID string) (*domain.WorkerLiveSession, error) {
	data, err := s.client.Get(ctx, liveKey(workerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.NoLiveSessionError{WorkerID: workerID}
		}
		return nil, fmt.Errorf("redis get live session for %s: %w", workerID, err)
	}
	var sess domain.WorkerLiveSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal live session: %w", err)
	}
	return &sess, nil
}

func (s *liveStore) DeleteLiveSession(ctx context.Context, workerID string) error {
	if err := s.client.Del(ctx, liveKey(workerID)).Err(); err != nil {
		return fmt.Errorf("redis delete live session for %s: %w", workerID, err)
	}
	return nil
}

func (s *liveStore) PutHeatSnapshot(ctx context.Context, snap *domain.HeatSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal heat snapshot: %w", err)
	}
	if err := s.client.Set(ctx, heatKey, data, heatTTL).Err(); err != nil {
		return fmt.Errorf("redis put heat snapshot: %w", err)
	}
	return nil
}

func (s *liveStore) GetHeatSnapshot(ctx context.Context) (*domain.HeatSnapshot, error) {
	data, err := s.client.Get(ctx, heatKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get heat snapshot: %w", err)
	}
	var snap domain.HeatSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal heat snapshot: %w", err)
	}
	return &snap, nil
}
