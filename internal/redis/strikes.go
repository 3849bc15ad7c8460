package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

func strikeKey(workerID string) string { return "worker:strikes:" + workerID }

// StrikeCounter tracks ghosting strikes per worker. The auditor increments
// on every session.ghosted event; the profile service reads the counter
// when recomputing trust tiers.
type StrikeCounter interface {
	Increment(ctx context.Context, workerID string) (int64, error)
	Get(ctx context.Context, workerID string) (int64, error)
}

type strikeCounter struct {
	client *redis.Client
}

// NewStrikeCounter creates a Redis-backed StrikeCounter.
func NewStrikeCounter(client *redis.Client) StrikeCounter {
	return &strikeCounter{client: client}
}

func (c *strikeCounter) Increment(ctx context.Context, workerID string) (int64, error) {
	n, err := c.client.Incr(ctx, strikeKey(workerID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis increment strikes for %s: %w", workerID, err)
	}
	return n, nil
}

func (c *strikeCounter) Get(ctx context.Context, workerID string) (int64, error) {
	n, err := c.client.Get(ctx, strikeKey(workerID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get strikes for %s: %w", workerID, err)
	}
	return n, nil
}
