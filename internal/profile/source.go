// Package profile is the engine's view of worker trust data. The base
// profile lives in Postgres, owned by the marketplace side; the live
// strike counter lives in Redis so a ghost moments ago already counts.
package profile

import (
	"context"
	"log/slog"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
	"github.com/Sebdysart/hustlexp-engine/internal/postgres"
	redisstore "github.com/Sebdysart/hustlexp-engine/internal/redis"
)

// Source implements domain.WorkerProfileSource over Postgres and Redis.
type Source struct {
	repo    postgres.ProfileRepository
	strikes redisstore.StrikeCounter
	logger  *slog.Logger
}

// NewSource constructs a Source. strikes may be nil; the stored profile
// count is used alone.
func NewSource(repo postgres.ProfileRepository, strikes redisstore.StrikeCounter, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{repo: repo, strikes: strikes, logger: logger}
}

// Snapshot returns the worker's profile with the freshest strike count the
// engine can see.
func (s *Source) Snapshot(ctx context.Context, workerID string) (domain.WorkerSnapshot, error) {
	w, err := s.repo.GetWorkerProfile(ctx, workerID)
	if err != nil {
		return domain.WorkerSnapshot{}, err
	}

	if s.strikes != nil {
		n, err := s.strikes.Get(ctx, workerID)
		if err != nil {
			// Strikes are advisory for eligibility; serve the stored count.
			s.logger.Warn("strike counter unavailable",
				slog.String("worker_id", workerID),
				slog.String("error", err.Error()),
			)
		} else if int(n) > w.GhostingStrikes {
			w.GhostingStrikes = int(n)
		}
	}
	return *w, nil
}
