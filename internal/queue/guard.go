package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const activeGuardKeyFormat = "gema:judge:active:%d"

// ActiveGuard keeps at most one active job per submission. It is a redis
// SET NX lease; without redis it degrades to always-acquire, leaving the
// broker's message-id dedup window as the only duplicate protection.
type ActiveGuard struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewActiveGuard constructs a guard. A nil client is allowed.
func NewActiveGuard(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *ActiveGuard {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &ActiveGuard{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "active_guard").Logger(),
	}
}

// Acquire attempts to take the lease for a submission. It returns false when
// another job already holds it.
func (g *ActiveGuard) Acquire(ctx context.Context, submissionID uint) bool {
	if g == nil || g.client == nil {
		return true
	}

	key := fmt.Sprintf(activeGuardKeyFormat, submissionID)
	ok, err := g.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		// Guard unavailability must not block judging.
		g.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("guard acquire failed, proceeding without lease")
		return true
	}
	return ok
}

// Release returns the lease once the job reached a terminal outcome.
func (g *ActiveGuard) Release(ctx context.Context, submissionID uint) {
	if g == nil || g.client == nil {
		return
	}

	key := fmt.Sprintf(activeGuardKeyFormat, submissionID)
	if err := g.client.Del(ctx, key).Err(); err != nil {
		g.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("guard release failed")
	}
}
