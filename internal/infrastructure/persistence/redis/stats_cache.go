package redis

import (
	"context"
	"errors"
	"time"

	"github.com/pmcraft/pmcraft-hub/internal/domain/progress"
	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

// StatsCache implements progress.StatsCache using the generic Redis Cache.
//
// The cache is strictly read-through: it only ever holds projections of
// committed storage state and is invalidated after every successful write.
type StatsCache struct {
	cache *Cache
}

// NewStatsCache creates a new StatsCache.
func NewStatsCache(cache *Cache) *StatsCache {
	return &StatsCache{cache: cache}
}

// GetStats gets a user's stats projection from cache.
// Returns shared.ErrNotFound on a miss.
func (c *StatsCache) GetStats(ctx context.Context, userID shared.UserID) (*progress.Stats, error) {
	var stats progress.Stats
	if err := c.cache.Get(ctx, StatsKey(userID.String()), &stats); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &stats, nil
}

// SetStats stores a stats projection with the given TTL.
func (c *StatsCache) SetStats(ctx context.Context, stats *progress.Stats, ttl time.Duration) error {
	if stats == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = TTLStatsCache
	}
	return c.cache.Set(ctx, StatsKey(stats.UserID), stats, ttl)
}

// Invalidate removes a user's stats projection from cache.
// Called after every committed progress write.
func (c *StatsCache) Invalidate(ctx context.Context, userID shared.UserID) error {
	return c.cache.Delete(ctx, StatsKey(userID.String()))
}
