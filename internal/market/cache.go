package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SnapshotCache stores resolved snapshots in Redis so a restart (or a
// second read within the freshness window) does not cost another round
// of exchange calls. Price freshness is still re-validated against the
// TTL by the caller before any order uses it.
type SnapshotCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewSnapshotCache creates a Redis-backed snapshot cache
func NewSnapshotCache(redisClient *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		redis: redisClient,
		ttl:   ttl,
	}
}

func (c *SnapshotCache) key(symbol string) string {
	return fmt.Sprintf("market:snapshot:%s", symbol)
}

// Get returns the cached snapshot for a symbol, or nil on miss.
// Cache errors are logged and treated as misses; the resolver falls
// through to the exchange.
func (c *SnapshotCache) Get(ctx context.Context, symbol string) *Snapshot {
	cacheKey := c.key(symbol)

	cached, err := c.redis.Get(ctx, cacheKey).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("cache_key", cacheKey).Msg("Redis error during snapshot lookup")
		}
		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(cached), &snap); err != nil {
		log.Warn().Err(err).Str("cache_key", cacheKey).Msg("Failed to unmarshal cached snapshot, fetching fresh")
		return nil
	}

	log.Debug().
		Str("symbol", symbol).
		Str("cache_key", cacheKey).
		Msg("Cache hit for market snapshot")
	return &snap
}

// Put stores a snapshot asynchronously; a cache write failure never
// blocks or fails the cycle
func (c *SnapshotCache) Put(snap *Snapshot) {
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		data, err := json.Marshal(snap)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to marshal snapshot for cache")
			return
		}

		cacheKey := c.key(snap.Symbol)
		if err := c.redis.Set(cacheCtx, cacheKey, data, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("cache_key", cacheKey).Msg("Failed to cache snapshot")
		} else {
			log.Debug().
				Str("cache_key", cacheKey).
				Dur("ttl", c.ttl).
				Msg("Cached market snapshot")
		}
	}()
}

// Invalidate drops the cached snapshot for a symbol
func (c *SnapshotCache) Invalidate(ctx context.Context, symbol string) error {
	if err := c.redis.Del(ctx, c.key(symbol)).Err(); err != nil {
		return fmt.Errorf("snapshot cache invalidation failed: %w", err)
	}
	return nil
}
