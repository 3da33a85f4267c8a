package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "exp:analysis"

// redisClient is the subset of *redis.Client used by the cache.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// ReportCache stores serialized analysis reports in Redis with a TTL.
// A zero TTL disables caching.
type ReportCache struct {
	redis  redisClient
	ttl    time.Duration
	logger zerolog.Logger

	mu    sync.Mutex
	stats CacheStats
}

// CacheStats holds cache performance statistics
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Writes int64 `json:"writes"`
	Errors int64 `json:"errors"`
}

// NewReportCache creates a new report cache
func NewReportCache(client redisClient, ttl time.Duration, logger zerolog.Logger) *ReportCache {
	return &ReportCache{
		redis:  client,
		ttl:    ttl,
		logger: logger.With().Str("component", "report_cache").Logger(),
	}
}

// Key builds the cache key of one experiment analysis. The parts identify the
// analysis window and options and are hashed so keys stay short.
func Key(experimentID string, parts ...string) string {
	h := xxhash.New()
	for _, p := range parts {
		_, _ = h.WriteString(p)
		_, _ = h.WriteString("\x00")
	}
	return fmt.Sprintf("%s:%s:%s", keyPrefix, experimentID, strconv.FormatUint(h.Sum64(), 16))
}

// Get loads the value stored under key into dst. It reports false on a miss.
func (c *ReportCache) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	if c.ttl <= 0 {
		return false, nil
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.record(func(s *CacheStats) { s.Misses++ })
			c.logger.Debug().Str("key", key).Msg("Report cache miss")
			return false, nil
		}
		c.record(func(s *CacheStats) { s.Errors++ })
		return false, fmt.Errorf("failed to load report from Redis: %w", err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		c.record(func(s *CacheStats) { s.Errors++ })
		return false, fmt.Errorf("failed to unmarshal cached report: %w", err)
	}

	c.record(func(s *CacheStats) { s.Hits++ })
	c.logger.Debug().Str("key", key).Msg("Report cache hit")
	return true, nil
}

// Set stores value under key for the cache TTL.
func (c *ReportCache) Set(ctx context.Context, key string, value interface{}) error {
	if c.ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.record(func(s *CacheStats) { s.Errors++ })
		return fmt.Errorf("failed to store report in Redis: %w", err)
	}

	c.record(func(s *CacheStats) { s.Writes++ })
	c.logger.Debug().Str("key", key).Dur("ttl", c.ttl).Msg("Report stored in Redis")
	return nil
}

// GetStats returns cache statistics
func (c *ReportCache) GetStats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// GetCacheHitRatio returns the cache hit ratio as a percentage
func (c *ReportCache) GetCacheHitRatio() float64 {
	s := c.GetStats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

func (c *ReportCache) record(update func(*CacheStats)) {
	c.mu.Lock()
	update(&c.stats)
	c.mu.Unlock()
}
