// Package cache provides the Redis-backed portfolio summary cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/policyhub/internal/core"
)

const summaryKey = "policyhub:summary:v1"

// Connect parses url, dials, and pings. An empty url returns a nil client.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// SummaryCache implements core.SummaryCache. A nil *SummaryCache, or one
// built on a nil client, always misses. Redis failures are logged and
// treated as misses so reads fall through to the store.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewSummaryCache returns a cache that keeps summaries for ttl.
func NewSummaryCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SummaryCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummaryCache{client: client, ttl: ttl, logger: logger}
}

func (c *SummaryCache) enabled() bool {
	return c != nil && c.client != nil
}

// Get returns the cached summary, if present.
func (c *SummaryCache) Get(ctx context.Context) (core.Summary, bool) {
	if !c.enabled() {
		return core.Summary{}, false
	}

	raw, err := c.client.Get(ctx, summaryKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.Summary{}, false
	}
	if err != nil {
		c.logger.WarnContext(ctx, "summary cache read failed", "error", err)
		return core.Summary{}, false
	}

	sum := core.NewSummary()
	if err := json.Unmarshal(raw, &sum); err != nil {
		c.logger.WarnContext(ctx, "summary cache entry corrupt", "error", err)
		return core.Summary{}, false
	}
	return sum, true
}

// Set stores s with the configured TTL.
func (c *SummaryCache) Set(ctx context.Context, s core.Summary) {
	if !c.enabled() {
		return
	}

	raw, err := json.Marshal(s)
	if err != nil {
		c.logger.WarnContext(ctx, "summary cache encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, summaryKey, raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "summary cache write failed", "error", err)
	}
}

// Invalidate drops the cached summary.
func (c *SummaryCache) Invalidate(ctx context.Context) {
	if !c.enabled() {
		return
	}
	if err := c.client.Del(ctx, summaryKey).Err(); err != nil {
		c.logger.WarnContext(ctx, "summary cache invalidate failed", "error", err)
	}
}
