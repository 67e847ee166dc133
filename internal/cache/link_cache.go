package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"shortlink/internal/client"
)

const (
	linkKeyPrefix  = "link:"
	defaultLinkTTL = 5 * time.Minute
)

// LinkCache keeps short-code -> destination URL mappings in Redis so hot
// redirects skip the database. Misses and Redis failures both fall through
// to the caller; the cache is never authoritative.
type LinkCache struct {
	redis  *client.RedisClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewLinkCache(redis *client.RedisClient, ttl time.Duration, logger *zap.Logger) *LinkCache {
	if ttl <= 0 {
		ttl = defaultLinkTTL
	}
	return &LinkCache{
		redis:  redis,
		ttl:    ttl,
		logger: logger,
	}
}

// GetURL returns the cached destination for a short code, if present.
func (c *LinkCache) GetURL(ctx context.Context, shortCode string) (string, bool) {
	val, err := c.redis.Get(ctx, linkKeyPrefix+shortCode)
	if err != nil {
		if !errors.Is(err, client.ErrCacheMiss) {
			c.logger.Warn("link cache read failed",
				zap.String("short_code", shortCode),
				zap.Error(err))
		}
		return "", false
	}
	return val, true
}

// SetURL stores a resolved destination. The entry lives for the cache
// TTL or until the link itself expires, whichever comes first, so an
// expired link can never be served from cache.
func (c *LinkCache) SetURL(ctx context.Context, shortCode, originalURL string, expiresAt time.Time) {
	ttl := entryTTL(c.ttl, expiresAt, time.Now())
	if ttl <= 0 {
		return
	}
	if err := c.redis.Set(ctx, linkKeyPrefix+shortCode, originalURL, ttl); err != nil {
		c.logger.Warn("link cache write failed",
			zap.String("short_code", shortCode),
			zap.Error(err))
	}
}

// entryTTL clamps the cache TTL to the link's remaining lifetime. A zero
// expiry means the link never expires from the cache's point of view.
func entryTTL(cacheTTL time.Duration, expiresAt, now time.Time) time.Duration {
	if expiresAt.IsZero() {
		return cacheTTL
	}
	if remaining := expiresAt.Sub(now); remaining < cacheTTL {
		return remaining
	}
	return cacheTTL
}

// Invalidate drops a cached mapping, used when a link is deleted.
func (c *LinkCache) Invalidate(ctx context.Context, shortCode string) {
	if err := c.redis.Del(ctx, linkKeyPrefix+shortCode); err != nil {
		c.logger.Warn("link cache invalidation failed",
			zap.String("short_code", shortCode),
			zap.Error(err))
	}
}
