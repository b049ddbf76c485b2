package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const seenKeyPrefix = "dealwatch:seen:"

// SeenCache suppresses re-broadcasting the same deal across cycles using a
// Redis SETNX key per catalog identifier. A nil client disables suppression
// rather than failing the pipeline.
type SeenCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSeenCache wraps a redis client. ttl bounds how long a published deal
// stays suppressed.
func NewSeenCache(client *redis.Client, ttl time.Duration) *SeenCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SeenCache{client: client, ttl: ttl}
}

// MarkSeen records the identifier and reports whether it was seen before.
// Cache errors degrade to "not seen" so a Redis outage never drops deals.
func (c *SeenCache) MarkSeen(ctx context.Context, asin string) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}

	set, err := c.client.SetNX(ctx, seenKeyPrefix+asin, 1, c.ttl).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}
