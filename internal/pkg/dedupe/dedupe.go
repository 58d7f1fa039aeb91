package dedupe

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix namespaces dedup markers in Redis
	KeyPrefix = "dedupe:event:"

	// DefaultTTL bounds how long a processed marker is kept. Expiry is fine:
	// an absent marker means "not recently confirmed", not "new" — the ledger
	// table stays the source of truth.
	DefaultTTL = 15 * time.Minute
)

// Cache is the fast-path "already handled" store. Every operation fails open:
// if Redis is unreachable the pipeline just falls through to the authoritative
// ledger lookup, slower but still correct.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a dedup cache on the given Redis client
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client, ttl: DefaultTTL}
}

// NewCacheWithTTL creates a dedup cache with a custom marker lifetime
func NewCacheWithTTL(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Exists reports whether a processed marker is present for the event id.
// Cache errors are logged and reported as a miss.
func (c *Cache) Exists(ctx context.Context, eventID string) bool {
	_, err := c.client.Get(ctx, KeyPrefix+eventID).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		log.Warnf("[Dedupe] Cache read failed for event %s, treating as miss: %v", eventID, err)
		return false
	}
	return true
}

// MarkProcessed writes the processed marker with the configured TTL. Only call
// after the ledger entry is durably committed (or found to already exist).
func (c *Cache) MarkProcessed(ctx context.Context, eventID string) error {
	return c.client.Set(ctx, KeyPrefix+eventID, "1", c.ttl).Err()
}
