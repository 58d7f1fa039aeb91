package metrics

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// CountersKey is the Redis hash holding pipeline counters
const CountersKey = "payment:counters"

// Counter names the well-defined points the pipeline reports on. Counts are
// approximate under concurrency, which is fine for observability.
type Counter string

const (
	CounterReceived   Counter = "received"
	CounterProcessed  Counter = "processed"
	CounterDuplicate  Counter = "duplicate"
	CounterFailed     Counter = "failed"
	CounterDeadLetter Counter = "dead_letter"
)

// Collector is injected wherever the pipeline reports a counter, instead of
// package-level mutable state.
type Collector interface {
	Inc(counter Counter)
}

// RedisCollector accumulates counters in a Redis hash so they survive restarts
// and aggregate across instances.
type RedisCollector struct {
	client *redis.Client
}

// NewRedisCollector creates a collector on the given Redis client
func NewRedisCollector(client *redis.Client) *RedisCollector {
	return &RedisCollector{client: client}
}

// Inc increments the counter by one. Best effort; failures are logged.
func (c *RedisCollector) Inc(counter Counter) {
	if err := c.client.HIncrBy(context.Background(), CountersKey, string(counter), 1).Err(); err != nil {
		log.Warnf("[Metrics] Failed to increment %s: %v", counter, err)
	}
}

// Snapshot returns the current counter values
func (c *RedisCollector) Snapshot(ctx context.Context) (map[string]int64, error) {
	raw, err := c.client.HGetAll(ctx, CountersKey).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[string]int64, len(raw))
	for name, value := range raw {
		count, perr := strconv.ParseInt(value, 10, 64)
		if perr != nil {
			continue
		}
		result[name] = count
	}
	return result, nil
}

// NoopCollector discards all counter updates. Used in tests.
type NoopCollector struct{}

func (NoopCollector) Inc(Counter) {}
