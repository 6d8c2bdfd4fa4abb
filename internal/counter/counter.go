// Package counter exposes the atomic window counters backing admission
// control. Callers only get increment-with-expiry and a compensating
// decrement; raw get/set is deliberately not part of the contract.
package counter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

type Counter interface {
	// IncrWithTTL atomically increments key and, on first use, arms the
	// expiry. Returns the post-increment value.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Compensate undoes one increment after a denied admission so the
	// rejected attempt does not consume window budget.
	Compensate(ctx context.Context, key string) error

	// Peek reads the current value without mutating it. Reporting only.
	Peek(ctx context.Context, key string) (int64, error)
}

var Module = fx.Module("counter",
	fx.Provide(NewRedisCounter),
)

// INCR and EXPIRE must be one primitive: a separate EXPIRE call can be lost
// between concurrent first hits, leaving an immortal counter.
var incrWithTTL = redis.NewScript(`
local v = redis.call("INCR", KEYS[1])
if v == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return v
`)

// DECR on a missing key would recreate it at -1 with no TTL, so the
// compensating decrement only applies while the window key still lives.
var compensate = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return redis.call("DECR", KEYS[1])
end
return 0
`)

type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) Counter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return incrWithTTL.Run(ctx, c.client, []string{key}, seconds).Int64()
}

func (c *RedisCounter) Compensate(ctx context.Context, key string) error {
	return compensate.Run(ctx, c.client, []string{key}).Err()
}

func (c *RedisCounter) Peek(ctx context.Context, key string) (int64, error) {
	val, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}
