package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore performs the atomic increment behind a rate limit check.
// Implementations must make INCR and window start a single step.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
	Reset(ctx context.Context, key string) error
}

// incrementWindowLua atomically bumps a fixed-window counter.
// KEYS[1] = counter key
// ARGV[1] = window in milliseconds
//
// Returns {count, pttl}.
var incrementWindowLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisCounterStore keeps counters in Redis so every instance shares them.
type RedisCounterStore struct {
	redis redis.UniversalClient
}

// NewRedisCounterStore creates a [CounterStore] backed by the given client.
func NewRedisCounterStore(client redis.UniversalClient) *RedisCounterStore {
	return &RedisCounterStore{redis: client}
}

// Increment implements [CounterStore].
func (s *RedisCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		windowMs = 1
	}

	res, err := incrementWindowLua.Run(ctx, s.redis, []string{key}, windowMs).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("%w: unexpected script result", ErrRedisUnavailable)
	}

	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}

// Reset clears a counter. Missing keys are not an error.
func (s *RedisCounterStore) Reset(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
