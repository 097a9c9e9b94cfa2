package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// usageTTL keeps daily counters around long enough for inspection while
// letting Redis reclaim old days on its own.
const usageTTL = 48 * time.Hour

// RedisStore is a shared CounterStore for multi-instance deployments.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a RedisStore talking to addr.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRedisStoreWithClient wraps an existing client, used by tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Incr implements [CounterStore] using INCR, which is atomic server-side.
// The expiry is set only when the key is first created.
func (s *RedisStore) Incr(ctx context.Context, day, key string) (int64, error) {
	k := fmt.Sprintf("usage:%s:%s", day, key)

	count, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, k, usageTTL).Err(); err != nil {
			return 0, fmt.Errorf("failed to set usage expiry: %w", err)
		}
	}

	return count, nil
}

// Close releases the underlying client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
