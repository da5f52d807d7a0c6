package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisActiveValue  = "1"
	redisRevokedValue = "0"
)

// RedisRevocationStore shares liveness markers across server instances.
// Backend errors surface to the caller, which treats them exactly like a
// miss and falls back to the durable store.
type RedisRevocationStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRevocationStore(client redis.UniversalClient, prefix string) *RedisRevocationStore {
	if prefix == "" {
		prefix = "revocation"
	}
	return &RedisRevocationStore{client: client, prefix: prefix}
}

func (s *RedisRevocationStore) MarkActive(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.dataKey(key), redisActiveValue, ttl).Err()
}

func (s *RedisRevocationStore) MarkRevoked(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.dataKey(key), redisRevokedValue, ttl).Err()
}

func (s *RedisRevocationStore) Lookup(ctx context.Context, key string) (State, error) {
	val, err := s.client.Get(ctx, s.dataKey(key)).Result()
	if err == redis.Nil {
		return StateUnknown, nil
	}
	if err != nil {
		return StateUnknown, err
	}
	if val == redisActiveValue {
		return StateActive, nil
	}
	return StateRevoked, nil
}

func (s *RedisRevocationStore) dataKey(key string) string {
	return s.prefix + ":" + key
}
