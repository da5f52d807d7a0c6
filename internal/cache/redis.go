package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds a pooled client for the cache layer. An empty
// endpoint returns nil: callers then wire the Noop store and the system
// degrades to store-only checks without error.
func NewRedisClient(endpoint string, poolSize int, timeout time.Duration) *redis.Client {
	if endpoint == "" {
		return nil
	}
	opts := &redis.Options{Addr: endpoint}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}
	if timeout > 0 {
		opts.DialTimeout = timeout
		opts.ReadTimeout = timeout
		opts.WriteTimeout = timeout
	}
	return redis.NewClient(opts)
}
