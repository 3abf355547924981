package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMarker claims keys with SET NX.
type RedisMarker struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisMarker(rdb *redis.Client) *RedisMarker {
	return &RedisMarker{rdb: rdb, prefix: "leadbridge:"}
}

func (m *RedisMarker) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return m.rdb.SetNX(ctx, m.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (m *RedisMarker) Release(ctx context.Context, key string) error {
	return m.rdb.Del(ctx, m.prefix+key).Err()
}
