package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend holds the ephemeral scope. Keys carry a session TTL so
// abandoned sessions clean themselves up.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisBackend(client *redis.Client, ttl time.Duration) *RedisBackend {
	return &RedisBackend{
		client: client,
		ttl:    ttl,
	}
}

func redisKey(userID string, scope Scope, key string) string {
	return fmt.Sprintf("state:%v:%v:%v", userID, scope, key)
}

func (b *RedisBackend) Set(ctx context.Context, userID string, scope Scope, key string, value []byte) error {
	return b.client.Set(ctx, redisKey(userID, scope, key), string(value), b.ttl).Err()
}

func (b *RedisBackend) Get(ctx context.Context, userID string, scope Scope, key string) ([]byte, error) {
	val, err := b.client.Get(ctx, redisKey(userID, scope, key)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return []byte(val), nil
}

func (b *RedisBackend) Remove(ctx context.Context, userID string, scope Scope, key string) error {
	return b.client.Del(ctx, redisKey(userID, scope, key)).Err()
}

func (b *RedisBackend) Clear(ctx context.Context, userID string, scope Scope) error {
	pattern := fmt.Sprintf("state:%v:%v:*", userID, scope)
	keys, err := b.client.Keys(ctx, pattern).Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return b.client.Del(ctx, keys...).Err()
}
