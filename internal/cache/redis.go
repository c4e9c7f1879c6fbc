package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "iotpilot"

// Redis is a Cache shared by every server instance. Expiry is delegated to
// Redis key TTLs.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// NewRedisFromURL parses a redis:// URL and pings the server.
func NewRedisFromURL(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client), nil
}

func (r *Redis) key(tenantID uuid.UUID, key string) string {
	return redisKeyPrefix + ":" + tenantID.String() + ":" + key
}

func (r *Redis) Get(ctx context.Context, tenantID uuid.UUID, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, r.key(tenantID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *Redis) Set(ctx context.Context, tenantID uuid.UUID, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, r.key(tenantID, key), value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, tenantID uuid.UUID, key string) error {
	return r.client.Del(ctx, r.key(tenantID, key)).Err()
}

func (r *Redis) ClearTenant(ctx context.Context, tenantID uuid.UUID) error {
	pattern := redisKeyPrefix + ":" + tenantID.String() + ":*"
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
