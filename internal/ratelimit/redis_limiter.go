package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig mirrors the shape of the connection settings the rest of
// this service uses for Redis, kept local to this package so it has no
// dependency on the HTTP config type.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Redis is a fixed-window limiter shared across every process pointed at
// the same Redis instance, using INCR+EXPIRE so the window resets itself
// without a background sweeper.
type Redis struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedis(cfg RedisConfig, limit int, window time.Duration) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Redis{client: client, limit: limit, window: window}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := "ratelimit:" + key

	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: incr: %w", err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, redisKey, r.window).Err(); err != nil {
			return false, 0, fmt.Errorf("ratelimit: expire: %w", err)
		}
	}

	if count > int64(r.limit) {
		ttl, err := r.client.TTL(ctx, redisKey).Result()
		if err != nil || ttl < 0 {
			ttl = r.window
		}
		return false, ttl, nil
	}

	return true, 0, nil
}
