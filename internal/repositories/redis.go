package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/cassette/internal/shared"
	"github.com/redis/go-redis/v9"
)

// RedisKV implements [KV] on a Redis server. Keys are namespaced with the configured prefix.
type RedisKV struct {
	client *redis.Client
	prefix string
}

// NewRedisKV creates a RedisKV from config. The connection is established lazily.
func NewRedisKV(cfg shared.KVConfig) *RedisKV {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 2 * time.Second,
	})
	return &RedisKV{client: client, prefix: cfg.Prefix}
}

func (r *RedisKV) key(k string) string { return r.prefix + k }

// Ping checks the connection.
func (r *RedisKV) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: failed to connect to redis: %v", shared.ErrServiceUnavailable, err)
	}
	return nil
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", shared.ErrKeyNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get redis key %s: %w", key, err)
	}
	return val, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set redis key %s: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete redis key %s: %w", key, err)
	}
	return nil
}

// Close releases the connection pool.
func (r *RedisKV) Close() error {
	return r.client.Close()
}
