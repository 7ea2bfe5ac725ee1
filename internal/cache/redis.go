package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares provider responses across replicas
type RedisCache struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
}

// NewRedisCache connects to redis at addr
func NewRedisCache(addr string, db int, prefix string, defaultTTL time.Duration) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return NewRedisCacheFromClient(client, prefix, defaultTTL)
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client, prefix string, defaultTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:     client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
	}
}

// Get retrieves a value; any redis error is treated as a miss
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, prefixed(c.prefix, key)).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

// Set stores a value with the given TTL (0 uses the default TTL)
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, prefixed(c.prefix, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a value
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, prefixed(c.prefix, key)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear removes every key under the cache prefix
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, prefixed(c.prefix, "*"), 200).Iterator()

	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 200 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	return nil
}

// Ping checks connectivity
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the connection pool
func (c *RedisCache) Close() error {
	return c.client.Close()
}
