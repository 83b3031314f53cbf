/**
 * @description
 * This file provides the resolved-name cache backing the account resolver.
 * The cache is advisory: a Redis outage degrades to a live lookup, it never
 * fails a verification.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// NameCache stores resolved display names keyed by the exact query key.
type NameCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, name string)
}

// NoopNameCache is used when Redis is not configured.
type NoopNameCache struct{}

func (NoopNameCache) Get(ctx context.Context, key string) (string, bool) { return "", false }
func (NoopNameCache) Set(ctx context.Context, key, name string)         {}

// RedisNameCache caches resolved names in Redis with a TTL.
type RedisNameCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisNameCache creates a Redis-backed name cache.
func NewRedisNameCache(client *redis.Client, prefix string, ttl time.Duration) *RedisNameCache {
	return &RedisNameCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisNameCache) redisKey(key string) string {
	return c.prefix + ":resolved_name:" + key
}

func (c *RedisNameCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, c.redisKey(key)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("level=warn component=name_cache op=get msg=\"redis get failed; treating as miss\" err=%v", err)
		}
		return "", false
	}
	return val, true
}

func (c *RedisNameCache) Set(ctx context.Context, key, name string) {
	if err := c.client.Set(ctx, c.redisKey(key), name, c.ttl).Err(); err != nil {
		log.Printf("level=warn component=name_cache op=set msg=\"redis set failed\" err=%v", err)
	}
}
