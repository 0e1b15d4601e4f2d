package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisGenerationKey = "rbac:generation"

// RedisCache is a SnapshotCache shared by every replica through Redis.
// The generation lives in a single counter key so an invalidation issued by one
// replica is observed by all of them on their next read.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache creates a Redis-backed snapshot cache
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl, prefix: "rbac"}
}

// NewRedisClient parses a redis URL and verifies connectivity
func NewRedisClient(ctx context.Context, url, password string, db int) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	if db != 0 {
		opts.DB = db
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (c *RedisCache) key(gen uint64, kind, id string) string {
	return c.prefix + ":" + cacheKey(gen, kind, id)
}

// Generation reads the shared generation counter
func (c *RedisCache) Generation(ctx context.Context) (uint64, error) {
	val, err := c.client.Get(ctx, redisGenerationKey).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	gen, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cache generation %q: %w", val, err)
	}
	return gen, nil
}

func (c *RedisCache) get(ctx context.Context, key string, dest interface{}) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func (c *RedisCache) set(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.client.Set(ctx, key, data, c.ttl)
}

// GetRole returns a cached role for the generation
func (c *RedisCache) GetRole(ctx context.Context, gen uint64, id string) (*Role, bool) {
	var role Role
	if !c.get(ctx, c.key(gen, "role", id), &role) {
		return nil, false
	}
	return &role, true
}

// SetRole caches a role under the generation it was read in
func (c *RedisCache) SetRole(ctx context.Context, gen uint64, role *Role) {
	c.set(ctx, c.key(gen, "role", role.ID), role)
}

// GetPermission returns a cached permission for the generation
func (c *RedisCache) GetPermission(ctx context.Context, gen uint64, slug string) (*Permission, bool) {
	var p Permission
	if !c.get(ctx, c.key(gen, "permission", slug), &p) {
		return nil, false
	}
	return &p, true
}

// SetPermission caches a permission under the generation it was read in
func (c *RedisCache) SetPermission(ctx context.Context, gen uint64, p *Permission) {
	c.set(ctx, c.key(gen, "permission", p.Slug), p)
}

// Invalidate advances the shared generation. Old entries expire through their TTL.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, redisGenerationKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate rbac cache: %w", err)
	}
	return nil
}
