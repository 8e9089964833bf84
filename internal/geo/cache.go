package geo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	geoCacheKeyPrefix = "clickguard:geo:"
	DefaultCacheTTL   = 24 * time.Hour
	cacheOpTimeout    = 250 * time.Millisecond
)

// Cache stores successful lookups so repeat visitors do not spend budget.
type Cache interface {
	Get(ctx context.Context, ip string) (*Result, bool)
	Set(ctx context.Context, ip string, res *Result)
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, ip string) (*Result, bool) {
	opCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	payload, err := c.client.Get(opCtx, geoCacheKeyPrefix+ip).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debug("geo cache: get failed", "ip", ip, "error", err)
		}
		return nil, false
	}

	var res Result
	if err := json.Unmarshal(payload, &res); err != nil {
		log.Debug("geo cache: invalid payload", "ip", ip, "error", err)
		return nil, false
	}
	return &res, true
}

func (c *RedisCache) Set(ctx context.Context, ip string, res *Result) {
	if res == nil {
		return
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	if err := c.client.Set(opCtx, geoCacheKeyPrefix+ip, payload, c.ttl).Err(); err != nil {
		log.Debug("geo cache: set failed", "ip", ip, "error", err)
	}
}
