package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps computed slot lists in Redis under a per-(business, date) version.
type RedisCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

const versionTTL = 72 * time.Hour

func NewRedisCache(rdb redis.Cmdable, ttl time.Duration, prefix string) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if prefix == "" {
		prefix = "slots"
	}
	return &RedisCache{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (c *RedisCache) versionKey(businessID, date string) string {
	return fmt.Sprintf("%s:ver:%s:%s", c.prefix, businessID, date)
}

func (c *RedisCache) dataKey(businessID, serviceID, date string, version int64) string {
	return fmt.Sprintf("%s:%s:%s:%s:v%d", c.prefix, businessID, serviceID, date, version)
}

func (c *RedisCache) Version(ctx context.Context, businessID, date string) (int64, error) {
	v, err := c.rdb.Get(ctx, c.versionKey(businessID, date)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *RedisCache) Get(ctx context.Context, businessID, serviceID, date string, version int64) ([]string, bool, error) {
	raw, err := c.rdb.Get(ctx, c.dataKey(businessID, serviceID, date, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var slots []string
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, false, fmt.Errorf("decode cached slots: %w", err)
	}
	return slots, true, nil
}

func (c *RedisCache) Set(ctx context.Context, businessID, serviceID, date string, version int64, slots []string) error {
	if slots == nil {
		slots = []string{}
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.dataKey(businessID, serviceID, date, version), raw, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, businessID, date string) error {
	key := c.versionKey(businessID, date)
	if err := c.rdb.Incr(ctx, key).Err(); err != nil {
		return err
	}
	return c.rdb.Expire(ctx, key, versionTTL).Err()
}
