package scancache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/sentrygate/gateway/internal/scan"
)

// RedisCache stores scan reports in an external redis instance so multiple
// gateway processes share one cache. Unlike Cache, its single-flight
// collapsing only dedups within this process: two gateway instances racing
// on the same cache-miss key will each invoke compute once, since
// singleflight.Group holds no cross-process state. Deployments that need
// cross-process dedup as well as cross-process sharing must put a
// process-external lock in front of this backend; that is out of scope
// here.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
	sf  singleflight.Group
}

// NewRedisCache connects lazily; go-redis dials on first command.
func NewRedisCache(addr string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		ttl: ttl,
	}
}

func (c *RedisCache) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (scan.Report, error)) (scan.Report, error) {
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var report scan.Report
		if json.Unmarshal(raw, &report) == nil {
			return report, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		// A redis error degrades to a cache miss rather than failing the
		// request: the scan still runs, it just isn't served from cache
		// this time.
	}

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		report, err := compute(ctx)
		if err != nil {
			return scan.Report{}, err
		}
		if raw, mErr := json.Marshal(report); mErr == nil {
			_ = c.rdb.Set(ctx, key, raw, c.ttl).Err()
		}
		return report, nil
	})
	if err != nil {
		return scan.Report{}, err
	}
	return v.(scan.Report), nil
}

func (c *RedisCache) Invalidate(key string) {
	c.rdb.Del(context.Background(), key)
}

// Clear is intentionally a no-op: FLUSHDB would be destructive against a
// redis instance that may be shared with other tenants or other cache
// namespaces. Callers that need bulk invalidation against a redis backend
// should invalidate known keys individually.
func (c *RedisCache) Clear() {}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
