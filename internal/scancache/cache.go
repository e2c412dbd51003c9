// Package scancache memoizes scan.Report results keyed on a fingerprint of
// (model, direction, normalized text), so repeated identical prompts or
// responses are scanned once. Cache is the in-process LRU+TTL backend;
// RedisCache is the external, multi-process alternative.
package scancache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"github.com/sentrygate/gateway/internal/scan"
)

// Backend is satisfied by both Cache and RedisCache. The router depends on
// this interface, not the concrete type, so the backend is swappable via
// configuration.
type Backend interface {
	GetOrCompute(ctx context.Context, key string, compute func(context.Context) (scan.Report, error)) (scan.Report, error)
	Invalidate(key string)
	Clear()
}

// Fingerprint derives a cache key from the scan inputs that determine its
// result. Text is normalized to NFC first so that visually identical
// strings built from different combining-mark sequences collide on the
// same key rather than silently bypassing the cache.
func Fingerprint(model string, direction scan.Direction, text string) string {
	normalized := norm.NFC.String(text)
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(direction))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))
}

type cacheEntry struct {
	report    scan.Report
	expiresAt time.Time
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// Cache is an in-process LRU cache of scan.Report values with a fixed TTL
// and single-flight collapsing of concurrent identical computations, so N
// goroutines racing on the same cache-miss key invoke compute exactly once.
type Cache struct {
	mu        sync.Mutex
	lru       *lru.Cache[string, cacheEntry]
	ttl       time.Duration
	sf        singleflight.Group
	inflight  map[string]bool
	hits      int64
	misses    int64
	evictions atomic.Int64
}

// New builds an in-process cache. maxEntries <= 0 defaults to 10000.
func New(maxEntries int, ttl time.Duration) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	c := &Cache{ttl: ttl, inflight: make(map[string]bool)}
	// onEvict fires for every removal the underlying LRU performs —
	// capacity-driven eviction, TTL purges, and explicit
	// Invalidate/Clear calls alike — so Evictions counts total entries
	// removed from the cache, not just size-pressure evictions. It runs
	// synchronously inside Add/Remove/Purge, so it must never touch c.mu
	// (those calls already hold it) — atomic.Int64 sidesteps that.
	l, err := lru.NewWithEvict[string, cacheEntry](maxEntries, func(string, cacheEntry) {
		c.evictions.Add(1)
	})
	if err != nil {
		return nil, fmt.Errorf("scancache: creating LRU: %w", err)
	}
	c.lru = l
	return c, nil
}

// GetOrCompute returns the cached report for key if present and unexpired;
// otherwise it invokes compute, under single-flight so concurrent callers
// with the same key share one compute call, and stores the result. Of any
// number of callers racing on the same cold key, exactly one — the one
// that finds no compute already in flight — counts as a miss; every other
// caller that joins the in-flight compute counts as a hit, since it never
// causes an extra scan.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (scan.Report, error)) (scan.Report, error) {
	c.mu.Lock()
	if e, ok := c.lru.Get(key); ok {
		if time.Now().Before(e.expiresAt) {
			c.hits++
			c.mu.Unlock()
			return e.report, nil
		}
		c.lru.Remove(key)
	}

	isLeader := !c.inflight[key]
	if isLeader {
		c.inflight[key] = true
		c.misses++
	} else {
		c.hits++
	}
	c.mu.Unlock()

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		report, computeErr := compute(ctx)
		c.mu.Lock()
		delete(c.inflight, key)
		if computeErr == nil {
			c.lru.Add(key, cacheEntry{report: report, expiresAt: time.Now().Add(c.ttl)})
		}
		c.mu.Unlock()
		return report, computeErr
	})
	if err != nil {
		return scan.Report{}, err
	}
	return v.(scan.Report), nil
}

// Invalidate evicts a single key, if present.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Clear evicts every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Stats returns a snapshot of hit/miss/eviction counters and current size.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Evictions: c.evictions.Load(), Size: c.lru.Len()}
}

// StartPurger runs a background sweep of expired entries until ctx is
// cancelled. The returned channel closes when the goroutine exits, so
// callers can wait for it during shutdown.
func (c *Cache) StartPurger(ctx context.Context, logger *zap.Logger, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				func() {
					defer func() {
						if r := recover(); r != nil {
							logger.Error("scancache purger recovered from panic", zap.Any("panic", r))
						}
					}()
					c.purgeExpired()
				}()
			}
		}
	}()
	return done
}

func (c *Cache) purgeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for _, key := range c.lru.Keys() {
		if e, ok := c.lru.Peek(key); ok && now.After(e.expiresAt) {
			c.lru.Remove(key)
		}
	}
}
