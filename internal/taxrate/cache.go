package taxrate

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/noah-isme/backend-pos/internal/cache"
)

// Mirror shares a resolution between processes.
type Mirror interface {
	Load(ctx context.Context) (Resolution, bool, error)
	Store(ctx context.Context, res Resolution, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// Cache memoises the effective rate. Concurrent writers are last-write-wins.
// A zero TTL keeps the value until Invalidate.
type Cache struct {
	TTL    time.Duration
	Now    func() time.Time
	Mirror Mirror

	current atomic.Pointer[Resolution]
}

// GetOrCompute returns the cached resolution or runs compute and stores its result.
// hit reports whether the value came from the cache.
func (c *Cache) GetOrCompute(ctx context.Context, compute func(context.Context) (Resolution, error)) (res Resolution, hit bool, err error) {
	if cached := c.current.Load(); cached != nil && c.fresh(*cached) {
		return *cached, true, nil
	}
	if c.Mirror != nil {
		if shared, found, mErr := c.Mirror.Load(ctx); mErr == nil && found && c.fresh(shared) {
			c.current.Store(&shared)
			return shared, true, nil
		}
	}
	res, err = compute(ctx)
	if err != nil {
		return Resolution{}, false, err
	}
	c.current.Store(&res)
	if c.Mirror != nil {
		_ = c.Mirror.Store(ctx, res, c.TTL)
	}
	return res, false, nil
}

// Invalidate drops the local and shared values so the next read recomputes.
func (c *Cache) Invalidate(ctx context.Context) error {
	c.current.Store(nil)
	if c.Mirror != nil {
		return c.Mirror.Clear(ctx)
	}
	return nil
}

func (c *Cache) fresh(res Resolution) bool {
	if c.TTL <= 0 {
		return true
	}
	return c.now().Sub(res.ResolvedAt) < c.TTL
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// RedisMirror stores the resolution as JSON in Redis.
type RedisMirror struct {
	Redis *cache.Redis
	Key   string
}

func (m RedisMirror) key() string {
	if m.Key == "" {
		return "pos:taxrate:effective"
	}
	return m.Key
}

// Load implements Mirror.
func (m RedisMirror) Load(ctx context.Context) (Resolution, bool, error) {
	var res Resolution
	found, err := m.Redis.GetJSON(ctx, m.key(), &res)
	if err != nil || !found {
		return Resolution{}, false, err
	}
	return res, true, nil
}

// Store implements Mirror.
func (m RedisMirror) Store(ctx context.Context, res Resolution, ttl time.Duration) error {
	return m.Redis.SetJSONFor(ctx, m.key(), res, ttl)
}

// Clear implements Mirror.
func (m RedisMirror) Clear(ctx context.Context) error {
	return m.Redis.Delete(ctx, m.key())
}
