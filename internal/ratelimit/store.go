package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Decision is the outcome of counting one request against a key.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	Reset     time.Time
}

// Limiter counts a request for key and reports whether it is within the limit.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Fixed enforces max requests per period using a ulule limiter store.
type Fixed struct {
	l *limiter.Limiter
}

// NewFixed builds a limiter on top of store.
func NewFixed(store limiter.Store, period time.Duration, max int64) *Fixed {
	return &Fixed{l: limiter.New(store, limiter.Rate{Period: period, Limit: max})}
}

// NewRedisStore wires a limiter store backed by Redis.
func NewRedisStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
}

// NewMemoryStore returns a process-local store for single-instance setups and tests.
func NewMemoryStore() limiter.Store {
	return memory.NewStore()
}

// Allow implements Limiter.
func (f *Fixed) Allow(ctx context.Context, key string) (Decision, error) {
	if f == nil || f.l == nil {
		return Decision{Allowed: true}, nil
	}
	lctx, err := f.l.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !lctx.Reached,
		Limit:     lctx.Limit,
		Remaining: lctx.Remaining,
		Reset:     time.Unix(lctx.Reset, 0),
	}, nil
}
