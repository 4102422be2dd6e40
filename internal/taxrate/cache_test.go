package taxrate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/cache"
)

type countingCompute struct {
	calls int
	rate  decimal.Decimal
	at    time.Time
	err   error
}

func (c *countingCompute) run(context.Context) (Resolution, error) {
	c.calls++
	if c.err != nil {
		return Resolution{}, c.err
	}
	return Resolution{Rate: c.rate, Tier: "explicit", ResolvedAt: c.at}, nil
}

func TestCacheServesFreshValue(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c := &Cache{TTL: time.Minute, Now: func() time.Time { return now }}
	compute := &countingCompute{rate: decimal.NewFromInt(18), at: now}

	_, hit, err := c.GetOrCompute(context.Background(), compute.run)
	require.NoError(t, err)
	require.False(t, hit)

	res, hit, err := c.GetOrCompute(context.Background(), compute.run)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, 1, compute.calls)
	require.True(t, res.Rate.Equal(decimal.NewFromInt(18)))
}

func TestCacheExpires(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c := &Cache{TTL: time.Minute, Now: func() time.Time { return now }}
	compute := &countingCompute{rate: decimal.NewFromInt(18), at: now}

	_, _, err := c.GetOrCompute(context.Background(), compute.run)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	compute.at = now
	_, hit, err := c.GetOrCompute(context.Background(), compute.run)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 2, compute.calls)
}

func TestCacheZeroTTLNeverExpires(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c := &Cache{Now: func() time.Time { return now }}
	compute := &countingCompute{rate: decimal.NewFromInt(5), at: now}

	_, _, err := c.GetOrCompute(context.Background(), compute.run)
	require.NoError(t, err)
	now = now.Add(240 * time.Hour)
	_, hit, err := c.GetOrCompute(context.Background(), compute.run)
	require.NoError(t, err)
	require.True(t, hit)

	require.NoError(t, c.Invalidate(context.Background()))
	_, hit, err = c.GetOrCompute(context.Background(), compute.run)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 2, compute.calls)
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	c := &Cache{TTL: time.Minute}
	compute := &countingCompute{err: ErrExhausted}

	_, _, err := c.GetOrCompute(context.Background(), compute.run)
	require.True(t, errors.Is(err, ErrExhausted))

	compute.err = nil
	compute.rate = decimal.NewFromInt(12)
	compute.at = time.Now()
	res, hit, err := c.GetOrCompute(context.Background(), compute.run)
	require.NoError(t, err)
	require.False(t, hit)
	require.True(t, res.Rate.Equal(decimal.NewFromInt(12)))
}

func newTestMirror(t *testing.T) (RedisMirror, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return RedisMirror{Redis: cache.New(client, 0)}, mr
}

func TestRedisMirrorSharesResolution(t *testing.T) {
	mirror, mr := newTestMirror(t)
	now := time.Now().UTC().Truncate(time.Second)

	first := &Cache{TTL: time.Minute, Mirror: mirror}
	compute := &countingCompute{rate: decimal.RequireFromString("12.5"), at: now}
	_, _, err := first.GetOrCompute(context.Background(), compute.run)
	require.NoError(t, err)
	require.True(t, mr.Exists("pos:taxrate:effective"))

	second := &Cache{TTL: time.Minute, Mirror: mirror}
	res, hit, err := second.GetOrCompute(context.Background(), compute.run)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, 1, compute.calls)
	require.True(t, res.Rate.Equal(decimal.RequireFromString("12.5")))
	require.Equal(t, "explicit", res.Tier)

	require.NoError(t, second.Invalidate(context.Background()))
	require.False(t, mr.Exists("pos:taxrate:effective"))
}

func TestServiceEffectiveRateCaches(t *testing.T) {
	cat := &fakeCatalog{rates: []RateRecord{{Rate: "18"}}}
	svc := &Service{
		Resolver: NewResolver(cat, DefaultConfig(), zerolog.Nop()),
		Cache:    &Cache{TTL: time.Minute},
		Logger:   zerolog.Nop(),
	}

	res, err := svc.EffectiveRate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "explicit", res.Tier)

	cat.rates = []RateRecord{{Rate: "5"}}
	res, err = svc.EffectiveRate(context.Background())
	require.NoError(t, err)
	require.True(t, res.Rate.Equal(decimal.NewFromInt(18)))

	require.NoError(t, svc.Invalidate(context.Background()))
	res, err = svc.EffectiveRate(context.Background())
	require.NoError(t, err)
	require.True(t, res.Rate.Equal(decimal.NewFromInt(5)))
}
