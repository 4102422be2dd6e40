package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps Redis helpers for JSON payloads.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// New constructs a cache helper whose writes default to ttl. A zero ttl keeps keys until deleted.
func New(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Redis) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the default TTL.
func (c *Redis) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil {
		return nil
	}
	return c.SetJSONFor(ctx, key, v, c.ttl)
}

// SetJSONFor serialises v as JSON and stores it for ttl.
func (c *Redis) SetJSONFor(ctx context.Context, key string, v any, ttl time.Duration) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Delete removes the provided keys.
func (c *Redis) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// TTL returns the default expiry applied by SetJSON.
func (c *Redis) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}
