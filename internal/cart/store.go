package cart

import (
	"context"
	"time"

	"github.com/noah-isme/backend-pos/internal/cache"
)

// Store persists cart sessions.
type Store interface {
	Load(ctx context.Context, id string) (Session, error)
	Save(ctx context.Context, s Session) error
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps sessions as JSON in Redis. Every save refreshes the TTL.
type RedisStore struct {
	Cache  *cache.Redis
	Prefix string
}

func (r RedisStore) key(id string) string {
	prefix := r.Prefix
	if prefix == "" {
		prefix = "pos:cart:"
	}
	return prefix + id
}

// Load implements Store.
func (r RedisStore) Load(ctx context.Context, id string) (Session, error) {
	var s Session
	found, err := r.Cache.GetJSON(ctx, r.key(id), &s)
	if err != nil {
		return Session{}, err
	}
	if !found {
		return Session{}, ErrNotFound
	}
	return s, nil
}

// Save implements Store.
func (r RedisStore) Save(ctx context.Context, s Session) error {
	return r.Cache.SetJSON(ctx, r.key(s.ID), s)
}

// Delete implements Store.
func (r RedisStore) Delete(ctx context.Context, id string) error {
	return r.Cache.Delete(ctx, r.key(id))
}

// TTL reports how long an idle session survives.
func (r RedisStore) TTL() time.Duration {
	return r.Cache.TTL()
}
