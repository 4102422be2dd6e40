package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotAcquired means another holder owns the key.
	ErrNotAcquired = errors.New("lock: held by another worker")
	// ErrLost is the cancellation cause handed to fn when the lease could
	// not be renewed.
	ErrLost = errors.New("lock: lease lost")
)

const defaultTTL = 30 * time.Second

// Both scripts act only while the caller's token still owns the key.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Locker is a single-key Redis lease. Keys are namespaced by Prefix.
type Locker struct {
	R      *redis.Client
	Prefix string
}

// TryWithLock runs fn only if key is free right now, else returns
// ErrNotAcquired. The lease is renewed every ttl/3 while fn runs; if a
// renewal finds the key gone or reassigned, fn's context is cancelled
// with ErrLost.
func (l Locker) TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	switch {
	case l.R == nil:
		return errors.New("lock: redis client not configured")
	case fn == nil:
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	lease := lease{r: l.R, key: l.Prefix + key, token: uuid.NewString(), ttl: ttl}
	ok, err := l.R.SetNX(ctx, lease.key, lease.token, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcquired
	}
	defer lease.release()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := make(chan struct{})
	defer close(stop)
	go lease.keepAlive(runCtx, cancel, stop)

	return fn(runCtx)
}

type lease struct {
	r     *redis.Client
	key   string
	token string
	ttl   time.Duration
}

func (ls lease) keepAlive(ctx context.Context, cancel context.CancelCauseFunc, stop <-chan struct{}) {
	tick := time.NewTicker(max(ls.ttl/3, time.Millisecond))
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-tick.C:
			n, err := renewScript.Run(ctx, ls.r, []string{ls.key}, ls.token, ls.ttl.Milliseconds()).Int()
			if err != nil && ctx.Err() != nil {
				return
			}
			if err != nil || n == 0 {
				cancel(ErrLost)
				return
			}
		}
	}
}

// release uses its own context so a cancelled caller still frees the key.
func (ls lease) release() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, ls.r, []string{ls.key}, ls.token).Err()
}
