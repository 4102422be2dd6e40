package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"
)

// HTTPClient retries idempotent-safe failures behind a Breaker.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	// Timeout bounds each attempt, not the whole call.
	Timeout  time.Duration
	Target   string
	Fallback func(context.Context, *http.Request, error) (*http.Response, error)
}

// Retryable reports whether a response status warrants another attempt.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Backoff returns base doubled per attempt after the first, spread by up to
// jitterPct in either direction.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		attempt = 30
	}
	d := base << (attempt - 1)
	if jitterPct <= 0 {
		return d
	}
	spread := (rand.Float64()*2 - 1) * jitterPct
	return d + time.Duration(float64(d)*spread)
}

// Do sends req, retrying transport errors and Retryable statuses. Other
// responses, 4xx included, are returned untouched. The body is buffered
// once so every attempt replays it.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	breaker := cl.Breaker
	if breaker == nil {
		breaker = NewBreaker(1, 1, time.Second)
	}
	attempts := max(cl.MaxAttempts, 1)
	base := cl.BaseBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	body, err := snapshotBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for n := 1; n <= attempts; n++ {
		if n > 1 {
			RetryAttempts.WithLabelValues(cl.label(breaker)).Inc()
			if err := sleep(ctx, Backoff(base, n-1, cl.Jitter)); err != nil {
				return nil, err
			}
		}
		if !breaker.Allow(ctx) {
			lastErr = ErrOpenCircuit
			break
		}
		resp, err := cl.attempt(ctx, body.request(ctx, req))
		switch {
		case err != nil:
			lastErr = err
		case Retryable(resp.StatusCode):
			lastErr = fmt.Errorf("resilience: upstream responded %s", resp.Status)
			discard(resp)
		default:
			breaker.Report(ctx, true)
			return resp, nil
		}
		breaker.Report(ctx, false)
	}

	if cl.Fallback != nil {
		return cl.Fallback(ctx, req, lastErr)
	}
	return nil, lastErr
}

func (cl HTTPClient) label(b *Breaker) string {
	if cl.Target != "" {
		return cl.Target
	}
	return b.Target()
}

// attempt applies Timeout to one call; the deadline lives until the
// response body is closed.
func (cl HTTPClient) attempt(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Timeout <= 0 {
		return cl.Client.Do(req)
	}
	callCtx, cancel := context.WithTimeout(ctx, cl.Timeout)
	resp, err := cl.Client.Do(req.WithContext(callCtx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = releasingBody{ReadCloser: resp.Body, release: cancel}
	return resp, nil
}

type releasingBody struct {
	io.ReadCloser
	release context.CancelFunc
}

func (b releasingBody) Close() error {
	defer b.release()
	return b.ReadCloser.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func discard(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// bodySnapshot holds a fully read request body, nil when there is none.
type bodySnapshot []byte

func snapshotBody(req *http.Request) (bodySnapshot, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("resilience: buffer request body: %w", err)
	}
	return bodySnapshot(data), nil
}

func (s bodySnapshot) request(ctx context.Context, req *http.Request) *http.Request {
	out := req.Clone(ctx)
	if s == nil {
		return out
	}
	out.ContentLength = int64(len(s))
	out.Body = io.NopCloser(bytes.NewReader(s))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(s)), nil
	}
	return out
}
