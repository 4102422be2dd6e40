package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	handler := Handler{
		Limiter: NewFixed(NewMemoryStore(), time.Minute, 1),
		Key:     func(*http.Request) string { return "static" },
	}
	counted := handler.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/coupons/SAVE10", nil)
	rr1 := httptest.NewRecorder()
	counted.ServeHTTP(rr1, req.Clone(req.Context()))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	counted.ServeHTTP(rr2, req.Clone(req.Context()))
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second request, got %d", rr2.Code)
	}
	if rr2.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("unexpected limit header: %q", rr2.Header().Get("X-RateLimit-Limit"))
	}
	if rr2.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestHandlerKeysByClientIP(t *testing.T) {
	handler := Handler{
		Limiter: NewFixed(NewMemoryStore(), time.Minute, 1),
		Key:     ByClientIP,
	}
	counted := handler.Middleware(okHandler())

	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rr := httptest.NewRecorder()
		counted.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected %s allowed, got %d", ip, rr.Code)
		}
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("store unavailable")
}

func TestHandlerMiddlewareOnError(t *testing.T) {
	called := false
	handler := Handler{
		Limiter: failingLimiter{},
		Key:     func(*http.Request) string { return "err" },
		OnError: func(error) { called = true },
	}

	rr := httptest.NewRecorder()
	handler.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected handler to proceed on error, got %d", rr.Code)
	}
	if !called {
		t.Fatal("expected OnError callback to be invoked")
	}
}

func TestFixedWithRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	store, err := NewRedisStore(client, "pos:ratelimit")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	lim := NewFixed(store, time.Minute, 2)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		d, err := lim.Allow(ctx, "key")
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if d.Remaining != int64(1-i) {
			t.Fatalf("unexpected remaining: %d", d.Remaining)
		}
	}
	d, err := lim.Allow(ctx, "key")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected third request to be rejected")
	}
}

func TestRetryAfterRoundsUp(t *testing.T) {
	if got := retryAfter(time.Now().Add(1500 * time.Millisecond)); got != 2 {
		t.Fatalf("expected 2s, got %d", got)
	}
	if got := retryAfter(time.Now().Add(-time.Second)); got != 0 {
		t.Fatalf("expected 0 for past reset, got %d", got)
	}
}
