package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler guards a route with a Limiter. Key picks the bucket per request;
// limiter failures are reported to OnError and the request is served.
type Handler struct {
	Limiter Limiter
	Key     func(*http.Request) string
	OnError func(error)
}

// ByClientIP buckets requests by caller address.
func ByClientIP(r *http.Request) string {
	return "ip:" + common.ClientIP(r)
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil || h.Key == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := h.Limiter.Allow(r.Context(), h.Key(r))
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}
		writeHeaders(w.Header(), d)
		if d.Allowed {
			next.ServeHTTP(w, r)
			return
		}
		common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", map[string]any{
			"retryAfterSeconds": retryAfter(d.Reset),
		})
	})
}

func writeHeaders(h http.Header, d Decision) {
	h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	if !d.Allowed {
		h.Set("Retry-After", strconv.Itoa(retryAfter(d.Reset)))
	}
}

// retryAfter rounds up to whole seconds and never goes negative.
func retryAfter(reset time.Time) int {
	secs := math.Ceil(time.Until(reset).Seconds())
	if secs < 0 {
		return 0
	}
	return int(secs)
}
