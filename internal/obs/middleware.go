package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// StatusRecorder remembers the status and body size a handler produced.
type StatusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
	wrote   bool
}

func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *StatusRecorder) WriteHeader(code int) {
	if !sr.wrote {
		sr.status, sr.wrote = code, true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *StatusRecorder) Write(p []byte) (int, error) {
	sr.wrote = true
	n, err := sr.ResponseWriter.Write(p)
	sr.written += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sr *StatusRecorder) Unwrap() http.ResponseWriter { return sr.ResponseWriter }

func (sr *StatusRecorder) Status() int { return sr.status }

func (sr *StatusRecorder) BytesWritten() int64 { return sr.written }

// RouteOf returns chi's matched pattern, or fallback when nothing matched.
// The pattern is only complete once routing has finished.
func RouteOf(r *http.Request, fallback string) string {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return fallback
	}
	if p := rc.RoutePattern(); p != "" {
		return p
	}
	return fallback
}

// HTTPObs feeds HTTPMetrics, labelled by route pattern.
type HTTPObs struct {
	Metrics *HTTPMetrics
}

func (o HTTPObs) Middleware(next http.Handler) http.Handler {
	m := o.Metrics
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.InFlight.Inc()
		defer m.InFlight.Dec()

		rec := NewStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := RouteOf(r, "unmatched")
		m.Requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.Status())).Inc()
		m.Duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// TracingMiddleware opens a server span through otelhttp, which also
// extracts the caller's trace context and marks 5xx responses as errors.
// Once routing completes the span is renamed "METHOD /route/{pattern}".
func TracingMiddleware(next http.Handler) http.Handler {
	named := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		route := RouteOf(r, r.URL.Path)
		span := trace.SpanFromContext(r.Context())
		span.SetName(r.Method + " " + route)
		span.SetAttributes(semconv.HTTPRoute(route))
		if cashier := strings.TrimSpace(r.Header.Get(CashierHeader)); cashier != "" {
			span.SetAttributes(attribute.String("pos.cashier", cashier))
		}
	})
	return otelhttp.NewHandler(named, "http.server")
}
