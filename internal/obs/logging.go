package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// CashierHeader names the till operator on a request.
const CashierHeader = "X-Cashier"

// NewLogger returns a stdout logger. Unknown levels fall back to info.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return NewLoggerTo(os.Stdout, format)
}

// NewLoggerTo writes JSON to w, or console output for "console" and "text".
func NewLoggerTo(w io.Writer, format string) zerolog.Logger {
	if f := strings.ToLower(strings.TrimSpace(format)); f == "console" || f == "text" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// RequestLogger emits one http_request line per call. Handlers further
// down find a logger carrying the request id via zerolog.Ctx.
type RequestLogger struct {
	Logger zerolog.Logger
}

func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scoped := l.Logger.With().Str("request_id", middleware.GetReqID(r.Context()))
		if cashier := strings.TrimSpace(r.Header.Get(CashierHeader)); cashier != "" {
			scoped = scoped.Str("cashier", cashier)
		}
		reqLog := scoped.Logger()
		r = r.WithContext(reqLog.WithContext(r.Context()))

		rec := NewStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(rec, r)

		status := rec.Status()
		evt := eventFor(&reqLog, status).
			Str("method", r.Method).
			Str("route", RouteOf(r, r.URL.Path)).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Int64("bytes", rec.BytesWritten()).
			Str("remote_addr", r.RemoteAddr)
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		if ua := r.UserAgent(); ua != "" {
			evt = evt.Str("user_agent", ua)
		}
		evt.Msg("http_request")
	})
}

func eventFor(log *zerolog.Logger, status int) *zerolog.Event {
	switch {
	case status >= http.StatusInternalServerError:
		return log.Error()
	case status >= http.StatusBadRequest:
		return log.Warn()
	default:
		return log.Info()
	}
}
