package obs_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/noah-isme/backend-pos/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("pos", []float64{1, 0.1}, registry)

	router := chi.NewRouter()
	router.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	router.Get("/api/orders/search/{number}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/orders/search/POS-1", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rr.Code)
	}

	total := testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodGet, "/api/orders/search/{number}", "204"))
	if total != 1 {
		t.Fatalf("expected counter to be 1, got %v", total)
	}
	if samples := testutil.CollectAndCount(metrics.Duration); samples == 0 {
		t.Fatalf("expected histogram sample")
	}
	if val := testutil.ToFloat64(metrics.InFlight); val != 0 {
		t.Fatalf("expected no in-flight requests, got %v", val)
	}
}

func TestHTTPMetricsReuseRegistered(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("pos", nil, registry)
	second := obs.NewHTTPMetrics("pos", nil, registry)
	require.Same(t, first.Requests, second.Requests)
}

func TestRequestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.NewLoggerTo(&buf, "json")

	router := chi.NewRouter()
	router.Use(obs.RequestLogger{Logger: logger}.Middleware)
	router.Get("/api/carts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/carts/abc", nil)
	req.Header.Set(obs.CashierHeader, "Asha")
	router.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "/api/carts/{id}", entry["route"])
	require.Equal(t, "Asha", entry["cashier"])
	require.EqualValues(t, 404, entry["status"])
}

func TestTracingMiddlewareNamesSpanByRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	router := chi.NewRouter()
	router.Use(obs.TracingMiddleware)
	router.Post("/api/checkout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/checkout", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "POST /api/checkout", spans[0].Name())
	require.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestPGXTracer(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tracer := obs.PGXTracer{}
	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "select id from orders where order_number = $1"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: pgx.ErrNoRows})

	ctx = tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "UPDATE orders SET synced = TRUE"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("UPDATE 0"), Err: errors.New("deadlock")})

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "pgx SELECT", spans[0].Name())
	require.Equal(t, codes.Unset, spans[0].Status().Code)
	require.Equal(t, "pgx UPDATE", spans[1].Name())
	require.Equal(t, codes.Error, spans[1].Status().Code)

	var table string
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "db.collection.name" {
			table = kv.Value.AsString()
		}
	}
	require.Equal(t, "orders", table)
}

func TestRequestLoggerScopesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.NewLoggerTo(&buf, "json")

	router := chi.NewRouter()
	router.Use(obs.RequestLogger{Logger: logger}.Middleware)
	router.Post("/api/checkout", func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("placing order")
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
	req.Header.Set(obs.CashierHeader, "Ravi")
	router.ServeHTTP(httptest.NewRecorder(), req)

	dec := json.NewDecoder(&buf)
	var inner, access map[string]any
	require.NoError(t, dec.Decode(&inner))
	require.NoError(t, dec.Decode(&access))
	require.Equal(t, "placing order", inner["message"])
	require.Equal(t, "Ravi", inner["cashier"])
	require.Equal(t, "http_request", access["message"])
	require.EqualValues(t, 201, access["status"])
}

func TestInitTracerExporters(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{Exporter: "none", Environment: "test"})
	require.NoError(t, err)
	_, span := otel.Tracer("test").Start(context.Background(), "probe")
	require.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, shutdown(context.Background()))

	_, err = obs.InitTracer(context.Background(), obs.TracingConfig{Exporter: "zipkin"})
	require.Error(t, err)
}
