package obs

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const maxStatementLen = 300

// PGXTracer is a pgx.QueryTracer that opens a client span per statement,
// named "pgx VERB" with the target table as an attribute when it can be
// read off the SQL.
type PGXTracer struct{}

var _ pgx.QueryTracer = PGXTracer{}

func (PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	verb, table := describeSQL(data.SQL)
	attrs := []attribute.KeyValue{
		semconv.DBSystemPostgreSQL,
		semconv.DBOperationName(verb),
		semconv.DBQueryText(clip(data.SQL)),
	}
	if table != "" {
		attrs = append(attrs, semconv.DBCollectionName(table))
	}
	ctx, _ = otel.Tracer("pos.pgx").Start(ctx, "pgx "+verb,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
	return ctx
}

// TraceQueryEnd closes the span. pgx.ErrNoRows is a lookup miss, not a failure.
func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span := trace.SpanFromContext(ctx)
	defer span.End()
	span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	if data.Err == nil || errors.Is(data.Err, pgx.ErrNoRows) {
		return
	}
	span.RecordError(data.Err)
	span.SetStatus(codes.Error, data.Err.Error())
}

// describeSQL returns the upper-cased verb and, for the common shapes,
// the first table the statement touches.
func describeSQL(sql string) (verb, table string) {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "query", ""
	}
	verb = strings.ToUpper(fields[0])
	var marker string
	switch verb {
	case "SELECT", "DELETE":
		marker = "FROM"
	case "INSERT":
		marker = "INTO"
	case "UPDATE":
		if len(fields) > 1 {
			return verb, strings.Trim(fields[1], `"`)
		}
		return verb, ""
	default:
		return verb, ""
	}
	for i, f := range fields[:len(fields)-1] {
		if strings.EqualFold(f, marker) {
			return verb, strings.Trim(strings.TrimRight(fields[i+1], "(,;"), `"`)
		}
	}
	return verb, ""
}

func clip(sql string) string {
	sql = strings.TrimSpace(sql)
	if len(sql) > maxStatementLen {
		return sql[:maxStatementLen] + "..."
	}
	return sql
}
