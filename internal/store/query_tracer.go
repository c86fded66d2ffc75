package store

import (
	"context"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
)

const maxTracedQueryLen = 512

type tracedSpanKey struct{}

// queryTracer records each pgx query as a child span when the caller is
// already inside a Sentry transaction.
type queryTracer struct{}

func newQueryTracer() *queryTracer {
	return &queryTracer{}
}

func (queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if sentry.SpanFromContext(ctx) == nil {
		return ctx
	}

	statement := compactSQL(data.SQL)
	span := sentry.StartSpan(ctx, "db.query",
		sentry.WithDescription(statement),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	span.SetData("db.system", "postgresql")
	span.SetData("db.collection.name", "orders")
	verb, _, _ := strings.Cut(statement, " ")
	span.SetData("db.operation", strings.ToUpper(verb))
	span.SetData("db.args", len(data.Args))

	return context.WithValue(span.Context(), tracedSpanKey{}, span)
}

func (queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, ok := ctx.Value(tracedSpanKey{}).(*sentry.Span)
	if !ok || span == nil {
		return
	}
	defer span.Finish()

	if data.Err != nil {
		span.Status = sentry.SpanStatusInternalError
		span.SetData("db.error", data.Err.Error())
		return
	}
	span.Status = sentry.SpanStatusOK
	span.SetData("db.rows_affected", data.CommandTag.RowsAffected())
}

// compactSQL collapses whitespace so multi-line statements read as one line.
func compactSQL(query string) string {
	compact := strings.Join(strings.Fields(query), " ")
	if compact == "" {
		return "sql.query"
	}
	if len(compact) > maxTracedQueryLen {
		return compact[:maxTracedQueryLen]
	}
	return compact
}
