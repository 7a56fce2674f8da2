package middleware

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"tidb-hierarchy/internal/loader"
	"tidb-hierarchy/internal/logging"
	"tidb-hierarchy/internal/observability"
)

// GraphQLTracingMiddleware wraps GraphQL execution in a span and gives the
// request its own batch state, so sibling nodes share one ancestors query.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := RequestInfoFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			tracer := otel.Tracer("tidb-hierarchy/graphql")
			ctx, span := tracer.Start(r.Context(), "graphql.execute")
			defer span.End()
			if spanCtx := span.SpanContext(); spanCtx.IsValid() {
				reqLogger := logging.FromContext(ctx).WithFields(
					slog.String("trace_id", spanCtx.TraceID().String()),
					slog.String("span_id", spanCtx.SpanID().String()),
				)
				ctx = logging.WithLogger(ctx, reqLogger)
			}
			if span.IsRecording() {
				span.SetAttributes(observability.GraphQLSpanAttributes(info)...)
			}

			ctx = loader.NewBatchingContext(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))

			state, ok := loader.GetBatchState(ctx)
			if !ok || !span.IsRecording() {
				return
			}
			hits := state.GetCacheHits()
			misses := state.GetCacheMisses()
			span.SetAttributes(
				attribute.Int("hierarchy.batch.cache_hits", int(hits)),
				attribute.Int("hierarchy.batch.cache_misses", int(misses)),
			)
			if total := hits + misses; total > 0 {
				span.SetAttributes(attribute.Float64("hierarchy.batch.cache_hit_ratio", float64(hits)/float64(total)))
			}
		})
	}
}
