package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"tidb-hierarchy/internal/observability"
)

// GraphQLMetricsMiddleware records request metrics and makes metrics available
// to the traversal loader through the request context.
func GraphQLMetricsMiddleware(metrics *observability.TraversalMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// GraphiQL page loads are not GraphQL requests.
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ctx := observability.ContextWithTraversalMetrics(r.Context(), metrics)
			r = r.WithContext(ctx)

			metrics.IncrementActiveRequests(ctx)
			defer metrics.DecrementActiveRequests(ctx)

			start := time.Now()
			operationType := "unknown"
			if info, ok := RequestInfoFromContext(ctx); ok && info.OperationType != "" {
				operationType = info.OperationType
			}

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				capture:        true,
			}
			next.ServeHTTP(wrapped, r)

			hasErrors := wrapped.statusCode >= 400 || responseHasGraphQLErrors(wrapped.body)
			metrics.RecordRequest(ctx, time.Since(start), hasErrors, operationType)
		})
	}
}

func responseHasGraphQLErrors(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}

	var payload struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return false
	}
	return len(payload.Errors) > 0
}
