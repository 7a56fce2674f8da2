package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"tidb-hierarchy/internal/loader"
)

func installSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	tp.RegisterSpanProcessor(recorder)

	oldProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(oldProvider)
	})
	return recorder
}

func spanAttr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestGraphQLTracingMiddleware(t *testing.T) {
	recorder := installSpanRecorder(t)

	var batching bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, ok := loader.GetBatchState(r.Context())
		batching = ok
		if ok {
			state.IncrementCacheMiss()
			state.IncrementCacheHit()
			state.IncrementCacheHit()
			state.IncrementCacheHit()
		}
	})
	handler := GraphQLRequestMiddleware()(GraphQLTracingMiddleware()(next))

	postGraphQL(handler, `{"query":"query Lineage { nodes(keys: [\"4\", \"7\"]) { ancestors { key } } }"}`)
	require.True(t, batching)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "graphql.execute", spans[0].Name())

	attrs := spans[0].Attributes()
	name, ok := spanAttr(attrs, "graphql.operation.name")
	require.True(t, ok)
	assert.Equal(t, "Lineage", name.AsString())
	roots, ok := spanAttr(attrs, "graphql.query.root_fields")
	require.True(t, ok)
	assert.Equal(t, []string{"nodes"}, roots.AsStringSlice())
	hits, ok := spanAttr(attrs, "hierarchy.batch.cache_hits")
	require.True(t, ok)
	assert.Equal(t, int64(3), hits.AsInt64())
	ratio, ok := spanAttr(attrs, "hierarchy.batch.cache_hit_ratio")
	require.True(t, ok)
	assert.InDelta(t, 0.75, ratio.AsFloat64(), 1e-9)
}

func TestGraphQLTracingMiddleware_SkipsNonGraphQLRequests(t *testing.T) {
	recorder := installSpanRecorder(t)

	var batching bool
	handler := GraphQLTracingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, batching = loader.GetBatchState(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/graphql", nil))

	assert.False(t, batching)
	assert.Empty(t, recorder.Ended())
}
