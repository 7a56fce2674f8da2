package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// TraversalMetrics holds metrics for hierarchy traversals and the GraphQL requests that drive them.
type TraversalMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	queryDuration   metric.Float64Histogram
	queryCounter    metric.Int64Counter
	errorCounter    metric.Int64Counter
	batchOrigins    metric.Int64Histogram
	resultRows      metric.Int64Histogram
	dictionaryKeys  metric.Int64Histogram
	batchCacheHits  metric.Int64Counter
	batchCacheMiss  metric.Int64Counter
	batchChunks     metric.Int64Counter
}

// InitTraversalMetrics creates the traversal instruments on the global meter provider.
func InitTraversalMetrics() (*TraversalMetrics, error) {
	meter := otel.Meter("tidb-hierarchy")

	requestDuration, err := meter.Float64Histogram(
		"graphql.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"graphql.requests.total",
		metric.WithDescription("Total number of GraphQL requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"graphql.requests.active",
		metric.WithDescription("Number of active GraphQL requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	queryDuration, err := meter.Float64Histogram(
		"hierarchy.query.duration",
		metric.WithDescription("Duration of recursive traversal queries in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query duration histogram: %w", err)
	}

	queryCounter, err := meter.Int64Counter(
		"hierarchy.queries.total",
		metric.WithDescription("Total number of recursive traversal queries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"hierarchy.errors.total",
		metric.WithDescription("Total number of traversal errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	batchOrigins, err := meter.Int64Histogram(
		"hierarchy.batch.origin_count",
		metric.WithDescription("Number of origins included in a batched traversal"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch origin histogram: %w", err)
	}

	resultRows, err := meter.Int64Histogram(
		"hierarchy.result_rows",
		metric.WithDescription("Number of rows returned by a traversal query"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create result rows histogram: %w", err)
	}

	dictionaryKeys, err := meter.Int64Histogram(
		"hierarchy.dictionary.keys",
		metric.WithDescription("Number of origin keys in a batched result dictionary"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dictionary keys histogram: %w", err)
	}

	batchCacheHits, err := meter.Int64Counter(
		"hierarchy.batch.cache_hits",
		metric.WithDescription("Number of batch cache hits"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch cache hits counter: %w", err)
	}

	batchCacheMiss, err := meter.Int64Counter(
		"hierarchy.batch.cache_misses",
		metric.WithDescription("Number of batch cache misses"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch cache misses counter: %w", err)
	}

	batchChunks, err := meter.Int64Counter(
		"hierarchy.batch.chunks",
		metric.WithDescription("Number of chunked queries issued for oversized batches"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch chunks counter: %w", err)
	}

	return &TraversalMetrics{
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		activeRequests:  activeRequests,
		queryDuration:   queryDuration,
		queryCounter:    queryCounter,
		errorCounter:    errorCounter,
		batchOrigins:    batchOrigins,
		resultRows:      resultRows,
		dictionaryKeys:  dictionaryKeys,
		batchCacheHits:  batchCacheHits,
		batchCacheMiss:  batchCacheMiss,
		batchChunks:     batchChunks,
	}, nil
}

// RecordRequest records a GraphQL request with its duration and outcome.
func (m *TraversalMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType string) {
	if m == nil {
		return
	}
	if operationType == "" {
		operationType = "unknown"
	}
	attrs := metric.WithAttributes(
		attribute.String("operation_type", operationType),
		attribute.Bool("has_errors", hasErrors),
	)
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.requestCounter.Add(ctx, 1, attrs)
}

// IncrementActiveRequests increments the active requests counter.
func (m *TraversalMetrics) IncrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active requests counter.
func (m *TraversalMetrics) DecrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, -1)
}

// RecordQuery records one traversal query. mode is "single" or "eager".
func (m *TraversalMetrics) RecordQuery(ctx context.Context, duration time.Duration, mode string, rows int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	m.queryDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.queryCounter.Add(ctx, 1, attrs)
	m.resultRows.Record(ctx, int64(rows), attrs)
}

// RecordError counts a traversal error by kind.
func (m *TraversalMetrics) RecordError(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *TraversalMetrics) RecordBatchOrigins(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.batchOrigins.Record(ctx, int64(count))
}

func (m *TraversalMetrics) RecordDictionaryKeys(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.dictionaryKeys.Record(ctx, int64(count))
}

func (m *TraversalMetrics) RecordBatchCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.batchCacheHits.Add(ctx, 1)
}

func (m *TraversalMetrics) RecordBatchCacheMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.batchCacheMiss.Add(ctx, 1)
}

func (m *TraversalMetrics) RecordBatchChunks(ctx context.Context, chunks int) {
	if m == nil || chunks <= 1 {
		return
	}
	m.batchChunks.Add(ctx, int64(chunks))
}

// InitMetrics initializes the custom metrics and logs the outcome.
func InitMetrics(logger *slog.Logger) (*TraversalMetrics, error) {
	metrics, err := InitTraversalMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize traversal metrics: %w", err)
	}

	logger.Info("custom traversal metrics initialized")
	return metrics, nil
}

type traversalMetricsContextKey struct{}

// ContextWithTraversalMetrics stores traversal metrics in the provided context.
func ContextWithTraversalMetrics(ctx context.Context, metrics *TraversalMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traversalMetricsContextKey{}, metrics)
}

// TraversalMetricsFromContext retrieves traversal metrics from the context.
func TraversalMetricsFromContext(ctx context.Context) *TraversalMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(traversalMetricsContextKey{}).(*TraversalMetrics)
	return metrics
}
