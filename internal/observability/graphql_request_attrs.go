package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RequestInfo summarises a GraphQL request for spans and logs.
type RequestInfo struct {
	OperationName string
	OperationType string
	DocumentSize  int
	VariableCount int
	// RootFields are the top-level selections, e.g. "node" or "nodesWithAncestor".
	RootFields []string
}

// GraphQLSpanAttributes builds canonical span attributes for a request.
func GraphQLSpanAttributes(info RequestInfo) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 5)
	if info.OperationName != "" {
		attrs = append(attrs, attribute.String("graphql.operation.name", info.OperationName))
	}
	if info.OperationType != "" {
		attrs = append(attrs, attribute.String("graphql.operation.type", info.OperationType))
	}
	if info.DocumentSize > 0 {
		attrs = append(attrs, attribute.Int("graphql.document.size_bytes", info.DocumentSize))
	}
	attrs = append(attrs, attribute.Int("graphql.query.variable_count", info.VariableCount))
	if len(info.RootFields) > 0 {
		attrs = append(attrs, attribute.StringSlice("graphql.query.root_fields", info.RootFields))
	}
	return attrs
}

// GraphQLLogFields builds structured log fields for a request, including the trace id when sampled.
func GraphQLLogFields(ctx context.Context, info RequestInfo) []any {
	fields := make([]any, 0, 4)
	if info.OperationName != "" {
		fields = append(fields, slog.String("operation_name", info.OperationName))
	}
	if info.OperationType != "" {
		fields = append(fields, slog.String("operation_type", info.OperationType))
	}
	if len(info.RootFields) > 0 {
		fields = append(fields, slog.Any("root_fields", info.RootFields))
	}

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		fields = append(fields, slog.String("trace_id", spanCtx.TraceID().String()))
	}
	return fields
}
