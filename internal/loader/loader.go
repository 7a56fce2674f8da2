// Package loader executes ancestors relations against a database. It renders
// single-origin and batched traversals, scans the results into traversal rows,
// and hands every origin its own ancestors.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"

	"tidb-hierarchy/internal/dbexec"
	"tidb-hierarchy/internal/logging"
	"tidb-hierarchy/internal/observability"
	"tidb-hierarchy/internal/recursive"
	"tidb-hierarchy/internal/relation"
	"tidb-hierarchy/internal/sqlutil"
)

// DefaultMaxBatchSize bounds the number of origins bound into one batched query.
const DefaultMaxBatchSize = 1000

// Options configures a Loader.
type Options struct {
	Dialect      sqlutil.Dialect
	MaxBatchSize int
	Metrics      *observability.TraversalMetrics
}

// Loader runs ancestors traversals through a QueryExecutor.
type Loader struct {
	executor     dbexec.QueryExecutor
	dialect      sqlutil.Dialect
	maxBatchSize int
	metrics      *observability.TraversalMetrics
}

// Statement is a rendered query and its arguments.
type Statement struct {
	SQL  string        `json:"sql" yaml:"sql"`
	Args []interface{} `json:"args" yaml:"args"`
}

// AncestorFilter selects nodes having at least one ancestor with Column = Value.
// An empty Column matches nodes having any ancestor.
type AncestorFilter struct {
	Column string
	Value  interface{}
}

// New creates a loader.
func New(executor dbexec.QueryExecutor, opts Options) *Loader {
	if opts.Dialect == nil {
		opts.Dialect = sqlutil.MySQL
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = DefaultMaxBatchSize
	}
	return &Loader{
		executor:     executor,
		dialect:      opts.Dialect,
		maxBatchSize: opts.MaxBatchSize,
		metrics:      opts.Metrics,
	}
}

// Dialect returns the SQL dialect queries are rendered in.
func (l *Loader) Dialect() sqlutil.Dialect {
	return l.dialect
}

// Ancestors loads the ancestors of a single origin, nearest first.
func (l *Loader) Ancestors(ctx context.Context, def relation.Definition, origin relation.Record) ([]recursive.Row, error) {
	ctx, span := startSpan(ctx, "hierarchy.ancestors",
		attribute.String("db.table", def.Table),
		attribute.String("hierarchy.mode", def.Mode().String()),
	)
	rows, err := l.ancestors(ctx, def, origin)
	if err == nil {
		span.SetAttributes(attribute.Int("hierarchy.rows", len(rows)))
	}
	finishSpan(span, err)
	if err != nil {
		l.recordError(ctx, err)
		return nil, err
	}
	return rows, nil
}

func (l *Loader) ancestors(ctx context.Context, def relation.Definition, origin relation.Record) ([]recursive.Row, error) {
	rel, err := relation.NewAncestors(def, l.dialect)
	if err != nil {
		return nil, err
	}
	if err := rel.AddConstraints(origin); err != nil {
		return nil, err
	}
	query, args, err := rel.ToSql()
	if err != nil {
		return nil, err
	}
	return l.query(ctx, "single", query, args, rel.Naming())
}

// EagerAncestors loads the ancestors of every origin with one query per chunk
// of at most MaxBatchSize distinct origins. Results follow the order of origins.
func (l *Loader) EagerAncestors(ctx context.Context, def relation.Definition, origins []relation.Record) ([]relation.Result, error) {
	ctx, span := startSpan(ctx, "hierarchy.ancestors.eager",
		attribute.String("db.table", def.Table),
		attribute.String("hierarchy.mode", def.Mode().String()),
		attribute.Int("hierarchy.origins", len(origins)),
	)
	results, err := l.eagerAncestors(ctx, def, origins)
	finishSpan(span, err)
	if err != nil {
		l.recordError(ctx, err)
		return nil, err
	}
	return results, nil
}

func (l *Loader) eagerAncestors(ctx context.Context, def relation.Definition, origins []relation.Record) ([]relation.Result, error) {
	rel, err := relation.NewAncestors(def, l.dialect)
	if err != nil {
		return nil, err
	}
	if len(origins) == 0 {
		return []relation.Result{}, nil
	}
	dictionary, err := l.eagerDictionary(ctx, def, origins)
	if err != nil {
		return nil, err
	}
	return rel.Match(origins, dictionary), nil
}

// eagerDictionary runs the batched queries and merges their dictionaries.
func (l *Loader) eagerDictionary(ctx context.Context, def relation.Definition, origins []relation.Record) (map[string][]recursive.Row, error) {
	unique := uniqueOrigins(origins, def.KeyColumn)
	chunks := chunkOrigins(unique, l.maxBatchSize)

	metrics := l.metricsFor(ctx)
	metrics.RecordBatchOrigins(ctx, len(unique))
	metrics.RecordBatchChunks(ctx, len(chunks))

	merged := make(map[string][]recursive.Row)
	for _, chunk := range chunks {
		rel, err := relation.NewAncestors(def, l.dialect)
		if err != nil {
			return nil, err
		}
		if err := rel.AddEagerConstraints(chunk); err != nil {
			return nil, err
		}
		query, args, err := rel.ToSql()
		if err != nil {
			return nil, err
		}
		rows, err := l.query(ctx, "eager", query, args, rel.Naming())
		if err != nil {
			return nil, err
		}
		dictionary, err := rel.BuildDictionary(rows)
		if err != nil {
			return nil, err
		}
		mergeDictionaries(merged, dictionary)
	}

	metrics.RecordDictionaryKeys(ctx, len(merged))
	return merged, nil
}

// NodesWithAncestor lists nodes of the relation's table that have at least one
// ancestor matching filter, ordered by key.
func (l *Loader) NodesWithAncestor(ctx context.Context, def relation.Definition, filter AncestorFilter) ([]relation.Record, error) {
	ctx, span := startSpan(ctx, "hierarchy.nodes_with_ancestor",
		attribute.String("db.table", def.Table),
		attribute.String("hierarchy.filter.column", filter.Column),
	)
	records, err := l.nodesWithAncestor(ctx, def, filter)
	finishSpan(span, err)
	if err != nil {
		l.recordError(ctx, err)
		return nil, err
	}
	return records, nil
}

func (l *Loader) nodesWithAncestor(ctx context.Context, def relation.Definition, filter AncestorFilter) ([]relation.Record, error) {
	stmt, err := l.ExplainNodesWithAncestor(def, filter)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Debug("executing ancestor existence query",
		slog.String("table", def.Table),
		slog.String("sql", stmt.SQL),
	)
	rows, err := l.executor.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("ancestor existence query failed: %w", normalizeQueryError(err))
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan nodes: %w", err)
	}
	if records == nil {
		records = []relation.Record{}
	}
	return records, nil
}

// ExplainNodesWithAncestor renders the NodesWithAncestor statement without running it.
func (l *Loader) ExplainNodesWithAncestor(def relation.Definition, filter AncestorFilter) (Statement, error) {
	if filter.Column != "" && len(def.Columns) > 0 && !contains(def.Columns, filter.Column) {
		return Statement{}, fmt.Errorf("%w: filter column %q is not projected", relation.ErrInvalidDefinition, filter.Column)
	}

	rel, err := relation.NewAncestors(def, l.dialect)
	if err != nil {
		return Statement{}, err
	}
	existence, err := rel.RelationExistenceQueryForSelfRelation(nil, "1")
	if err != nil {
		return Statement{}, err
	}
	if filter.Column != "" {
		existence.Where(filter.Column, filter.Value)
	}

	table := l.dialect.QuoteIdentifier(def.Table)
	outer := sq.Select(table + ".*").
		From(table).
		OrderBy(sqlutil.Qualify(l.dialect, def.Table, def.KeyColumn) + " ASC")
	outer, err = relation.WhereHasAncestor(outer, existence)
	if err != nil {
		return Statement{}, fmt.Errorf("failed to build existence query: %w", err)
	}

	query, args, err := outer.PlaceholderFormat(l.dialect.PlaceholderFormat()).ToSql()
	if err != nil {
		return Statement{}, fmt.Errorf("failed to build existence query: %w", err)
	}
	return Statement{SQL: query, Args: args}, nil
}

// Explain renders the statements Ancestors (one origin) or EagerAncestors
// (several origins) would run.
func (l *Loader) Explain(def relation.Definition, origins []relation.Record) ([]Statement, error) {
	if len(origins) == 1 {
		rel, err := relation.NewAncestors(def, l.dialect)
		if err != nil {
			return nil, err
		}
		if err := rel.AddConstraints(origins[0]); err != nil {
			return nil, err
		}
		query, args, err := rel.ToSql()
		if err != nil {
			return nil, err
		}
		return []Statement{{SQL: query, Args: args}}, nil
	}

	var statements []Statement
	for _, chunk := range chunkOrigins(uniqueOrigins(origins, def.KeyColumn), l.maxBatchSize) {
		rel, err := relation.NewAncestors(def, l.dialect)
		if err != nil {
			return nil, err
		}
		if err := rel.AddEagerConstraints(chunk); err != nil {
			return nil, err
		}
		query, args, err := rel.ToSql()
		if err != nil {
			return nil, err
		}
		statements = append(statements, Statement{SQL: query, Args: args})
	}
	return statements, nil
}

func (l *Loader) query(ctx context.Context, mode, query string, args []interface{}, naming recursive.Columns) ([]recursive.Row, error) {
	start := time.Now()
	logging.FromContext(ctx).Debug("executing ancestors query",
		slog.String("mode", mode),
		slog.String("sql", query),
		slog.Int("args", len(args)),
	)

	rows, err := l.executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ancestors query failed: %w", normalizeQueryError(err))
	}
	defer rows.Close()

	results, err := scanTraversalRows(rows, naming)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ancestors: %w", err)
	}
	if results == nil {
		results = []recursive.Row{}
	}
	l.metricsFor(ctx).RecordQuery(ctx, time.Since(start), mode, len(results))
	return results, nil
}

func (l *Loader) metricsFor(ctx context.Context) *observability.TraversalMetrics {
	if l.metrics != nil {
		return l.metrics
	}
	return observability.TraversalMetricsFromContext(ctx)
}

func (l *Loader) recordError(ctx context.Context, err error) {
	kind := errorKind(err)
	l.metricsFor(ctx).RecordError(ctx, kind)
	logging.FromContext(ctx).Warn("ancestors traversal failed",
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
}

// uniqueOrigins drops origins whose key was already seen. Origins without a
// usable key are kept so that key validation reports them.
func uniqueOrigins(origins []relation.Record, keyColumn string) []relation.Record {
	seen := make(map[string]struct{}, len(origins))
	out := make([]relation.Record, 0, len(origins))
	for _, origin := range origins {
		key := recursive.KeyString(origin[keyColumn])
		if key != "" {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, origin)
	}
	return out
}

func chunkOrigins(origins []relation.Record, max int) [][]relation.Record {
	if len(origins) == 0 {
		return nil
	}
	if max <= 0 || len(origins) <= max {
		return [][]relation.Record{origins}
	}
	chunks := make([][]relation.Record, 0, (len(origins)+max-1)/max)
	for start := 0; start < len(origins); start += max {
		end := start + max
		if end > len(origins) {
			end = len(origins)
		}
		chunks = append(chunks, origins[start:end])
	}
	return chunks
}

func mergeDictionaries(target, src map[string][]recursive.Row) {
	for key, rows := range src {
		target[key] = append(target[key], rows...)
	}
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
