package loader

import (
	"context"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"

	"tidb-hierarchy/internal/logging"
	"tidb-hierarchy/internal/relation"
	"tidb-hierarchy/internal/sqlutil"
)

// Nodes loads the nodes with the given keys, ordered by key. Unknown keys are
// skipped.
func (l *Loader) Nodes(ctx context.Context, def relation.Definition, keys []interface{}) ([]relation.Record, error) {
	ctx, span := startSpan(ctx, "hierarchy.nodes",
		attribute.String("db.table", def.Table),
		attribute.Int("hierarchy.keys", len(keys)),
	)
	records, err := l.nodes(ctx, def, keys)
	finishSpan(span, err)
	if err != nil {
		l.recordError(ctx, err)
		return nil, err
	}
	return records, nil
}

func (l *Loader) nodes(ctx context.Context, def relation.Definition, keys []interface{}) ([]relation.Record, error) {
	if len(keys) == 0 {
		return []relation.Record{}, nil
	}
	stmt, err := l.ExplainNodes(def, keys)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Debug("executing node lookup",
		slog.String("table", def.Table),
		slog.String("sql", stmt.SQL),
	)
	rows, err := l.executor.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("node lookup failed: %w", normalizeQueryError(err))
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

// ExplainNodes renders the Nodes statement without running it.
func (l *Loader) ExplainNodes(def relation.Definition, keys []interface{}) (Statement, error) {
	if err := def.Validate(); err != nil {
		return Statement{}, err
	}
	if len(keys) == 0 {
		return Statement{}, fmt.Errorf("%w: no keys", relation.ErrInvalidOriginKey)
	}

	keyColumn := sqlutil.Qualify(l.dialect, def.Table, def.KeyColumn)
	query, args, err := sq.Select(l.projection(def)...).
		From(l.dialect.QuoteIdentifier(def.Table)).
		Where(sq.Eq{keyColumn: keys}).
		OrderBy(keyColumn + " ASC").
		PlaceholderFormat(l.dialect.PlaceholderFormat()).
		ToSql()
	if err != nil {
		return Statement{}, fmt.Errorf("failed to build node lookup: %w", err)
	}
	return Statement{SQL: query, Args: args}, nil
}

// projection lists the selected node columns, qualified by table.
func (l *Loader) projection(def relation.Definition) []string {
	if len(def.Columns) == 0 {
		return []string{l.dialect.QuoteIdentifier(def.Table) + ".*"}
	}
	columns := make([]string, len(def.Columns))
	for i, col := range def.Columns {
		columns[i] = sqlutil.Qualify(l.dialect, def.Table, col)
	}
	return columns
}
