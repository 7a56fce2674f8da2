package recursive

import (
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"tidb-hierarchy/internal/sqlutil"
)

// ErrNoExpression is returned when a query is rendered before a relationship
// expression has been registered.
var ErrNoExpression = errors.New("recursive query has no relationship expression")

// Query renders a recursive traversal as a single SQL statement.
//
// A Query is built per relation access and is not safe for concurrent use.
type Query struct {
	dialect sqlutil.Dialect
	columns Columns
	source  Source
	expr    *Expression
	wheres  []sq.Sqlizer
	ordered bool
}

// NewQuery creates a query over source. The relationship expression is added later.
func NewQuery(dialect sqlutil.Dialect, columns Columns, source Source) *Query {
	return &Query{
		dialect: dialect,
		columns: columns.WithDefaults(),
		source:  source,
		ordered: true,
	}
}

// WithRelationshipExpression registers the anchor constraint and recursion shape.
// A later call replaces an earlier one.
func (q *Query) WithRelationshipExpression(
	direction Direction,
	constraint Constraint,
	initialDepth int,
	from *Source,
	selectColumns []string,
	union UnionStrategy,
) *Query {
	q.expr = &Expression{
		Direction:    direction,
		Constraint:   constraint,
		InitialDepth: initialDepth,
		From:         from,
		Select:       selectColumns,
		Union:        union,
		MaxDepth:     q.maxDepth(),
	}
	return q
}

func (q *Query) maxDepth() int {
	if q.expr != nil {
		return q.expr.MaxDepth
	}
	return 0
}

// WithMaxDepth bounds the recursion. It must be called after WithRelationshipExpression.
func (q *Query) WithMaxDepth(depth int) *Query {
	if q.expr != nil && depth > 0 {
		q.expr.MaxDepth = depth
	}
	return q
}

// Where adds a predicate to the outer query. Column references should use the
// node reference, which the outer query binds to the CTE.
func (q *Query) Where(pred sq.Sqlizer) *Query {
	q.wheres = append(q.wheres, pred)
	return q
}

// Unordered drops the default depth/path ordering, as needed inside EXISTS.
func (q *Query) Unordered() *Query {
	q.ordered = false
	return q
}

// Expression returns the registered expression, or nil.
func (q *Query) Expression() *Expression {
	return q.expr
}

// Columns returns the bookkeeping column names.
func (q *Query) Columns() Columns {
	return q.columns
}

// Source returns the effective node source, honouring a From override.
func (q *Query) Source() Source {
	if q.expr != nil && q.expr.From != nil {
		return *q.expr.From
	}
	return q.source
}

// Dialect returns the SQL dialect used for rendering.
func (q *Query) Dialect() sqlutil.Dialect {
	return q.dialect
}

// ToSql renders the statement and its arguments in the dialect's placeholder format.
func (q *Query) ToSql() (string, []interface{}, error) {
	if q.expr == nil {
		return "", nil, ErrNoExpression
	}

	cteSQL, cteArgs, err := q.cteBody()
	if err != nil {
		return "", nil, err
	}

	src := q.Source()
	nodeRef := q.quote(src.Reference())

	selectCols := q.expr.Select
	if len(selectCols) == 0 {
		selectCols = []string{"*"}
	}

	outer := sq.Select(selectCols...).
		From(fmt.Sprintf("%s AS %s", q.quote(q.columns.CTE), nodeRef)).
		Prefix(fmt.Sprintf("WITH RECURSIVE %s AS (%s)", q.quote(q.columns.CTE), cteSQL), cteArgs...)
	for _, pred := range q.wheres {
		outer = outer.Where(pred)
	}
	if q.ordered {
		depthOrder := "DESC"
		if q.expr.Direction == Descending {
			depthOrder = "ASC"
		}
		outer = outer.OrderBy(
			fmt.Sprintf("%s.%s %s", nodeRef, q.quote(q.columns.Depth), depthOrder),
			fmt.Sprintf("%s.%s ASC", nodeRef, q.quote(q.columns.Path)),
			fmt.Sprintf("%s.%s ASC", nodeRef, q.quote(q.columns.Link)),
		)
	}

	return outer.PlaceholderFormat(q.dialect.PlaceholderFormat()).ToSql()
}

// cteBody renders "anchor UNION [ALL] step" with '?' placeholders.
func (q *Query) cteBody() (string, []interface{}, error) {
	anchor := q.anchor()
	if q.expr.Constraint != nil {
		anchor = q.expr.Constraint(anchor)
	}
	anchorSQL, anchorArgs, err := anchor.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build anchor step: %w", err)
	}

	stepSQL, stepArgs, err := q.step().ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build recursive step: %w", err)
	}

	args := append([]interface{}{}, anchorArgs...)
	args = append(args, stepArgs...)
	return anchorSQL + " " + q.expr.Union.keyword() + " " + stepSQL, args, nil
}

func (q *Query) anchor() sq.SelectBuilder {
	src := q.Source()
	nodeKey := sqlutil.Qualify(q.dialect, src.Reference(), src.Key)

	if q.expr.IncludesSelf() {
		cols := append(q.nodeColumns(src),
			q.as(nodeKey, q.columns.Link),
			q.as("0", q.columns.Depth),
			q.as(q.pathSegment(nodeKey), q.columns.Path),
		)
		return sq.Select(cols...).From(q.fromClause(src))
	}

	near, far := q.linkColumns(src)
	cols := append(q.nodeColumns(src),
		q.as(far, q.columns.Link),
		q.as(fmt.Sprintf("%d", q.expr.InitialDepth), q.columns.Depth),
		q.as(q.pathSegment(nodeKey), q.columns.Path),
	)
	return sq.Select(cols...).
		From(q.fromClause(src)).
		Join(fmt.Sprintf("%s ON %s = %s", q.linkFromClause(src), near, nodeKey))
}

func (q *Query) step() sq.SelectBuilder {
	src := q.Source()
	nodeKey := sqlutil.Qualify(q.dialect, src.Reference(), src.Key)
	cte := q.quote(q.columns.CTE)
	cteDepth := cte + "." + q.quote(q.columns.Depth)
	ctePath := cte + "." + q.quote(q.columns.Path)
	cteKey := cte + "." + q.quote(src.Key)

	near, far := q.linkColumns(src)
	sep := sqlutil.QuoteString(q.columns.PathSeparator)

	depthExpr := fmt.Sprintf("%s - 1", cteDepth)
	if q.expr.Direction == Descending {
		depthExpr = fmt.Sprintf("%s + 1", cteDepth)
	}

	cols := append(q.nodeColumns(src),
		q.as(far, q.columns.Link),
		q.as(depthExpr, q.columns.Depth),
		q.as(q.dialect.Concat(ctePath, sep, q.pathSegment(nodeKey)), q.columns.Path),
	)

	builder := sq.Select(cols...).
		From(q.fromClause(src)).
		Join(fmt.Sprintf("%s ON %s = %s", q.linkFromClause(src), near, nodeKey)).
		Join(fmt.Sprintf("%s ON %s = %s", cte, cteKey, far)).
		Where(sq.Expr("NOT (" + q.dialect.PathContains(ctePath, q.pathSegment(nodeKey), q.columns.PathSeparator) + ")"))

	if q.expr.MaxDepth > 0 {
		if q.expr.Direction == Descending {
			builder = builder.Where(sq.Lt{cteDepth: q.expr.MaxDepth})
		} else {
			builder = builder.Where(sq.Gt{cteDepth: -q.expr.MaxDepth})
		}
	}
	return builder
}

// linkColumns returns the link column joined to the current node (near) and the
// link column pointing back towards the origin (far).
func (q *Query) linkColumns(src Source) (near, far string) {
	ref := src.Link.Reference()
	child := sqlutil.Qualify(q.dialect, ref, src.Link.ChildColumn)
	parent := sqlutil.Qualify(q.dialect, ref, src.Link.ParentColumn)
	if q.expr.Direction == Descending {
		return child, parent
	}
	return parent, child
}

func (q *Query) nodeColumns(src Source) []string {
	ref := q.quote(src.Reference())
	if len(src.Columns) == 0 {
		return []string{ref + ".*"}
	}
	cols := make([]string, len(src.Columns))
	for i, col := range src.Columns {
		cols[i] = ref + "." + q.quote(col)
	}
	return cols
}

func (q *Query) fromClause(src Source) string {
	return q.tableWithAlias(src.Table, src.Reference())
}

func (q *Query) linkFromClause(src Source) string {
	return q.tableWithAlias(src.Link.Table, src.Link.Reference())
}

func (q *Query) tableWithAlias(table, ref string) string {
	if ref == "" || ref == table {
		return q.quote(table)
	}
	return fmt.Sprintf("%s AS %s", q.quote(table), q.quote(ref))
}

// pathSegment renders key as text with the separator escaped, so every key
// occupies exactly one path segment.
func (q *Query) pathSegment(key string) string {
	return sqlutil.EscapePathSegment(q.dialect.CastText(key), q.columns.PathSeparator)
}

func (q *Query) as(expr, alias string) string {
	return fmt.Sprintf("%s AS %s", expr, q.quote(alias))
}

func (q *Query) quote(name string) string {
	return q.dialect.QuoteIdentifier(name)
}

// QualifiedColumn returns a quoted "ref.column" reference.
func QualifiedColumn(dialect sqlutil.Dialect, ref, column string) string {
	return sqlutil.Qualify(dialect, ref, column)
}

// ReplaceTableReference rewrites references to table inside expr so they point
// at alias instead. Both bare ("nodes.") and quoted forms are rewritten.
func ReplaceTableReference(dialect sqlutil.Dialect, expr, table, alias string) string {
	if table == "" || table == alias {
		return expr
	}
	expr = strings.ReplaceAll(expr, dialect.QuoteIdentifier(table)+".", dialect.QuoteIdentifier(alias)+".")
	return replaceBareQualifier(expr, table, alias)
}

// replaceBareQualifier rewrites "table." when it is not part of a longer identifier.
func replaceBareQualifier(expr, table, alias string) string {
	needle := table + "."
	var b strings.Builder
	for i := 0; i < len(expr); {
		if strings.HasPrefix(expr[i:], needle) && (i == 0 || !isIdentChar(expr[i-1])) {
			b.WriteString(alias)
			b.WriteByte('.')
			i += len(needle)
			continue
		}
		b.WriteByte(expr[i])
		i++
	}
	return b.String()
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '`' || c == '"' || c == '$' ||
		(c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
