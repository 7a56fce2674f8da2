package relation

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"tidb-hierarchy/internal/recursive"
	"tidb-hierarchy/internal/sqlutil"
)

// ExistenceQuery is a correlated "has at least one ancestor" subquery.
type ExistenceQuery struct {
	query   *recursive.Query
	dialect sqlutil.Dialect
	table   string
	// Ref is the identifier ancestor columns must be qualified with.
	Ref string
}

// Where filters the ancestors by column = value.
func (e *ExistenceQuery) Where(column string, value interface{}) *ExistenceQuery {
	e.query.Where(sq.Eq{sqlutil.Qualify(e.dialect, e.Ref, column): value})
	return e
}

// WhereExpr filters the ancestors by a raw expression. References to the
// related table are rewritten to the subquery's alias.
func (e *ExistenceQuery) WhereExpr(expr string, args ...interface{}) *ExistenceQuery {
	e.query.Where(sq.Expr(recursive.ReplaceTableReference(e.dialect, expr, e.table, e.Ref), args...))
	return e
}

// Query returns the underlying recursive query.
func (e *ExistenceQuery) Query() *recursive.Query {
	return e.query
}

// ToSql renders the subquery with '?' placeholders so it can be embedded.
func (e *ExistenceQuery) ToSql() (string, []interface{}, error) {
	return e.query.ToSql()
}

// RelationExistenceQuery builds the correlated subquery against parentTable.
// When parentTable is the related table itself the self-relation form is used.
func (a *Ancestors) RelationExistenceQuery(parentTable string, scope *AliasScope, columns ...string) (*ExistenceQuery, error) {
	if parentTable == "" {
		parentTable = a.def.OriginTable()
	}
	if parentTable == a.def.Table {
		return a.RelationExistenceQueryForSelfRelation(scope, columns...)
	}

	src := a.def.Source()
	first := a.anchorColumn(src)
	second := sqlutil.Qualify(a.dialect, parentTable, a.def.ParentKey())
	constraint := func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(fmt.Sprintf("%s = %s", first, second))
	}

	query := recursive.NewQuery(a.embedDialect(), a.naming, src)
	a.addExpression(constraint, query, nil, selectColumns(columns), recursive.UnionAll).Unordered()

	return &ExistenceQuery{query: query, dialect: a.embedDialect(), table: a.def.Table, Ref: src.Reference()}, nil
}

// RelationExistenceQueryForSelfRelation builds the correlated subquery when the
// outer query reads the same table. The related table is aliased so inner and
// outer references stay distinct. A nil scope draws from the relation's own
// scope, so repeated calls on one relation never reuse an alias.
func (a *Ancestors) RelationExistenceQueryForSelfRelation(scope *AliasScope, columns ...string) (*ExistenceQuery, error) {
	if scope == nil {
		scope = a.aliases
	}
	alias, err := scope.Next()
	if err != nil {
		return nil, err
	}

	rewritten := make([]string, len(columns))
	for i, col := range columns {
		rewritten[i] = recursive.ReplaceTableReference(a.dialect, col, a.def.Table, alias)
	}

	from := a.def.aliased(alias)
	first := a.anchorColumn(from)
	second := sqlutil.Qualify(a.dialect, a.def.Table, a.def.KeyColumn)
	constraint := func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(fmt.Sprintf("%s = %s", first, second))
	}

	query := recursive.NewQuery(a.embedDialect(), a.naming, a.def.Source())
	a.addExpression(constraint, query, &from, selectColumns(rewritten), recursive.UnionAll).Unordered()

	return &ExistenceQuery{query: query, dialect: a.embedDialect(), table: a.def.Table, Ref: alias}, nil
}

// WhereHasAncestor adds "EXISTS (existence)" to outer.
func WhereHasAncestor(outer sq.SelectBuilder, existence *ExistenceQuery) (sq.SelectBuilder, error) {
	sql, args, err := existence.ToSql()
	if err != nil {
		return outer, err
	}
	return outer.Where(sq.Expr("EXISTS ("+sql+")", args...)), nil
}

// embedDialect renders with '?' placeholders; the outer statement converts them.
func (a *Ancestors) embedDialect() sqlutil.Dialect {
	return questionDialect{a.dialect}
}

type questionDialect struct {
	sqlutil.Dialect
}

func (questionDialect) PlaceholderFormat() sq.PlaceholderFormat {
	return sq.Question
}

func selectColumns(columns []string) []string {
	if len(columns) == 0 {
		return []string{"*"}
	}
	return columns
}
