package relation

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"tidb-hierarchy/internal/recursive"
	"tidb-hierarchy/internal/sqlutil"
)

// Ancestors is the relation from a node to every node above it.
//
// An Ancestors value holds the query under construction and is built fresh
// for each relation access. It is not safe for concurrent use.
type Ancestors struct {
	def         Definition
	dialect     sqlutil.Dialect
	mode        Mode
	naming      recursive.Columns
	constraints bool
	query       *recursive.Query
	aliases     *AliasScope
	dictionary  func([]recursive.Row) (map[string][]recursive.Row, error)
}

// Option configures an Ancestors relation.
type Option func(*Ancestors)

// WithoutConstraints makes AddConstraints a no-op, for template queries that
// are constrained later by the caller.
func WithoutConstraints() Option {
	return func(a *Ancestors) {
		a.constraints = false
	}
}

// NewAncestors creates the relation for def.
func NewAncestors(def Definition, dialect sqlutil.Dialect, opts ...Option) (*Ancestors, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if dialect == nil {
		dialect = sqlutil.MySQL
	}
	a := &Ancestors{
		def:         def,
		dialect:     dialect,
		mode:        def.Mode(),
		naming:      def.Naming.WithDefaults(),
		constraints: true,
		aliases:     NewAliasScope(def.Table, def.OriginTable(), def.EdgeTable, DefaultLinkAlias),
	}
	a.query = recursive.NewQuery(dialect, a.naming, def.Source())
	switch a.mode {
	case IncludeSelf:
		a.dictionary = includeSelfDictionary
	default:
		a.dictionary = excludeSelfDictionary(def.KeyColumn)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Mode reports whether the origin is included.
func (a *Ancestors) Mode() Mode {
	return a.mode
}

// Definition returns the relation definition.
func (a *Ancestors) Definition() Definition {
	return a.def
}

// Query returns the relation query.
func (a *Ancestors) Query() *recursive.Query {
	return a.query
}

// Naming returns the traversal column names.
func (a *Ancestors) Naming() recursive.Columns {
	return a.naming
}

// anchorColumn is the column compared with origin keys: the node key when the
// origin is included, otherwise the link column pointing at the origin.
func (a *Ancestors) anchorColumn(src recursive.Source) string {
	if a.mode == IncludeSelf {
		return sqlutil.Qualify(a.dialect, src.Reference(), src.Key)
	}
	return sqlutil.Qualify(a.dialect, src.Link.Reference(), src.Link.ChildColumn)
}

// AddConstraints restricts the relation to a single origin.
func (a *Ancestors) AddConstraints(origin Record) error {
	if !a.constraints {
		return nil
	}
	key, _, err := originKey(origin, a.def.KeyColumn)
	if err != nil {
		return err
	}
	column := a.anchorColumn(a.def.Source())
	constraint := func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(sq.Eq{column: key})
	}
	a.addExpression(constraint, a.query, nil, nil, recursive.UnionAll)
	return nil
}

// AddEagerConstraints restricts the relation to a batch of origins.
func (a *Ancestors) AddEagerConstraints(origins []Record) error {
	keys, err := originKeys(origins, a.def.KeyColumn)
	if err != nil {
		return err
	}
	column := a.anchorColumn(a.def.Source())
	constraint := func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(sq.Eq{column: keys})
	}
	a.addExpression(constraint, a.query, nil, nil, a.mode.EagerUnion())
	return nil
}

func (a *Ancestors) addExpression(
	constraint recursive.Constraint,
	query *recursive.Query,
	from *recursive.Source,
	columns []string,
	union recursive.UnionStrategy,
) *recursive.Query {
	if query == nil {
		query = a.query
	}
	return query.
		WithRelationshipExpression(recursive.Ascending, constraint, a.mode.InitialDepth(), from, columns, union).
		WithMaxDepth(a.def.MaxDepth)
}

// ToSql renders the relation query.
func (a *Ancestors) ToSql() (string, []interface{}, error) {
	sql, args, err := a.query.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build ancestors query for %s: %w", a.def.Table, err)
	}
	return sql, args, nil
}
