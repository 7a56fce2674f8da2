// Package relation implements the ancestors relation of a self-referencing
// hierarchy: anchor constraints for single and batched origins, correlated
// existence subqueries, and regrouping of batched results per origin.
package relation

import (
	"fmt"
	"strings"

	"tidb-hierarchy/internal/recursive"
	"tidb-hierarchy/internal/sqlutil"
)

// DefaultLinkAlias is the alias given to the node table when it doubles as its own link source.
const DefaultLinkAlias = "__link"

// Record is a hydrated row keyed by column name.
type Record = map[string]interface{}

// Mode selects whether the origin itself is part of the relation.
type Mode int

const (
	// ExcludeSelf starts at the immediate parent (depth -1).
	ExcludeSelf Mode = iota
	// IncludeSelf starts at the origin itself (depth 0).
	IncludeSelf
)

func (m Mode) String() string {
	if m == IncludeSelf {
		return "include_self"
	}
	return "exclude_self"
}

// InitialDepth is the depth assigned to anchor rows.
func (m Mode) InitialDepth() int {
	if m == IncludeSelf {
		return 0
	}
	return -1
}

// EagerUnion is the union strategy for batched queries. Excluding self, several
// origins can converge on one ancestor, so identical rows are collapsed.
func (m Mode) EagerUnion() recursive.UnionStrategy {
	if m == IncludeSelf {
		return recursive.UnionAll
	}
	return recursive.UnionDistinct
}

// Definition describes an ancestors relation. It is fixed when the relation is defined.
type Definition struct {
	Table        string
	KeyColumn    string
	ParentColumn string

	// EdgeTable switches the link source from the node table's parent pointer to
	// a separate table of (child, parent) rows.
	EdgeTable        string
	EdgeChildColumn  string
	EdgeParentColumn string

	// ParentTable is the table origins are read from; defaults to Table.
	ParentTable string
	// ParentKeyColumn is the key of ParentTable that correlates with the
	// node key; defaults to KeyColumn.
	ParentKeyColumn string

	AndSelf  bool
	MaxDepth int
	// Columns restricts the node projection; empty selects every column.
	Columns []string
	Naming  recursive.Columns
}

// Mode returns the traversal mode selected by AndSelf.
func (d Definition) Mode() Mode {
	if d.AndSelf {
		return IncludeSelf
	}
	return ExcludeSelf
}

// OriginTable returns the table origins belong to.
func (d Definition) OriginTable() string {
	if d.ParentTable != "" {
		return d.ParentTable
	}
	return d.Table
}

// ParentKey returns the ParentTable column correlated with node keys.
func (d Definition) ParentKey() string {
	if d.ParentKeyColumn != "" {
		return d.ParentKeyColumn
	}
	return d.KeyColumn
}

// Validate reports missing or inconsistent settings.
func (d Definition) Validate() error {
	var problems []string
	if strings.TrimSpace(d.Table) == "" {
		problems = append(problems, "table is required")
	}
	if strings.TrimSpace(d.KeyColumn) == "" {
		problems = append(problems, "key column is required")
	}
	if d.EdgeTable == "" {
		if strings.TrimSpace(d.ParentColumn) == "" {
			problems = append(problems, "parent column is required without an edge table")
		}
	} else if d.EdgeChildColumn == "" || d.EdgeParentColumn == "" {
		problems = append(problems, "edge table requires child and parent columns")
	}
	if d.MaxDepth < 0 {
		problems = append(problems, "max depth must be non-negative")
	}
	if len(d.Columns) > 0 && !containsString(d.Columns, d.KeyColumn) {
		problems = append(problems, fmt.Sprintf("columns must include key column %q", d.KeyColumn))
	}
	naming := d.Naming.WithDefaults()
	if strings.Contains(naming.PathSeparator, sqlutil.PathEscape) {
		problems = append(problems, fmt.Sprintf("path separator must not contain %q", sqlutil.PathEscape))
	}
	for _, col := range d.Columns {
		if col == naming.Depth || col == naming.Path || col == naming.Link {
			problems = append(problems, fmt.Sprintf("column %q collides with a traversal column", col))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(problems, "; "))
	}
	return nil
}

// Source returns the recursive source for this definition.
func (d Definition) Source() recursive.Source {
	src := recursive.Source{
		Table:   d.Table,
		Key:     d.KeyColumn,
		Columns: d.Columns,
	}
	if d.EdgeTable != "" {
		src.Link = recursive.Link{
			Table:        d.EdgeTable,
			ChildColumn:  d.EdgeChildColumn,
			ParentColumn: d.EdgeParentColumn,
		}
	} else {
		src.Link = recursive.Link{
			Table:        d.Table,
			Ref:          DefaultLinkAlias,
			ChildColumn:  d.KeyColumn,
			ParentColumn: d.ParentColumn,
		}
	}
	return src
}

// aliased returns the source with the node table and link source renamed for a self-join.
func (d Definition) aliased(alias string) recursive.Source {
	src := d.Source()
	src.Ref = alias
	src.Link.Ref = alias + "_link"
	return src
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
