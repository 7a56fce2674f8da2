// Package recursive composes recursive common table expressions over a
// hierarchical table: an anchor step, a recursive step joined through a link
// source, and the depth and path bookkeeping that both steps share.
package recursive

// Default names for the bookkeeping columns added to every traversal row.
const (
	DefaultDepthColumn   = "depth"
	DefaultPathColumn    = "path"
	DefaultPathSeparator = "."
	DefaultLinkColumn    = "link_key"
	DefaultCTEName       = "__hierarchy"
)

// Columns names the bookkeeping columns of a traversal.
type Columns struct {
	Depth         string
	Path          string
	PathSeparator string
	Link          string
	CTE           string
}

// DefaultColumns returns the default column naming.
func DefaultColumns() Columns {
	return Columns{
		Depth:         DefaultDepthColumn,
		Path:          DefaultPathColumn,
		PathSeparator: DefaultPathSeparator,
		Link:          DefaultLinkColumn,
		CTE:           DefaultCTEName,
	}
}

// WithDefaults fills empty names with their defaults.
func (c Columns) WithDefaults() Columns {
	d := DefaultColumns()
	if c.Depth == "" {
		c.Depth = d.Depth
	}
	if c.Path == "" {
		c.Path = d.Path
	}
	if c.PathSeparator == "" {
		c.PathSeparator = d.PathSeparator
	}
	if c.Link == "" {
		c.Link = d.Link
	}
	if c.CTE == "" {
		c.CTE = d.CTE
	}
	return c
}

// Link describes the rows connecting a child node to its parent. For a plain
// adjacency list this is the node table itself, aliased, with ChildColumn set
// to the key and ParentColumn set to the parent-pointer column.
type Link struct {
	Table        string
	Ref          string
	ChildColumn  string
	ParentColumn string
}

// Reference returns the identifier used to refer to the link rows.
func (l Link) Reference() string {
	if l.Ref != "" {
		return l.Ref
	}
	return l.Table
}

// Source describes the node table a traversal reads from.
type Source struct {
	Table string
	// Ref is an optional alias for Table.
	Ref string
	Key string
	// Columns restricts the node projection; empty selects every column.
	Columns []string
	Link    Link
}

// Reference returns the identifier used to refer to node rows.
func (s Source) Reference() string {
	if s.Ref != "" {
		return s.Ref
	}
	return s.Table
}
