package recursive

import (
	sq "github.com/Masterminds/squirrel"
)

// Direction selects which way the traversal walks the link source.
type Direction int

const (
	// Ascending walks from child to parent (ancestors). Depth decreases.
	Ascending Direction = iota
	// Descending walks from parent to child (descendants). Depth increases.
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

func (d Direction) step() int {
	if d == Descending {
		return 1
	}
	return -1
}

// UnionStrategy selects how the anchor and recursive steps are combined.
type UnionStrategy int

const (
	// UnionAll keeps every produced row.
	UnionAll UnionStrategy = iota
	// UnionDistinct removes rows that are identical across branches.
	UnionDistinct
)

func (u UnionStrategy) String() string {
	if u == UnionDistinct {
		return "union"
	}
	return "unionAll"
}

func (u UnionStrategy) keyword() string {
	if u == UnionDistinct {
		return "UNION"
	}
	return "UNION ALL"
}

// Constraint restricts the anchor step to the origin rows.
type Constraint func(sq.SelectBuilder) sq.SelectBuilder

// Expression is the relationship-specific part of a recursive query.
type Expression struct {
	Direction    Direction
	Constraint   Constraint
	InitialDepth int
	// From replaces the query's source, typically to alias a self-joined table.
	From *Source
	// Select replaces the projection of the outer query.
	Select []string
	Union  UnionStrategy
	// MaxDepth bounds the number of recursive steps; zero means unbounded.
	MaxDepth int
}

// IncludesSelf reports whether the anchor row is the origin itself.
func (e Expression) IncludesSelf() bool {
	return e.InitialDepth == 0
}
