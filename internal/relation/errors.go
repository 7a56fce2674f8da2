package relation

import (
	"errors"

	"tidb-hierarchy/internal/recursive"
)

var (
	// ErrInvalidOriginKey is returned when an origin key is missing, null, of an
	// unsupported type, or of a different kind than the rest of its batch.
	ErrInvalidOriginKey = errors.New("invalid origin key")
	// ErrAliasCollision is returned when no unused self-join alias can be derived.
	ErrAliasCollision = errors.New("unable to derive a unique table alias")
	// ErrMissingTraversalMetadata is returned when result rows cannot be attributed to an origin.
	ErrMissingTraversalMetadata = recursive.ErrMissingTraversalMetadata
	// ErrInvalidDefinition is returned for incomplete relation definitions.
	ErrInvalidDefinition = errors.New("invalid relation definition")
)
