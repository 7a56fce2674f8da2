package loader

import (
	"errors"

	"github.com/go-sql-driver/mysql"

	"tidb-hierarchy/internal/recursive"
	"tidb-hierarchy/internal/relation"
	"tidb-hierarchy/internal/sqlutil"
)

// ErrAccessDenied is returned when the database refuses access to the traversed tables.
var ErrAccessDenied = errors.New("access denied")

// MySQL/TiDB error codes for access control violations.
// See: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	mysqlErrDBAccessDenied     = 1044 // Access denied for user to database
	mysqlErrTableAccessDenied  = 1142 // SELECT command denied to user for table
	mysqlErrColumnAccessDenied = 1143 // SELECT command denied to user for column
)

func normalizeQueryError(err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDBAccessDenied, mysqlErrTableAccessDenied, mysqlErrColumnAccessDenied:
			return ErrAccessDenied
		}
	}
	return err
}

// errorKind labels an error for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, relation.ErrInvalidOriginKey):
		return "invalid_origin_key"
	case errors.Is(err, relation.ErrAliasCollision):
		return "alias_collision"
	case errors.Is(err, recursive.ErrMissingTraversalMetadata):
		return "missing_metadata"
	case errors.Is(err, recursive.ErrCyclicPath):
		return "cyclic_path"
	case errors.Is(err, sqlutil.ErrUnknownDialect):
		return "unknown_dialect"
	case errors.Is(err, relation.ErrInvalidDefinition):
		return "invalid_definition"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	default:
		return "query"
	}
}
