package sqlutil

import (
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// ErrUnknownDialect is returned when a dialect name is not recognised.
var ErrUnknownDialect = errors.New("unknown SQL dialect")

// Dialect captures the few places where recursive traversal SQL differs between backends.
type Dialect interface {
	Name() string
	QuoteIdentifier(name string) string
	PlaceholderFormat() sq.PlaceholderFormat
	// CastText renders expr as a text value suitable for path accumulation.
	CastText(expr string) string
	// Concat renders the concatenation of the given text expressions.
	Concat(parts ...string) string
	// PathContains renders a boolean that is true when key (an expression) is one of
	// the separator-delimited segments of path (an expression).
	PathContains(path, key, separator string) string
}

// DialectFor resolves a dialect by driver or product name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql", "tidb", "":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
}

var (
	// MySQL covers MySQL 8 and TiDB.
	MySQL Dialect = mysqlDialect{}
	// Postgres covers PostgreSQL via pgx or lib/pq.
	Postgres Dialect = postgresDialect{}
	// SQLite covers SQLite 3.8.3+ (recursive CTE support).
	SQLite Dialect = sqliteDialect{}
)

type mysqlDialect struct{}

func (mysqlDialect) Name() string                            { return "mysql" }
func (mysqlDialect) QuoteIdentifier(name string) string      { return QuoteIdentifier(name) }
func (mysqlDialect) PlaceholderFormat() sq.PlaceholderFormat { return sq.Question }

func (mysqlDialect) CastText(expr string) string {
	return fmt.Sprintf("CAST(%s AS CHAR(65535))", expr)
}

func (mysqlDialect) Concat(parts ...string) string {
	return "CONCAT(" + strings.Join(parts, ", ") + ")"
}

func (d mysqlDialect) PathContains(path, key, separator string) string {
	sep := QuoteString(separator)
	return fmt.Sprintf("LOCATE(%s, %s) > 0",
		d.Concat(sep, key, sep),
		d.Concat(sep, path, sep),
	)
}

type postgresDialect struct{}

func (postgresDialect) Name() string                            { return "postgres" }
func (postgresDialect) QuoteIdentifier(name string) string      { return QuoteDoubleIdentifier(name) }
func (postgresDialect) PlaceholderFormat() sq.PlaceholderFormat { return sq.Dollar }

func (postgresDialect) CastText(expr string) string {
	return fmt.Sprintf("CAST(%s AS TEXT)", expr)
}

func (postgresDialect) Concat(parts ...string) string {
	return "(" + strings.Join(parts, " || ") + ")"
}

func (d postgresDialect) PathContains(path, key, separator string) string {
	sep := QuoteString(separator)
	return fmt.Sprintf("POSITION(%s IN %s) > 0",
		d.Concat(sep, d.CastText(key), sep),
		d.Concat(sep, path, sep),
	)
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string                            { return "sqlite" }
func (sqliteDialect) QuoteIdentifier(name string) string      { return QuoteDoubleIdentifier(name) }
func (sqliteDialect) PlaceholderFormat() sq.PlaceholderFormat { return sq.Question }

func (sqliteDialect) CastText(expr string) string {
	return fmt.Sprintf("CAST(%s AS TEXT)", expr)
}

func (sqliteDialect) Concat(parts ...string) string {
	return "(" + strings.Join(parts, " || ") + ")"
}

func (d sqliteDialect) PathContains(path, key, separator string) string {
	sep := QuoteString(separator)
	return fmt.Sprintf("INSTR(%s, %s) > 0",
		d.Concat(sep, path, sep),
		d.Concat(sep, d.CastText(key), sep),
	)
}
