// Package introspection reads column metadata for the tables a hierarchy is
// defined over, so that a definition can be checked before any traversal runs.
package introspection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tidb-hierarchy/internal/sqlutil"
)

// ErrTableNotFound is returned when a table has no visible columns.
var ErrTableNotFound = errors.New("table not found")

// Column represents a database column
type Column struct {
	Name          string
	DataType      string
	IsNullable    bool
	IsPrimaryKey  bool
	HasDefault    bool
	ColumnDefault string
}

// IsInteger reports whether the column holds whole numbers.
func (c Column) IsInteger() bool {
	t := strings.ToLower(c.DataType)
	if strings.Contains(t, "interval") || strings.Contains(t, "point") {
		return false
	}
	return strings.Contains(t, "int") || t == "serial" || t == "bigserial"
}

// Table is a table and its columns in ordinal order.
type Table struct {
	Name    string
	Columns []Column
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// PrimaryKeyColumns returns the primary key columns in ordinal order.
func (t *Table) PrimaryKeyColumns() []Column {
	var cols []Column
	for _, col := range t.Columns {
		if col.IsPrimaryKey {
			cols = append(cols, col)
		}
	}
	return cols
}

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// LoadTable reads the columns of tableName. schema is the database (MySQL/TiDB)
// or schema (Postgres) name; empty means the connection's current one. SQLite
// ignores it.
func LoadTable(ctx context.Context, db Queryer, dialect sqlutil.Dialect, schema, tableName string) (*Table, error) {
	ctx, span := startSpan(ctx, "introspection.load_table",
		attribute.String("db.system", dialect.Name()),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	var (
		columns []Column
		err     error
	)
	switch dialect.Name() {
	case sqlutil.SQLite.Name():
		columns, err = sqliteColumns(ctx, db, tableName)
	case sqlutil.Postgres.Name():
		columns, err = postgresColumns(ctx, db, schema, tableName)
	default:
		columns, err = mysqlColumns(ctx, db, schema, tableName)
	}
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to read columns of %s: %w", tableName, err)
	}
	if len(columns) == 0 {
		err := fmt.Errorf("%w: %s", ErrTableNotFound, tableName)
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("db.columns", len(columns)))
	return &Table{Name: tableName, Columns: columns}, nil
}

func mysqlColumns(ctx context.Context, db Queryer, schema, tableName string) ([]Column, error) {
	schemaPredicate := "TABLE_SCHEMA = ?"
	args := []any{schema, tableName}
	if schema == "" {
		schemaPredicate = "TABLE_SCHEMA = DATABASE()"
		args = args[1:]
	}
	query := `
		SELECT
			COLUMN_NAME,
			DATA_TYPE,
			IS_NULLABLE,
			COLUMN_DEFAULT,
			COLUMN_KEY
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE ` + schemaPredicate + ` AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []Column
	for rows.Next() {
		var col Column
		var isNullable, columnKey string
		var columnDefault sql.NullString
		if err := rows.Scan(&col.Name, &col.DataType, &isNullable, &columnDefault, &columnKey); err != nil {
			return nil, err
		}
		col.IsNullable = strings.EqualFold(isNullable, "YES")
		col.IsPrimaryKey = strings.EqualFold(columnKey, "PRI")
		if columnDefault.Valid {
			col.ColumnDefault = columnDefault.String
			col.HasDefault = true
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func postgresColumns(ctx context.Context, db Queryer, schema, tableName string) ([]Column, error) {
	schemaPredicate := "c.table_schema = $1"
	args := []any{schema, tableName}
	tableParam := "$2"
	if schema == "" {
		schemaPredicate = "c.table_schema = current_schema()"
		args = args[1:]
		tableParam = "$1"
	}
	query := `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.column_default,
			EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage k
					ON k.constraint_name = tc.constraint_name AND k.table_schema = tc.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = c.table_schema
					AND tc.table_name = c.table_name
					AND k.column_name = c.column_name
			) AS is_primary
		FROM information_schema.columns c
		WHERE ` + schemaPredicate + ` AND c.table_name = ` + tableParam + `
		ORDER BY c.ordinal_position
	`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []Column
	for rows.Next() {
		var col Column
		var isNullable string
		var columnDefault sql.NullString
		if err := rows.Scan(&col.Name, &col.DataType, &isNullable, &columnDefault, &col.IsPrimaryKey); err != nil {
			return nil, err
		}
		col.IsNullable = strings.EqualFold(isNullable, "YES")
		if columnDefault.Valid {
			col.ColumnDefault = columnDefault.String
			col.HasDefault = true
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func sqliteColumns(ctx context.Context, db Queryer, tableName string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, tableName)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []Column
	for rows.Next() {
		var col Column
		var notNull, pk int
		var columnDefault sql.NullString
		if err := rows.Scan(&col.Name, &col.DataType, &notNull, &columnDefault, &pk); err != nil {
			return nil, err
		}
		col.DataType = strings.ToLower(col.DataType)
		col.IsNullable = notNull == 0 && pk == 0
		col.IsPrimaryKey = pk > 0
		if columnDefault.Valid {
			col.ColumnDefault = columnDefault.String
			col.HasDefault = true
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("tidb-hierarchy/introspection")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
