package loader

import (
	"fmt"

	"tidb-hierarchy/internal/dbexec"
	"tidb-hierarchy/internal/recursive"
	"tidb-hierarchy/internal/relation"
)

// scanRecords reads every row into a column-keyed record.
func scanRecords(rows dbexec.Rows) ([]relation.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	var results []relation.Record
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(relation.Record, len(columns))
		for i, col := range columns {
			record[col] = convertValue(values[i])
		}
		results = append(results, record)
	}

	return results, rows.Err()
}

// scanTraversalRows reads traversal rows and splits off their depth, path and link metadata.
func scanTraversalRows(rows dbexec.Rows, naming recursive.Columns) ([]recursive.Row, error) {
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	out := make([]recursive.Row, 0, len(records))
	for i, record := range records {
		row, err := recursive.RowFromRecord(record, naming)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, row)
	}
	return out, nil
}

func convertValue(val interface{}) interface{} {
	if val == nil {
		return nil
	}

	if b, ok := val.([]byte); ok {
		return string(b)
	}

	return val
}
