package db

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
)

// AuditTableNames lists the tables exported in audit reports.
var AuditTableNames = []string{
	"users",
	"spaces",
	"add_ons",
	"reservations",
}

// GetTableNames returns the exportable tables.
func (db *DB) GetTableNames(context.Context) ([]string, error) {
	return AuditTableNames, nil
}

// GetTableData returns all rows of a whitelisted table as column maps.
func (db *DB) GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error) {
	if !slices.Contains(AuditTableNames, tableName) {
		return nil, nil, fmt.Errorf("invalid table name: %s", tableName)
	}

	columns, err := db.tableColumns(ctx, tableName)
	if err != nil {
		return nil, nil, err
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY id", tableName))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var data []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			row[col] = values[i]
		}
		data = append(data, row)
	}
	return data, columns, rows.Err()
}

func (db *DB) tableColumns(ctx context.Context, tableName string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typeName   string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typeName, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s has no columns", tableName)
	}
	return columns, rows.Err()
}
