package checkpoint

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type columnInfo struct {
	name       string
	dataType   string
	isNullable bool
}

// compareColumns reports every expected column that is missing or differs
// in type or nullability from what the database holds.
func compareColumns(tableName string, expected, actual map[string]columnInfo) error {
	var missingColumns []string
	var mismatchedColumns []string

	for colName, exp := range expected {
		act, exists := actual[colName]
		if !exists {
			missingColumns = append(missingColumns, colName)
			continue
		}

		if act.dataType != exp.dataType {
			mismatchedColumns = append(mismatchedColumns,
				fmt.Sprintf("%s: expected %s, got %s", colName, exp.dataType, act.dataType))
		}

		if act.isNullable != exp.isNullable {
			mismatchedColumns = append(mismatchedColumns,
				fmt.Sprintf("%s: expected nullable=%v, got nullable=%v", colName, exp.isNullable, act.isNullable))
		}
	}

	if len(missingColumns) == 0 && len(mismatchedColumns) == 0 {
		return nil
	}

	sort.Strings(missingColumns)
	sort.Strings(mismatchedColumns)

	var errMsg strings.Builder
	fmt.Fprintf(&errMsg, "table %s schema validation failed:\n", tableName)

	if len(missingColumns) > 0 {
		fmt.Fprintf(&errMsg, "  missing columns: %s\n", strings.Join(missingColumns, ", "))
	}

	if len(mismatchedColumns) > 0 {
		fmt.Fprintf(&errMsg, "  mismatched columns:\n")
		for _, msg := range mismatchedColumns {
			fmt.Fprintf(&errMsg, "    - %s\n", msg)
		}
	}

	return errors.New(errMsg.String())
}

var sqliteCheckpointSchema = map[string]columnInfo{
	"id":              {"id", "text", false},
	"bucket":          {"bucket", "text", false},
	"object_key":      {"object_key", "text", false},
	"destination":     {"destination", "text", false},
	"temp_path":       {"temp_path", "text", false},
	"etag":            {"etag", "text", false},
	"size_bytes":      {"size_bytes", "integer", false},
	"part_size_bytes": {"part_size_bytes", "integer", false},
	"ranges":          {"ranges", "text", false},
	"created_at":      {"created_at", "text", false},
	"updated_at":      {"updated_at", "text", false},
}

var postgresCheckpointSchema = map[string]columnInfo{
	"id":              {"id", "uuid", false},
	"bucket":          {"bucket", "text", false},
	"object_key":      {"object_key", "text", false},
	"destination":     {"destination", "text", false},
	"temp_path":       {"temp_path", "text", false},
	"etag":            {"etag", "text", false},
	"size_bytes":      {"size_bytes", "bigint", false},
	"part_size_bytes": {"part_size_bytes", "bigint", false},
	"ranges":          {"ranges", "jsonb", false},
	"created_at":      {"created_at", "timestamp with time zone", false},
	"updated_at":      {"updated_at", "timestamp with time zone", false},
}
