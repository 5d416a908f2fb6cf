package sqlite

import (
	"fmt"
	"strings"

	"github.com/sortbench/sortbench/pkg/types"
)

// CatalogSchemaSQL returns the DDL for the engine's catalog tables.
func CatalogSchemaSQL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS _sortbench_databases (
			name TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS _sortbench_tables (
			database_name TEXT NOT NULL,
			table_name TEXT NOT NULL,
			partition_count INTEGER NOT NULL,
			schema_json TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (database_name, table_name)
		)`,
	}
}

// PartitionTableName returns the physical table holding one partition.
func PartitionTableName(dbName, tableName string, partition int) string {
	return fmt.Sprintf("%s__%s__p%d", dbName, tableName, partition)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// createPartitionSQL builds the DDL for one partition table. The first column
// is the integer primary key.
func createPartitionSQL(physical string, schema types.Schema) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(quoteIdent(physical))
	b.WriteString(" (")
	for i, col := range schema.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(col.Name))
		b.WriteString(" INTEGER")
		if i == 0 {
			b.WriteString(" PRIMARY KEY")
		}
		if !col.Nullable {
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString(")")
	return b.String()
}

func insertSQL(physical string, schema types.Schema) string {
	names := make([]string, len(schema.Columns))
	marks := make([]string, len(schema.Columns))
	for i, col := range schema.Columns {
		names[i] = quoteIdent(col.Name)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(physical), strings.Join(names, ", "), strings.Join(marks, ", "))
}
