package types

import "fmt"

// ColumnTypeInteger is the only column type the sort benchmark tables use.
const ColumnTypeInteger = "INTEGER"

// Schema defines the ordered columns of a table.
type Schema struct {
	// Columns defines the columns in the schema, in insert order
	Columns []ColumnDef `json:"columns"`
}

// ColumnDef defines a single column in the schema.
type ColumnDef struct {
	// Name is the column name
	Name string `json:"name"`

	// Type is the column type; only INTEGER is supported
	Type string `json:"type"`

	// Nullable indicates whether the column can contain NULL values
	Nullable bool `json:"nullable"`
}

// ColumnNames returns the column names in schema order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Validate checks that the schema is non-empty, has unique names and only integer columns.
func (s Schema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema has no columns")
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("schema has a column with an empty name")
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		if c.Type != ColumnTypeInteger {
			return fmt.Errorf("column %q has unsupported type %q", c.Name, c.Type)
		}
	}
	return nil
}

// TableDescriptor names a table and its schema inside a database.
type TableDescriptor struct {
	Name         string `json:"name"`
	DatabaseName string `json:"database_name"`
	Schema       Schema `json:"schema"`
}

// SortBenchSchema returns the three non-null integer columns of a sort benchmark
// table, each name prefixed with prefix (e.g. "l_id", "l_sortkey", "l_shipdate").
func SortBenchSchema(prefix string) Schema {
	return Schema{
		Columns: []ColumnDef{
			{Name: prefix + "id", Type: ColumnTypeInteger, Nullable: false},
			{Name: prefix + "sortkey", Type: ColumnTypeInteger, Nullable: false},
			{Name: prefix + "shipdate", Type: ColumnTypeInteger, Nullable: false},
		},
	}
}
