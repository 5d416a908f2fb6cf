// Package executor turns insert statements into partitioned engine writes.
package executor

import (
	"fmt"
)

// TableInfo names the target table of a statement.
type TableInfo struct {
	DatabaseName string
	TableName    string
}

// String returns the qualified table name.
func (t TableInfo) String() string {
	return t.DatabaseName + "." + t.TableName
}

// InsertStatement is a batch of rows for one table. Columns name the values of
// each row, in order.
type InsertStatement struct {
	Table   TableInfo
	Columns []string
	Values  [][]int64
}

// NewInsertStatement creates an empty statement with room for capacity rows.
func NewInsertStatement(table TableInfo, columns []string, capacity int) *InsertStatement {
	return &InsertStatement{
		Table:   table,
		Columns: columns,
		Values:  make([][]int64, 0, capacity),
	}
}

// AddRow appends one row of values.
func (s *InsertStatement) AddRow(values []int64) {
	s.Values = append(s.Values, values)
}

// Reset empties the statement, keeping its capacity.
func (s *InsertStatement) Reset() {
	clear(s.Values)
	s.Values = s.Values[:0]
}

// Validate checks that the statement is well formed: a target table, at least
// one column and one value per column in every row.
func (s *InsertStatement) Validate() error {
	if s.Table.DatabaseName == "" || s.Table.TableName == "" {
		return fmt.Errorf("executor: statement has no target table")
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("executor: statement for %s has no columns", s.Table)
	}
	for i, row := range s.Values {
		if len(row) != len(s.Columns) {
			return fmt.Errorf("executor: %w: row %d of %s has %d values, statement has %d columns",
				ErrValueCount, i, s.Table, len(row), len(s.Columns))
		}
	}
	return nil
}
