// Package engine defines the storage, catalog and transaction contract the loader
// consumes. Implementations live in the sqlite and badger subpackages; the loader
// never reaches past this interface.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/sortbench/sortbench/pkg/types"
)

// Common errors returned by engines.
var (
	ErrDatabaseExists   = errors.New("database already exists")
	ErrDatabaseNotFound = errors.New("database not found")
	ErrTableExists      = errors.New("table already exists")
	ErrTableNotFound    = errors.New("table not found")
	ErrDuplicateKey     = errors.New("duplicate key")
	ErrTxnDone          = errors.New("transaction already committed or aborted")
	ErrForeignTxn       = errors.New("transaction was not begun by this engine")
	ErrInvalidName      = errors.New("invalid name")
	ErrInvalidPartition = errors.New("invalid partition")
	ErrColumnMismatch   = errors.New("value count does not match table columns")
)

// Txn is an open transaction. It is owned by whoever began it until it is
// committed or aborted.
type Txn interface {
	// ID returns the transaction id, unique and increasing per engine.
	ID() uint64
}

// Table is a non-owning handle to a table; the engine owns the data.
type Table struct {
	DatabaseName   string
	Name           string
	Schema         types.Schema
	PartitionCount int
}

// String returns the qualified table name.
func (t *Table) String() string {
	return t.DatabaseName + "." + t.Name
}

// Engine is the Storage/Catalog + Transaction API.
type Engine interface {
	// BeginTransaction opens a new read-write transaction.
	BeginTransaction(ctx context.Context) (Txn, error)

	// CommitTransaction makes the transaction's writes durable.
	CommitTransaction(txn Txn) error

	// AbortTransaction discards the transaction's writes.
	AbortTransaction(txn Txn) error

	// CreateDatabase registers a new database within txn.
	CreateDatabase(ctx context.Context, name string, txn Txn) error

	// DropDatabase removes a database and all of its tables in its own transaction.
	// Dropping a database that does not exist is not an error.
	DropDatabase(ctx context.Context, name string) error

	// CreateTable creates a table with partitionCount partitions within txn.
	CreateTable(ctx context.Context, dbName, tableName string, schema types.Schema, txn Txn, partitionCount int) error

	// GetTableWithName resolves a table handle by name.
	GetTableWithName(ctx context.Context, dbName, tableName string) (*Table, error)

	// ListDatabases returns the names of all databases.
	ListDatabases(ctx context.Context) ([]string, error)

	// ListTables returns the names of all tables in a database.
	ListTables(ctx context.Context, dbName string) ([]string, error)

	// Insert writes rows into one partition of table within txn. Each row holds
	// one value per schema column, in schema order.
	Insert(ctx context.Context, txn Txn, table *Table, partition int, rows [][]int64) error

	// CountRows returns the number of committed rows in table.
	CountRows(ctx context.Context, table *Table) (int64, error)

	// ScanIDs returns the first-column values of every committed row, ascending.
	ScanIDs(ctx context.Context, table *Table) ([]int64, error)

	// Snapshot writes a consistent copy of the engine's data to w.
	Snapshot(ctx context.Context, w io.Writer) error

	// TxnStats reports transaction counters.
	TxnStats() TxnStats

	// Close releases the engine.
	Close() error
}

// BatchLimiter is implemented by engines that cap the rows one transaction
// may write.
type BatchLimiter interface {
	MaxBatchRows() int
}

// MaxBatchRows returns the transaction row cap of e, or 0 if it has none.
func MaxBatchRows(e Engine) int {
	if l, ok := e.(BatchLimiter); ok {
		return l.MaxBatchRows()
	}
	return 0
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateName checks that a database, table or column name is a plain identifier.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// CheckInsert validates the arguments of an Insert call against the table handle.
func CheckInsert(table *Table, partition int, rows [][]int64) error {
	if partition < 0 || partition >= table.PartitionCount {
		return fmt.Errorf("%w: %d (table %s has %d)", ErrInvalidPartition, partition, table, table.PartitionCount)
	}
	width := len(table.Schema.Columns)
	for i, row := range rows {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d values, table %s has %d columns", ErrColumnMismatch, i, len(row), table, width)
		}
	}
	return nil
}
