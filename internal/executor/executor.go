package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sortbench/sortbench/internal/engine"
	"github.com/sortbench/sortbench/internal/partition"
	"github.com/sortbench/sortbench/pkg/types"
)

var (
	// ErrValueCount is returned when a row does not hold one value per column.
	ErrValueCount = errors.New("value count mismatch")
	// ErrColumnOrder is returned when statement columns differ from the table schema.
	ErrColumnOrder = errors.New("columns do not match table schema")
)

type boundTable struct {
	table  *engine.Table
	router *partition.Router
}

// InsertExecutor executes insert statements inside caller-owned transactions.
type InsertExecutor struct {
	engine engine.Engine
	logger *zap.Logger

	mu     sync.RWMutex
	tables map[TableInfo]*boundTable
}

// NewInsertExecutor creates an executor writing through eng.
func NewInsertExecutor(eng engine.Engine, logger *zap.Logger) *InsertExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InsertExecutor{
		engine: eng,
		logger: logger,
		tables: make(map[TableInfo]*boundTable),
	}
}

// Bind registers a table handle and the router used to place its rows. Unbound
// tables are resolved through the engine on first use and hash-routed.
func (x *InsertExecutor) Bind(table *engine.Table, router *partition.Router) error {
	if router.Count() != table.PartitionCount {
		return fmt.Errorf("executor: router has %d partitions, table %s has %d",
			router.Count(), table, table.PartitionCount)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.tables[TableInfo{DatabaseName: table.DatabaseName, TableName: table.Name}] = &boundTable{table: table, router: router}
	return nil
}

// Unbind forgets every bound table.
func (x *InsertExecutor) Unbind() {
	x.mu.Lock()
	defer x.mu.Unlock()
	clear(x.tables)
}

func (x *InsertExecutor) resolve(ctx context.Context, info TableInfo) (*boundTable, error) {
	x.mu.RLock()
	bt, ok := x.tables[info]
	x.mu.RUnlock()
	if ok {
		return bt, nil
	}

	table, err := x.engine.GetTableWithName(ctx, info.DatabaseName, info.TableName)
	if err != nil {
		return nil, err
	}
	router, err := partition.NewRouter(types.PartitionConfig{
		Strategy: types.StrategyHash,
		Count:    table.PartitionCount,
	}, 0)
	if err != nil {
		return nil, err
	}
	bt = &boundTable{table: table, router: router}

	x.mu.Lock()
	x.tables[info] = bt
	x.mu.Unlock()
	return bt, nil
}

// Execute inserts the statement's rows within txn and returns the number of
// rows written. Rows are grouped by partition and each non-empty partition is
// written with one engine call, in partition order. Nothing is committed here.
func (x *InsertExecutor) Execute(ctx context.Context, txn engine.Txn, stmt *InsertStatement) (int64, error) {
	if err := stmt.Validate(); err != nil {
		return 0, err
	}
	if len(stmt.Values) == 0 {
		return 0, nil
	}

	bt, err := x.resolve(ctx, stmt.Table)
	if err != nil {
		return 0, fmt.Errorf("executor: failed to resolve %s: %w", stmt.Table, err)
	}
	if err := checkColumns(bt.table.Schema, stmt.Columns); err != nil {
		return 0, fmt.Errorf("executor: %s: %w", stmt.Table, err)
	}

	groups, err := bt.router.RouteRows(stmt.Values, 0)
	if err != nil {
		return 0, fmt.Errorf("executor: %w", err)
	}

	var written int64
	for p, rows := range groups {
		if len(rows) == 0 {
			continue
		}
		if err := x.engine.Insert(ctx, txn, bt.table, p, rows); err != nil {
			return written, fmt.Errorf("executor: insert into partition %d of %s: %w", p, stmt.Table, err)
		}
		written += int64(len(rows))
	}

	x.logger.Debug("insert executed",
		zap.Stringer("table", stmt.Table),
		zap.Uint64("txn_id", txn.ID()),
		zap.Int64("rows", written))
	return written, nil
}

func checkColumns(schema types.Schema, columns []string) error {
	if len(columns) != len(schema.Columns) {
		return fmt.Errorf("%w: %d columns given, table has %d", ErrColumnOrder, len(columns), len(schema.Columns))
	}
	for i, name := range columns {
		if schema.Columns[i].Name != name {
			return fmt.Errorf("%w: column %d is %q, table has %q", ErrColumnOrder, i, name, schema.Columns[i].Name)
		}
	}
	return nil
}
