// Package enginetest holds the behavior every engine implementation must share.
package enginetest

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sortbench/sortbench/internal/engine"
	"github.com/sortbench/sortbench/pkg/types"
)

// OpenFunc opens a fresh engine rooted at dir.
type OpenFunc func(t *testing.T, dir string) engine.Engine

// Run exercises the engine contract against the implementation returned by open.
func Run(t *testing.T, open OpenFunc) {
	tests := []struct {
		name string
		fn   func(t *testing.T, e engine.Engine)
	}{
		{"CreateDatabaseAndTables", testCreateDatabaseAndTables},
		{"DuplicateNames", testDuplicateNames},
		{"TableRequiresDatabase", testTableRequiresDatabase},
		{"UncommittedDDLInvisible", testUncommittedDDLInvisible},
		{"InsertCommit", testInsertCommit},
		{"InsertAbort", testInsertAbort},
		{"DuplicateID", testDuplicateID},
		{"InsertValidation", testInsertValidation},
		{"FinishedTxnRejected", testFinishedTxnRejected},
		{"DropDatabase", testDropDatabase},
		{"Snapshot", testSnapshot},
		{"TxnStats", testTxnStats},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := open(t, t.TempDir())
			defer e.Close()
			tt.fn(t, e)
		})
	}

	t.Run("Reopen", func(t *testing.T) {
		dir := t.TempDir()
		e := open(t, dir)
		table := mustCreate(t, e, "db", "left_table", 1)
		mustInsert(t, e, table, 0, [][]int64{{1, 2, 3}})
		require.NoError(t, e.Close())

		e = open(t, dir)
		defer e.Close()
		got, err := e.GetTableWithName(context.Background(), "db", "left_table")
		require.NoError(t, err)
		n, err := e.CountRows(context.Background(), got)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func mustCreate(t *testing.T, e engine.Engine, db, table string, partitions int) *engine.Table {
	t.Helper()
	ctx := context.Background()

	txn, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	if dbs, _ := e.ListDatabases(ctx); !contains(dbs, db) {
		require.NoError(t, e.CreateDatabase(ctx, db, txn))
	}
	require.NoError(t, e.CreateTable(ctx, db, table, types.SortBenchSchema("l_"), txn, partitions))
	require.NoError(t, e.CommitTransaction(txn))

	handle, err := e.GetTableWithName(ctx, db, table)
	require.NoError(t, err)
	return handle
}

func mustInsert(t *testing.T, e engine.Engine, table *engine.Table, partition int, rows [][]int64) {
	t.Helper()
	ctx := context.Background()
	txn, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Insert(ctx, txn, table, partition, rows))
	require.NoError(t, e.CommitTransaction(txn))
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func testCreateDatabaseAndTables(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	mustCreate(t, e, "sortbench", "left_table", 2)
	mustCreate(t, e, "sortbench", "right_table", 1)

	dbs, err := e.ListDatabases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sortbench"}, dbs)

	tables, err := e.ListTables(ctx, "sortbench")
	require.NoError(t, err)
	assert.Equal(t, []string{"left_table", "right_table"}, tables)

	left, err := e.GetTableWithName(ctx, "sortbench", "left_table")
	require.NoError(t, err)
	assert.Equal(t, "sortbench", left.DatabaseName)
	assert.Equal(t, "left_table", left.Name)
	assert.Equal(t, 2, left.PartitionCount)
	assert.Equal(t, types.SortBenchSchema("l_"), left.Schema)

	_, err = e.GetTableWithName(ctx, "sortbench", "missing")
	assert.ErrorIs(t, err, engine.ErrTableNotFound)
}

func testDuplicateNames(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	mustCreate(t, e, "db", "t", 1)

	txn, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, e.CreateDatabase(ctx, "db", txn), engine.ErrDatabaseExists)
	require.NoError(t, e.AbortTransaction(txn))

	txn, err = e.BeginTransaction(ctx)
	require.NoError(t, err)
	err = e.CreateTable(ctx, "db", "t", types.SortBenchSchema("l_"), txn, 1)
	assert.ErrorIs(t, err, engine.ErrTableExists)
	require.NoError(t, e.AbortTransaction(txn))
}

func testTableRequiresDatabase(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	txn, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	err = e.CreateTable(ctx, "nope", "t", types.SortBenchSchema("l_"), txn, 1)
	assert.ErrorIs(t, err, engine.ErrDatabaseNotFound)
	require.NoError(t, e.AbortTransaction(txn))
}

func testUncommittedDDLInvisible(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	txn, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, e.CreateDatabase(ctx, "db", txn))
	require.NoError(t, e.CreateTable(ctx, "db", "t", types.SortBenchSchema("l_"), txn, 1))
	require.NoError(t, e.AbortTransaction(txn))

	dbs, err := e.ListDatabases(ctx)
	require.NoError(t, err)
	assert.Empty(t, dbs)
	_, err = e.GetTableWithName(ctx, "db", "t")
	assert.ErrorIs(t, err, engine.ErrTableNotFound)
}

func testInsertCommit(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	table := mustCreate(t, e, "db", "t", 2)

	mustInsert(t, e, table, 0, [][]int64{{0, 10, 1}, {2, 12, 3}})
	mustInsert(t, e, table, 1, [][]int64{{1, 11, 2}})

	n, err := e.CountRows(ctx, table)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	ids, err := e.ScanIDs(ctx, table)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2}, ids)
}

func testInsertAbort(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	table := mustCreate(t, e, "db", "t", 1)
	mustInsert(t, e, table, 0, [][]int64{{0, 1, 1}})

	txn, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Insert(ctx, txn, table, 0, [][]int64{{1, 1, 1}, {2, 2, 2}}))
	require.NoError(t, e.AbortTransaction(txn))

	n, err := e.CountRows(ctx, table)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func testDuplicateID(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	table := mustCreate(t, e, "db", "t", 1)
	mustInsert(t, e, table, 0, [][]int64{{7, 1, 1}})

	txn, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	err = e.Insert(ctx, txn, table, 0, [][]int64{{7, 2, 2}})
	assert.ErrorIs(t, err, engine.ErrDuplicateKey)
	require.NoError(t, e.AbortTransaction(txn))

	txn, err = e.BeginTransaction(ctx)
	require.NoError(t, err)
	err = e.Insert(ctx, txn, table, 0, [][]int64{{8, 1, 1}, {8, 2, 2}})
	assert.ErrorIs(t, err, engine.ErrDuplicateKey)
	require.NoError(t, e.AbortTransaction(txn))
}

func testInsertValidation(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	table := mustCreate(t, e, "db", "t", 1)

	txn, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	defer e.AbortTransaction(txn)

	assert.ErrorIs(t, e.Insert(ctx, txn, table, 1, [][]int64{{1, 1, 1}}), engine.ErrInvalidPartition)
	assert.ErrorIs(t, e.Insert(ctx, txn, table, 0, [][]int64{{1, 1}}), engine.ErrColumnMismatch)
}

func testFinishedTxnRejected(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	table := mustCreate(t, e, "db", "t", 1)

	txn, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, e.CommitTransaction(txn))

	assert.ErrorIs(t, e.CommitTransaction(txn), engine.ErrTxnDone)
	assert.ErrorIs(t, e.AbortTransaction(txn), engine.ErrTxnDone)
	assert.ErrorIs(t, e.Insert(ctx, txn, table, 0, [][]int64{{1, 1, 1}}), engine.ErrTxnDone)
	assert.ErrorIs(t, e.CommitTransaction(foreignTxn{}), engine.ErrForeignTxn)
}

type foreignTxn struct{}

func (foreignTxn) ID() uint64 { return 0 }

func testDropDatabase(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	table := mustCreate(t, e, "db", "t", 2)
	mustInsert(t, e, table, 1, [][]int64{{1, 1, 1}})
	mustCreate(t, e, "other", "t", 1)

	require.NoError(t, e.DropDatabase(ctx, "db"))
	// Dropping again is a no-op.
	require.NoError(t, e.DropDatabase(ctx, "db"))

	dbs, err := e.ListDatabases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, dbs)

	_, err = e.GetTableWithName(ctx, "db", "t")
	assert.ErrorIs(t, err, engine.ErrTableNotFound)

	// The name can be reused and starts empty.
	table = mustCreate(t, e, "db", "t", 2)
	n, err := e.CountRows(ctx, table)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testSnapshot(t *testing.T, e engine.Engine) {
	table := mustCreate(t, e, "db", "t", 1)
	mustInsert(t, e, table, 0, [][]int64{{1, 1, 1}, {2, 2, 2}})

	var buf bytes.Buffer
	require.NoError(t, e.Snapshot(context.Background(), &buf))
	assert.NotZero(t, buf.Len())
}

func testTxnStats(t *testing.T, e engine.Engine) {
	ctx := context.Background()
	before := e.TxnStats()

	a, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Active+1, e.TxnStats().Active)
	require.NoError(t, e.CommitTransaction(a))

	b, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	assert.Greater(t, b.ID(), a.ID())
	require.NoError(t, e.AbortTransaction(b))

	after := e.TxnStats()
	assert.Equal(t, before.Committed+1, after.Committed)
	assert.Equal(t, before.Aborted+1, after.Aborted)
	assert.Equal(t, int64(0), after.Active)
}
