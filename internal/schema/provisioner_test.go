package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sortbench/sortbench/internal/engine"
	"github.com/sortbench/sortbench/internal/engine/badger"
	"github.com/sortbench/sortbench/internal/engine/enginetest"
	"github.com/sortbench/sortbench/internal/engine/sqlite"
	sberrors "github.com/sortbench/sortbench/internal/errors"
	"github.com/sortbench/sortbench/pkg/types"
)

func openEngines(t *testing.T) map[string]engine.Engine {
	t.Helper()
	s, err := sqlite.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	b, err := badger.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return map[string]engine.Engine{"sqlite": s, "badger": b}
}

func TestProvisionCreatesTables(t *testing.T) {
	for name, e := range openEngines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var state State

			left, right, err := NewProvisioner(e, "sortbench", 2, nil).Provision(ctx, &state)
			require.NoError(t, err)

			assert.Equal(t, LeftTableName, left.Name)
			assert.Equal(t, RightTableName, right.Name)
			assert.Equal(t, types.SortBenchSchema("l_"), left.Schema)
			assert.Equal(t, types.SortBenchSchema("r_"), right.Schema)
			assert.Equal(t, 2, left.PartitionCount)
			assert.Equal(t, "sortbench", state.DatabaseName)
			assert.Same(t, left, state.Left)
			assert.Same(t, right, state.Right)

			n, err := e.CountRows(ctx, left)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestProvisionTwiceLeavesOneDatabase(t *testing.T) {
	for name, e := range openEngines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var state State
			p := NewProvisioner(e, "sortbench", 1, nil)

			left, _, err := p.Provision(ctx, &state)
			require.NoError(t, err)

			txn, err := e.BeginTransaction(ctx)
			require.NoError(t, err)
			require.NoError(t, e.Insert(ctx, txn, left, 0, [][]int64{{0, 1, 2}}))
			require.NoError(t, e.CommitTransaction(txn))

			left, _, err = p.Provision(ctx, &state)
			require.NoError(t, err)

			dbs, err := e.ListDatabases(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"sortbench"}, dbs)

			tables, err := e.ListTables(ctx, "sortbench")
			require.NoError(t, err)
			assert.Equal(t, []string{LeftTableName, RightTableName}, tables)

			n, err := e.CountRows(ctx, left)
			require.NoError(t, err)
			assert.Zero(t, n, "reprovisioned table starts empty")
		})
	}
}

func TestProvisionDropsRetainedDatabase(t *testing.T) {
	ctx := context.Background()
	e, err := sqlite.Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer e.Close()

	var state State
	_, _, err = NewProvisioner(e, "first", 1, nil).Provision(ctx, &state)
	require.NoError(t, err)
	_, _, err = NewProvisioner(e, "second", 1, nil).Provision(ctx, &state)
	require.NoError(t, err)

	dbs, err := e.ListDatabases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, dbs)
}

func TestProvisionCreateDatabaseFailure(t *testing.T) {
	ctx := context.Background()
	base, err := sqlite.Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer base.Close()
	e := enginetest.NewFaulty(base)
	e.FailCreateDB = enginetest.FailOn(1)

	var state State
	_, _, err = NewProvisioner(e, "sortbench", 1, nil).Provision(ctx, &state)
	require.Error(t, err)
	assert.True(t, sberrors.IsCategory(err, sberrors.ErrCategorySchema))
	assert.Equal(t, sberrors.CodeDatabaseCreateFailed, sberrors.GetCode(err))
	assert.Equal(t, "sortbench", sberrors.GetDetails(err)["database"])
	assert.ErrorIs(t, err, enginetest.ErrInjected)

	assert.Empty(t, state.DatabaseName)
	assert.Empty(t, e.CommittedTxnIDs(), "failed DDL is never committed")
	assert.Zero(t, e.TxnStats().Active)
}

func TestProvisionCreateTableFailure(t *testing.T) {
	ctx := context.Background()
	base, err := sqlite.Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer base.Close()
	e := enginetest.NewFaulty(base)
	e.FailCreateTable = enginetest.FailOn(2)

	var state State
	_, _, err = NewProvisioner(e, "sortbench", 1, nil).Provision(ctx, &state)
	require.Error(t, err)
	assert.Equal(t, sberrors.CodeTableCreateFailed, sberrors.GetCode(err))
	assert.Equal(t, RightTableName, sberrors.GetDetails(err)["table"])
	assert.Nil(t, state.Left)

	// The database and LEFT_TABLE were committed; RIGHT_TABLE was not.
	assert.Len(t, e.CommittedTxnIDs(), 2)
	tables, err := e.ListTables(ctx, "sortbench")
	require.NoError(t, err)
	assert.Equal(t, []string{LeftTableName}, tables)
}

func TestProvisionInvalidDatabaseName(t *testing.T) {
	ctx := context.Background()
	e, err := sqlite.Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer e.Close()

	_, _, err = NewProvisioner(e, "not valid", 1, nil).Provision(ctx, &State{})
	require.Error(t, err)
	assert.Equal(t, sberrors.CodeDatabaseCreateFailed, sberrors.GetCode(err))
	assert.ErrorIs(t, err, engine.ErrInvalidName)
}
