package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sortbench/sortbench/internal/engine"
	"github.com/sortbench/sortbench/internal/engine/enginetest"
	"github.com/sortbench/sortbench/pkg/types"
)

func TestEngineContract(t *testing.T) {
	enginetest.Run(t, func(t *testing.T, dir string) engine.Engine {
		e, err := Open(dir, nil)
		require.NoError(t, err)
		return e
	})
}

func TestRegisteredKind(t *testing.T) {
	e, err := engine.Open(Kind, t.TempDir(), nil)
	require.NoError(t, err)
	defer e.Close()
	assert.IsType(t, &Engine{}, e)
	assert.Contains(t, engine.Kinds(), Kind)
}

func TestPartitionTablesCreated(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e, err := Open(dir, nil)
	require.NoError(t, err)
	defer e.Close()

	txn, err := e.BeginTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, e.CreateDatabase(ctx, "sortbench", txn))
	require.NoError(t, e.CreateTable(ctx, "sortbench", "left_table", types.SortBenchSchema("l_"), txn, 3))
	require.NoError(t, e.CommitTransaction(txn))

	var n int
	err = e.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'sortbench__left_table__p%'").Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = os.Stat(filepath.Join(dir, FileName))
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), e.Path())
}

func TestCreatePartitionSQL(t *testing.T) {
	got := createPartitionSQL("db__t__p0", types.SortBenchSchema("l_"))
	want := `CREATE TABLE "db__t__p0" ("l_id" INTEGER PRIMARY KEY NOT NULL, "l_sortkey" INTEGER NOT NULL, "l_shipdate" INTEGER NOT NULL)`
	assert.Equal(t, want, got)

	assert.Equal(t,
		`INSERT INTO "db__t__p0" ("l_id", "l_sortkey", "l_shipdate") VALUES (?, ?, ?)`,
		insertSQL("db__t__p0", types.SortBenchSchema("l_")))
}

func TestCloseIdempotent(t *testing.T) {
	e, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
}

func TestReaderIsReadOnly(t *testing.T) {
	ctx := context.Background()
	e, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.readDB.ExecContext(ctx, "CREATE TABLE scratch (a INTEGER)")
	assert.Error(t, err)

	dbs, err := e.ListDatabases(ctx)
	require.NoError(t, err)
	assert.Empty(t, dbs)
	assert.Equal(t, 0, engine.MaxBatchRows(e))
}
