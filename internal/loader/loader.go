// Package loader bulk-loads generated rows into engine tables, one transaction
// per batch.
package loader

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/sortbench/sortbench/internal/engine"
	sberrors "github.com/sortbench/sortbench/internal/errors"
	"github.com/sortbench/sortbench/internal/executor"
	"github.com/sortbench/sortbench/internal/observability"
	"github.com/sortbench/sortbench/pkg/types"
)

// rowWidth is the number of values in a generated row.
const rowWidth = 3

// Options configure a Loader.
type Options struct {
	// BatchTimeout bounds each batch transaction; 0 means no deadline
	BatchTimeout time.Duration
}

// TableLoad is the input of one table load.
type TableLoad struct {
	Table     *engine.Table
	Rows      iter.Seq[types.Row]
	BatchSize int
}

// Loader submits row batches through an InsertExecutor. Batches are strictly
// sequential: a batch commits before the next begins, so at most one
// transaction is open at a time.
type Loader struct {
	engine   engine.Engine
	executor *executor.InsertExecutor
	stats    *observability.LoadStats
	logger   *zap.Logger
	opts     Options
	batches  *batchPool
}

// New creates a loader. stats may be nil.
func New(eng engine.Engine, x *executor.InsertExecutor, stats *observability.LoadStats, opts Options, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stats == nil {
		stats = observability.NewLoadStats()
	}
	return &Loader{
		engine:   eng,
		executor: x,
		stats:    stats,
		logger:   logger,
		opts:     opts,
		batches:  newBatchPool(),
	}
}

// Stats returns the statistics the loader reports into.
func (l *Loader) Stats() *observability.LoadStats {
	return l.stats
}

// LoadTables loads each table in order and returns the committed row count of
// each. A failure stops the run; tables after the failed one are not touched.
func (l *Loader) LoadTables(ctx context.Context, specs ...TableLoad) ([]int64, error) {
	counts := make([]int64, 0, len(specs))
	for _, spec := range specs {
		n, err := l.Load(ctx, spec.Table, spec.Rows, spec.BatchSize)
		counts = append(counts, n)
		if err != nil {
			return counts, err
		}
	}
	return counts, nil
}

// Load inserts every row of rows into table in batches of batchSize rows and
// returns the number of committed rows. The final partial batch is submitted;
// an empty sequence submits nothing. On failure the failing batch is aborted,
// earlier batches stay committed, and a LoadError names the batch.
func (l *Loader) Load(ctx context.Context, table *engine.Table, rows iter.Seq[types.Row], batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, sberrors.NewInternalError(fmt.Sprintf("batch size must be > 0, got %d", batchSize), nil)
	}
	columns := table.Schema.ColumnNames()
	if len(columns) != rowWidth {
		return 0, sberrors.NewInternalError(
			fmt.Sprintf("table %s has %d columns, generated rows have %d", table, len(columns), rowWidth), nil)
	}

	info := executor.TableInfo{DatabaseName: table.DatabaseName, TableName: table.Name}
	b := l.batches.get(info, columns, batchSize)
	defer l.batches.put(b)

	l.stats.StartTable(table.Name)
	defer l.stats.FinishTable(table.Name)

	var (
		committed int64
		number    int
		err       error
	)
	start := time.Now()
	for row := range rows {
		b.add(row)
		if b.len() < batchSize {
			continue
		}
		number++
		if err = l.submit(ctx, table, b, number); err != nil {
			break
		}
		committed += int64(b.len())
		b.reset()
	}
	if err == nil && b.len() > 0 {
		number++
		if err = l.submit(ctx, table, b, number); err == nil {
			committed += int64(b.len())
		}
	}
	if err != nil {
		l.stats.RecordFailure(table.Name, err)
		return committed, err
	}

	l.logger.Info("table loaded",
		zap.String("table", table.Name),
		zap.Int64("rows", committed),
		zap.Int("batches", number),
		zap.Duration("elapsed", time.Since(start)))
	return committed, nil
}

// submit runs one batch in its own transaction.
func (l *Loader) submit(ctx context.Context, table *engine.Table, b *batch, number int) error {
	loadErr := func(code string, cause error) error {
		return sberrors.NewLoadError(code, table.Name, number, b.firstID, b.endID, cause)
	}

	if err := ctx.Err(); err != nil {
		return loadErr(sberrors.CodeLoadCanceled, err)
	}
	if l.opts.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.BatchTimeout)
		defer cancel()
	}

	txn, err := l.engine.BeginTransaction(ctx)
	if err != nil {
		return loadErr(sberrors.CodeBatchBeginFailed, err)
	}

	if _, err := l.executor.Execute(ctx, txn, &b.stmt); err != nil {
		if abortErr := l.engine.AbortTransaction(txn); abortErr != nil {
			l.logger.Warn("abort failed",
				zap.String("table", table.Name),
				zap.Uint64("txn_id", txn.ID()),
				zap.Error(abortErr))
		}
		return loadErr(sberrors.CodeBatchInsertFailed, err)
	}

	if err := l.engine.CommitTransaction(txn); err != nil {
		return loadErr(sberrors.CodeBatchCommitFailed, err)
	}

	l.stats.RecordBatch(table.Name, b.stats)
	l.logger.Debug("finished writing batch",
		zap.String("table", table.Name),
		zap.Int("batch", number),
		zap.Int64("end_id", b.endID),
		zap.Uint64("txn_id", txn.ID()))
	return nil
}
