package loader

import (
	"sync"

	"github.com/sortbench/sortbench/internal/executor"
	"github.com/sortbench/sortbench/internal/partition"
	"github.com/sortbench/sortbench/pkg/types"
)

// batch is the arena of one insert transaction: the statement, the flat value
// buffer its rows point into, and the id range it covers.
type batch struct {
	stmt    executor.InsertStatement
	values  []int64
	width   int
	firstID int64
	endID   int64
	stats   *partition.StatsTracker
}

func (b *batch) len() int {
	return len(b.stmt.Values)
}

// add copies row into the arena. The buffer is sized for the whole batch, so
// earlier rows are never moved.
func (b *batch) add(row types.Row) {
	if b.len() == 0 {
		b.firstID = row.ID
	}
	b.endID = row.ID + 1

	start := len(b.values)
	b.values = append(b.values, row.ID, row.SortKey, row.ShipDate)
	b.stmt.AddRow(b.values[start : start+b.width : start+b.width])
	b.stats.Update(row)
}

// reset empties the batch for the next transaction of the same table.
func (b *batch) reset() {
	b.stmt.Reset()
	b.values = b.values[:0]
	b.firstID, b.endID = 0, 0
	b.stats.Reset()
}

// batchPool recycles batch arenas across batches and tables.
type batchPool struct {
	pool sync.Pool
}

func newBatchPool() *batchPool {
	return &batchPool{pool: sync.Pool{
		New: func() any {
			return &batch{stats: partition.NewStatsTracker()}
		},
	}}
}

// get returns an empty batch bound to table with room for size rows.
func (p *batchPool) get(table executor.TableInfo, columns []string, size int) *batch {
	b := p.pool.Get().(*batch)
	b.width = len(columns)
	if cap(b.values) < size*b.width {
		b.values = make([]int64, 0, size*b.width)
	}
	if cap(b.stmt.Values) < size {
		b.stmt.Values = make([][]int64, 0, size)
	}
	b.stmt.Table = table
	b.stmt.Columns = columns
	return b
}

// put clears the statement's table, columns and values and returns the arena
// to the pool.
func (p *batchPool) put(b *batch) {
	b.reset()
	b.stmt.Table = executor.TableInfo{}
	b.stmt.Columns = nil
	b.width = 0
	p.pool.Put(b)
}
