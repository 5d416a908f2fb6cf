// Package observability tracks per-table load statistics and renders the
// end-of-run report.
package observability

import (
	"sync"
	"time"

	"github.com/sortbench/sortbench/internal/partition"
)

// Table load states.
const (
	StatusPending  = "pending"
	StatusLoading  = "loading"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// TableStats is a copy of the statistics of one table.
type TableStats struct {
	Table         string
	Status        string
	Batches       int64
	Rows          int64
	FailedBatches int64
	LastError     string
	// Elapsed is the wall time from StartTable to FinishTable, or until now
	// while the table is loading
	Elapsed  time.Duration
	SortKey  *partition.MinMax
	ShipDate *partition.MinMax
}

// RowsPerSecond returns the committed row throughput.
func (t TableStats) RowsPerSecond() float64 {
	if t.Elapsed <= 0 {
		return 0
	}
	return float64(t.Rows) / t.Elapsed.Seconds()
}

type tableEntry struct {
	status   string
	batches  int64
	failed   int64
	lastErr  string
	started  time.Time
	finished time.Time
	values   *partition.StatsTracker
}

// LoadStats records committed batches per table. It is safe for concurrent use.
type LoadStats struct {
	mu     sync.RWMutex
	tables map[string]*tableEntry
	order  []string
	now    func() time.Time
}

// NewLoadStats creates an empty statistics record.
func NewLoadStats() *LoadStats {
	return &LoadStats{
		tables: make(map[string]*tableEntry),
		now:    time.Now,
	}
}

// entry returns the entry for table, creating it. Must be called with the
// lock held.
func (s *LoadStats) entry(table string) *tableEntry {
	e, ok := s.tables[table]
	if !ok {
		e = &tableEntry{status: StatusPending, values: partition.NewStatsTracker()}
		s.tables[table] = e
		s.order = append(s.order, table)
	}
	return e
}

// StartTable marks table as loading and starts its clock.
func (s *LoadStats) StartTable(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(table)
	e.status = StatusLoading
	e.started = s.now()
	e.finished = time.Time{}
}

// RecordBatch adds one committed batch and its column statistics.
func (s *LoadStats) RecordBatch(table string, batch *partition.StatsTracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(table)
	e.batches++
	e.values.Merge(batch)
}

// RecordFailure records a failed batch and marks the table failed.
func (s *LoadStats) RecordFailure(table string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(table)
	e.failed++
	e.status = StatusFailed
	if err != nil {
		e.lastErr = err.Error()
	}
	e.finished = s.now()
}

// FinishTable stops the table's clock. A failed table stays failed.
func (s *LoadStats) FinishTable(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(table)
	if e.status != StatusFailed {
		e.status = StatusComplete
	}
	e.finished = s.now()
}

// Table returns the statistics of one table.
func (s *LoadStats) Table(table string) (TableStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tables[table]
	if !ok {
		return TableStats{}, false
	}
	return s.copyEntry(table, e), true
}

// Snapshot returns the statistics of every table in the order they were first seen.
func (s *LoadStats) Snapshot() []TableStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TableStats, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.copyEntry(name, s.tables[name]))
	}
	return out
}

// TotalRows returns the committed rows across all tables.
func (s *LoadStats) TotalRows() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.tables {
		n += e.values.RowCount()
	}
	return n
}

func (s *LoadStats) copyEntry(name string, e *tableEntry) TableStats {
	ts := TableStats{
		Table:         name,
		Status:        e.status,
		Batches:       e.batches,
		Rows:          e.values.RowCount(),
		FailedBatches: e.failed,
		LastError:     e.lastErr,
	}
	if !e.started.IsZero() {
		end := e.finished
		if end.IsZero() {
			end = s.now()
		}
		ts.Elapsed = end.Sub(e.started)
	}
	if mm := e.values.SortKey(); mm != nil {
		cp := *mm
		ts.SortKey = &cp
	}
	if mm := e.values.ShipDate(); mm != nil {
		cp := *mm
		ts.ShipDate = &cp
	}
	return ts
}
