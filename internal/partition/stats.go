package partition

import (
	"github.com/sortbench/sortbench/pkg/types"
)

// MinMax holds min/max values for a column.
type MinMax struct {
	Min int64
	Max int64
}

// StatsTracker tracks min/max statistics for the sortbench columns while a
// table is loaded.
type StatsTracker struct {
	rowCount int64

	id       *MinMax
	sortKey  *MinMax
	shipDate *MinMax
}

// NewStatsTracker creates a new statistics tracker.
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{}
}

// Update updates statistics with a new row.
func (s *StatsTracker) Update(row types.Row) {
	s.rowCount++
	s.id = widen(s.id, row.ID)
	s.sortKey = widen(s.sortKey, row.SortKey)
	s.shipDate = widen(s.shipDate, row.ShipDate)
}

func widen(mm *MinMax, v int64) *MinMax {
	if mm == nil {
		return &MinMax{Min: v, Max: v}
	}
	if v < mm.Min {
		mm.Min = v
	}
	if v > mm.Max {
		mm.Max = v
	}
	return mm
}

// GetMinMaxStats returns the computed min/max statistics keyed by column suffix
// (id, sortkey, shipdate). Columns with no rows are absent.
func (s *StatsTracker) GetMinMaxStats() map[string]MinMax {
	stats := make(map[string]MinMax, 3)
	if s.id != nil {
		stats["id"] = *s.id
	}
	if s.sortKey != nil {
		stats["sortkey"] = *s.sortKey
	}
	if s.shipDate != nil {
		stats["shipdate"] = *s.shipDate
	}
	return stats
}

// RowCount returns the number of rows tracked.
func (s *StatsTracker) RowCount() int64 {
	return s.rowCount
}

// SortKey returns the sortkey range, or nil before the first row.
func (s *StatsTracker) SortKey() *MinMax {
	return s.sortKey
}

// ShipDate returns the shipdate range, or nil before the first row.
func (s *StatsTracker) ShipDate() *MinMax {
	return s.shipDate
}

// Merge folds the statistics of other into s.
func (s *StatsTracker) Merge(other *StatsTracker) {
	if other == nil || other.rowCount == 0 {
		return
	}
	s.rowCount += other.rowCount
	s.id = mergeRange(s.id, other.id)
	s.sortKey = mergeRange(s.sortKey, other.sortKey)
	s.shipDate = mergeRange(s.shipDate, other.shipDate)
}

func mergeRange(dst, src *MinMax) *MinMax {
	if src == nil {
		return dst
	}
	dst = widen(dst, src.Min)
	return widen(dst, src.Max)
}

// Reset clears all statistics.
func (s *StatsTracker) Reset() {
	*s = StatsTracker{}
}
