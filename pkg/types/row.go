// Package types provides core data types for the sortbench loader.
package types

// Row is a single generated tuple destined for LEFT_TABLE or RIGHT_TABLE.
// Rows are ephemeral: they live from generation until their batch is submitted.
type Row struct {
	// ID is the 0-based ordinal of the row within its table
	ID int64 `json:"id"`

	// SortKey is uniform-random in [0, 2^SortKeyBits)
	SortKey int64 `json:"sortkey"`

	// ShipDate is uniform-random in [0, ShipDateDays)
	ShipDate int64 `json:"shipdate"`
}

// Values returns the row in column order (id, sortkey, shipdate).
func (r Row) Values() []int64 {
	return []int64{r.ID, r.SortKey, r.ShipDate}
}

// BenchmarkResult is the outcome of a single run, appended to the summary log.
type BenchmarkResult struct {
	ScaleFactor     int   `json:"scale_factor"`
	ExecutionTimeMs int64 `json:"execution_time_ms"`
}
