package partition

import (
	"encoding/binary"
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/sortbench/sortbench/pkg/types"
)

// Router determines the partition of a row inside a table from its id.
type Router struct {
	strategy   types.PartitionStrategy
	count      int
	rangeWidth int64
}

// NewRouter creates a router for a table expected to hold totalRows rows.
// totalRows is only used by the range strategy.
func NewRouter(config types.PartitionConfig, totalRows int64) (*Router, error) {
	if err := validateConfig(config, totalRows); err != nil {
		return nil, err
	}
	r := &Router{strategy: config.Strategy, count: config.Count}
	if r.strategy == types.StrategyRange {
		r.rangeWidth = (totalRows + int64(config.Count) - 1) / int64(config.Count)
		if r.rangeWidth == 0 {
			r.rangeWidth = 1
		}
	}
	return r, nil
}

// Count returns the number of partitions.
func (r *Router) Count() int {
	return r.count
}

// Route computes the partition of a single row id.
func (r *Router) Route(id int64) int {
	if r.count == 1 {
		return 0
	}
	switch r.strategy {
	case types.StrategyRange:
		return routeByRange(id, r.rangeWidth, r.count)
	default:
		return routeByHash(id, r.count)
	}
}

// RouteRows groups rows by partition. idColumn is the index of the id value in
// each row. The result has one slot per partition; empty partitions are nil.
func (r *Router) RouteRows(rows [][]int64, idColumn int) ([][][]int64, error) {
	groups := make([][][]int64, r.count)
	if r.count == 1 {
		groups[0] = rows
		return groups, nil
	}
	for i, row := range rows {
		if idColumn < 0 || idColumn >= len(row) {
			return nil, fmt.Errorf("routing: row %d has no column %d", i, idColumn)
		}
		p := r.Route(row[idColumn])
		groups[p] = append(groups[p], row)
	}
	return groups, nil
}

// routeByRange assigns contiguous id ranges of the given width; ids past the
// last range land in the last partition.
func routeByRange(id, width int64, count int) int {
	if id < 0 {
		return 0
	}
	p := id / width
	if p >= int64(count) {
		return count - 1
	}
	return int(p)
}

// routeByHash computes murmur3 over the big-endian id.
func routeByHash(id int64, count int) int {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return int(murmur3.Sum64(b[:]) % uint64(count))
}

func validateConfig(config types.PartitionConfig, totalRows int64) error {
	if config.Count <= 0 {
		return fmt.Errorf("routing: partition count must be > 0, got %d", config.Count)
	}
	switch config.Strategy {
	case types.StrategyHash:
	case types.StrategyRange:
		if totalRows < 0 {
			return fmt.Errorf("routing: total rows must be >= 0 for range routing, got %d", totalRows)
		}
	default:
		return fmt.Errorf("routing: unsupported strategy %q", config.Strategy)
	}
	return nil
}
