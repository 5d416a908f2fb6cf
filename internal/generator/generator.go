// Package generator produces the synthetic rows of the sort benchmark tables.
package generator

import (
	"iter"
	"math/rand/v2"
	"sync/atomic"

	"github.com/sortbench/sortbench/pkg/types"
)

// Options control the value ranges and reproducibility of generated rows.
type Options struct {
	// SortKeyBits bounds sortkey to [0, 2^SortKeyBits)
	SortKeyBits int
	// ShipDateDays bounds shipdate to [0, ShipDateDays)
	ShipDateDays int64
	// Seed makes every Generate call reproducible; 0 seeds from the runtime
	Seed uint64
}

// Generator creates lazy row sequences. It is safe for concurrent use.
type Generator struct {
	sortKeyRange int64
	shipDateDays int64
	seed         uint64
	calls        atomic.Uint64
}

// New creates a generator. Out of range options fall back to the defaults of
// 24 sort key bits and 60 ship date days.
func New(opts Options) *Generator {
	if opts.SortKeyBits < 1 || opts.SortKeyBits > 62 {
		opts.SortKeyBits = 24
	}
	if opts.ShipDateDays <= 0 {
		opts.ShipDateDays = 60
	}
	return &Generator{
		sortKeyRange: int64(1) << opts.SortKeyBits,
		shipDateDays: opts.ShipDateDays,
		seed:         opts.Seed,
	}
}

// Total returns the number of rows Generate produces for the given sizes.
func Total(tableSize, scaleFactor int) int64 {
	if tableSize <= 0 || scaleFactor <= 0 {
		return 0
	}
	return int64(tableSize) * int64(scaleFactor)
}

// Generate returns tableSize*scaleFactor rows with ids 0..n-1 in order and
// uniformly random sortkey and shipdate. Nothing is materialized up front.
// Every range over the returned sequence yields the same rows.
func (g *Generator) Generate(tableSize, scaleFactor int) iter.Seq[types.Row] {
	n := Total(tableSize, scaleFactor)
	call := g.calls.Add(1)

	var s1, s2 uint64
	if g.seed != 0 {
		s1, s2 = g.seed, call
	} else {
		s1, s2 = rand.Uint64(), rand.Uint64()
	}

	sortKeyRange, shipDateDays := g.sortKeyRange, g.shipDateDays
	return func(yield func(types.Row) bool) {
		r := rand.New(rand.NewPCG(s1, s2))
		for id := int64(0); id < n; id++ {
			row := types.Row{
				ID:       id,
				SortKey:  r.Int64N(sortKeyRange),
				ShipDate: r.Int64N(shipDateDays),
			}
			if !yield(row) {
				return
			}
		}
	}
}
