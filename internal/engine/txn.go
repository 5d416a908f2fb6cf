package engine

import "sync/atomic"

// TxnStats is a point-in-time view of an engine's transaction counters.
type TxnStats struct {
	// Begun is the number of transactions started
	Begun uint64
	// Committed is the number of transactions committed
	Committed uint64
	// Aborted is the number of transactions aborted
	Aborted uint64
	// Active is the number of transactions currently open
	Active int64
	// PeakActive is the highest Active value observed
	PeakActive int64
}

// TxnTracker hands out transaction ids and counts open transactions.
// It is safe for concurrent use.
type TxnTracker struct {
	nextID     atomic.Uint64
	committed  atomic.Uint64
	aborted    atomic.Uint64
	active     atomic.Int64
	peakActive atomic.Int64
}

// Begin records a new transaction and returns its id. Ids start at 1.
func (t *TxnTracker) Begin() uint64 {
	id := t.nextID.Add(1)
	n := t.active.Add(1)
	for {
		peak := t.peakActive.Load()
		if n <= peak || t.peakActive.CompareAndSwap(peak, n) {
			break
		}
	}
	return id
}

// End records the end of a transaction.
func (t *TxnTracker) End(committed bool) {
	t.active.Add(-1)
	if committed {
		t.committed.Add(1)
	} else {
		t.aborted.Add(1)
	}
}

// Stats returns the current counters.
func (t *TxnTracker) Stats() TxnStats {
	return TxnStats{
		Begun:      t.nextID.Load(),
		Committed:  t.committed.Load(),
		Aborted:    t.aborted.Load(),
		Active:     t.active.Load(),
		PeakActive: t.peakActive.Load(),
	}
}
