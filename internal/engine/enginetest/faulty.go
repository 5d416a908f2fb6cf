package enginetest

import (
	"context"
	"errors"
	"sync"

	"github.com/sortbench/sortbench/internal/engine"
	"github.com/sortbench/sortbench/pkg/types"
)

// ErrInjected is the error returned by Faulty when a hook fires without its
// own error.
var ErrInjected = errors.New("injected failure")

// InsertCall records one Insert made through a Faulty engine.
type InsertCall struct {
	TxnID     uint64
	Table     string
	Partition int
	Rows      int
}

// Faulty wraps an engine and fails selected calls. Hooks receive the 1-based
// index of the call and return the error to inject, or nil to pass through.
type Faulty struct {
	engine.Engine

	FailBegin       func(n int) error
	FailInsert      func(n int) error
	FailCommit      func(n int) error
	FailCreateDB    func(n int) error
	FailCreateTable func(n int) error

	mu           sync.Mutex
	begins       int
	inserts      int
	commits      int
	createDBs    int
	createTables int
	insertCalls  []InsertCall
	commitOrder  []uint64
}

// NewFaulty wraps e.
func NewFaulty(e engine.Engine) *Faulty {
	return &Faulty{Engine: e}
}

func fire(hook func(int) error, n int) error {
	if hook == nil {
		return nil
	}
	return hook(n)
}

// FailOn returns a hook that fails only the nth call.
func FailOn(nth int) func(int) error {
	return func(n int) error {
		if n == nth {
			return ErrInjected
		}
		return nil
	}
}

func (f *Faulty) BeginTransaction(ctx context.Context) (engine.Txn, error) {
	f.mu.Lock()
	f.begins++
	n := f.begins
	f.mu.Unlock()
	if err := fire(f.FailBegin, n); err != nil {
		return nil, err
	}
	return f.Engine.BeginTransaction(ctx)
}

func (f *Faulty) CommitTransaction(txn engine.Txn) error {
	f.mu.Lock()
	f.commits++
	n := f.commits
	f.mu.Unlock()
	if err := fire(f.FailCommit, n); err != nil {
		// Release the underlying transaction the way a failed commit would.
		f.Engine.AbortTransaction(txn)
		return err
	}
	if err := f.Engine.CommitTransaction(txn); err != nil {
		return err
	}
	f.mu.Lock()
	f.commitOrder = append(f.commitOrder, txn.ID())
	f.mu.Unlock()
	return nil
}

func (f *Faulty) CreateDatabase(ctx context.Context, name string, txn engine.Txn) error {
	f.mu.Lock()
	f.createDBs++
	n := f.createDBs
	f.mu.Unlock()
	if err := fire(f.FailCreateDB, n); err != nil {
		return err
	}
	return f.Engine.CreateDatabase(ctx, name, txn)
}

func (f *Faulty) CreateTable(ctx context.Context, dbName, tableName string, schema types.Schema, txn engine.Txn, partitionCount int) error {
	f.mu.Lock()
	f.createTables++
	n := f.createTables
	f.mu.Unlock()
	if err := fire(f.FailCreateTable, n); err != nil {
		return err
	}
	return f.Engine.CreateTable(ctx, dbName, tableName, schema, txn, partitionCount)
}

func (f *Faulty) Insert(ctx context.Context, txn engine.Txn, table *engine.Table, partition int, rows [][]int64) error {
	f.mu.Lock()
	f.inserts++
	n := f.inserts
	f.insertCalls = append(f.insertCalls, InsertCall{TxnID: txn.ID(), Table: table.Name, Partition: partition, Rows: len(rows)})
	f.mu.Unlock()
	if err := fire(f.FailInsert, n); err != nil {
		return err
	}
	return f.Engine.Insert(ctx, txn, table, partition, rows)
}

// InsertCalls returns every Insert call seen, including failed ones.
func (f *Faulty) InsertCalls() []InsertCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]InsertCall(nil), f.insertCalls...)
}

// CommittedTxnIDs returns the ids of successfully committed transactions in
// commit order.
func (f *Faulty) CommittedTxnIDs() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.commitOrder...)
}
