// Package badger implements the engine contract on a Badger key-value store.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/sortbench/sortbench/internal/engine"
	"github.com/sortbench/sortbench/pkg/types"
)

// Kind is the name the engine is registered under.
const Kind = "badger"

// Badger refuses a transaction once its pending writes pass 15% of the
// memtable, counted in skiplist nodes of up to 96 bytes. A 64MB memtable
// allows about 100k row keys; MaxBatchRows leaves room for long names.
const (
	memTableSize = 64 << 20
	MaxBatchRows = 50000
)

func init() {
	engine.Register(Kind, func(dir string, logger *zap.Logger) (engine.Engine, error) {
		return Open(dir, logger)
	})
}

// Engine stores databases, tables and rows under prefixed keys of one Badger DB.
type Engine struct {
	db     *badger.DB
	dir    string
	logger *zap.Logger
	txns   engine.TxnTracker

	mu     sync.Mutex
	closed bool
}

type txn struct {
	id   uint64
	txn  *badger.Txn
	done bool
}

func (t *txn) ID() uint64 { return t.id }

type tableMeta struct {
	Schema         types.Schema `json:"schema"`
	PartitionCount int          `json:"partition_count"`
	CreatedAt      int64        `json:"created_at"`
}

// Open opens or creates a Badger store in dir/badger.
func Open(dir string, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := filepath.Join(dir, "badger")
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("badger: failed to create directory: %w", err)
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.MemTableSize = memTableSize
	opts.ValueThreshold = 1 << 10 // rows are tiny; keep them in the LSM tree
	opts.NumVersionsToKeep = 1

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: failed to open store: %w", err)
	}
	logger.Debug("badger engine opened", zap.String("path", path))
	return &Engine{db: db, dir: path, logger: logger}, nil
}

// BeginTransaction opens a read-write Badger transaction.
func (e *Engine) BeginTransaction(ctx context.Context) (engine.Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := e.txns.Begin()
	e.logger.Debug("transaction begun", zap.Uint64("txn_id", id))
	return &txn{id: id, txn: e.db.NewTransaction(true)}, nil
}

// CommitTransaction commits txn. The transaction is finished even if the
// commit fails.
func (e *Engine) CommitTransaction(t engine.Txn) error {
	tx, err := e.live(t)
	if err != nil {
		return err
	}
	tx.done = true
	if err := tx.txn.Commit(); err != nil {
		e.txns.End(false)
		return fmt.Errorf("badger: failed to commit transaction %d: %w", tx.id, err)
	}
	e.txns.End(true)
	e.logger.Debug("transaction committed", zap.Uint64("txn_id", tx.id))
	return nil
}

// AbortTransaction discards txn.
func (e *Engine) AbortTransaction(t engine.Txn) error {
	tx, err := e.live(t)
	if err != nil {
		return err
	}
	tx.done = true
	tx.txn.Discard()
	e.txns.End(false)
	e.logger.Debug("transaction aborted", zap.Uint64("txn_id", tx.id))
	return nil
}

func (e *Engine) live(t engine.Txn) (*txn, error) {
	tx, ok := t.(*txn)
	if !ok || tx == nil {
		return nil, engine.ErrForeignTxn
	}
	if tx.done {
		return nil, engine.ErrTxnDone
	}
	return tx, nil
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateDatabase writes the database marker within txn.
func (e *Engine) CreateDatabase(ctx context.Context, name string, t engine.Txn) error {
	if err := engine.ValidateName(name); err != nil {
		return err
	}
	tx, err := e.live(t)
	if err != nil {
		return err
	}
	key := databaseKey(name)
	found, err := exists(tx.txn, key)
	if err != nil {
		return fmt.Errorf("badger: failed to look up database %s: %w", name, err)
	}
	if found {
		return fmt.Errorf("badger: %w: %s", engine.ErrDatabaseExists, name)
	}
	created := encodeRow([]int64{time.Now().Unix()})
	if err := tx.txn.Set(key, created); err != nil {
		return fmt.Errorf("badger: failed to create database %s: %w", name, err)
	}
	return nil
}

// DropDatabase deletes every key of the database.
func (e *Engine) DropDatabase(ctx context.Context, name string) error {
	if err := e.db.DropPrefix(rowsOfDatabase(name), tablesOfDatabase(name)); err != nil {
		return fmt.Errorf("badger: failed to drop data of %s: %w", name, err)
	}
	err := e.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(databaseKey(name))
	})
	if err != nil {
		return fmt.Errorf("badger: failed to drop database %s: %w", name, err)
	}
	e.logger.Debug("database dropped", zap.String("database", name))
	return nil
}

// CreateTable writes the table metadata within txn.
func (e *Engine) CreateTable(ctx context.Context, dbName, tableName string, schema types.Schema, t engine.Txn, partitionCount int) error {
	if err := engine.ValidateName(tableName); err != nil {
		return err
	}
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("badger: invalid schema for %s: %w", tableName, err)
	}
	if partitionCount < 1 {
		return fmt.Errorf("badger: %w: partition count %d", engine.ErrInvalidPartition, partitionCount)
	}
	tx, err := e.live(t)
	if err != nil {
		return err
	}

	found, err := exists(tx.txn, databaseKey(dbName))
	if err != nil {
		return fmt.Errorf("badger: failed to look up database %s: %w", dbName, err)
	}
	if !found {
		return fmt.Errorf("badger: %w: %s", engine.ErrDatabaseNotFound, dbName)
	}

	key := tableKey(dbName, tableName)
	found, err = exists(tx.txn, key)
	if err != nil {
		return fmt.Errorf("badger: failed to look up table %s: %w", tableName, err)
	}
	if found {
		return fmt.Errorf("badger: %w: %s.%s", engine.ErrTableExists, dbName, tableName)
	}

	meta, err := json.Marshal(tableMeta{Schema: schema, PartitionCount: partitionCount, CreatedAt: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("badger: failed to encode table metadata: %w", err)
	}
	if err := tx.txn.Set(key, meta); err != nil {
		return fmt.Errorf("badger: failed to create table %s: %w", tableName, err)
	}
	return nil
}

// GetTableWithName resolves a committed table.
func (e *Engine) GetTableWithName(ctx context.Context, dbName, tableName string) (*engine.Table, error) {
	var meta tableMeta
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tableKey(dbName, tableName))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("badger: %w: %s.%s", engine.ErrTableNotFound, dbName, tableName)
	}
	if err != nil {
		return nil, fmt.Errorf("badger: failed to look up table %s.%s: %w", dbName, tableName, err)
	}
	return &engine.Table{
		DatabaseName:   dbName,
		Name:           tableName,
		Schema:         meta.Schema,
		PartitionCount: meta.PartitionCount,
	}, nil
}

// ListDatabases returns committed database names, sorted.
func (e *Engine) ListDatabases(ctx context.Context) ([]string, error) {
	return e.listSuffixes(ctx, []byte(databasePrefix))
}

// ListTables returns the committed table names of dbName, sorted.
func (e *Engine) ListTables(ctx context.Context, dbName string) ([]string, error) {
	return e.listSuffixes(ctx, tablesOfDatabase(dbName))
}

func (e *Engine) listSuffixes(ctx context.Context, prefix []byte) ([]string, error) {
	names := []string{}
	err := e.scanKeys(ctx, prefix, func(key []byte) error {
		names = append(names, string(key[len(prefix):]))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// scanKeys calls fn for every key under prefix, in key order, without
// fetching values.
func (e *Engine) scanKeys(ctx context.Context, prefix []byte, fn func(key []byte) error) error {
	return e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(it.Item().Key()); err != nil {
				return err
			}
		}
		return nil
	})
}

// Insert writes rows into one partition within txn. An id already present in
// the partition, committed or pending in txn, is rejected.
func (e *Engine) Insert(ctx context.Context, t engine.Txn, table *engine.Table, partition int, rows [][]int64) error {
	if err := engine.CheckInsert(table, partition, rows); err != nil {
		return err
	}
	tx, err := e.live(t)
	if err != nil {
		return err
	}

	prefix := rowsOfPartition(table.DatabaseName, table.Name, partition)
	for i, row := range rows {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		key := rowKey(prefix, row[0])
		found, err := exists(tx.txn, key)
		if err != nil {
			return fmt.Errorf("badger: failed to check key in %s: %w", table, err)
		}
		if found {
			return fmt.Errorf("badger: %w: %s id %d", engine.ErrDuplicateKey, table, row[0])
		}
		if err := tx.txn.Set(key, encodeRow(row)); err != nil {
			return fmt.Errorf("badger: failed to insert into %s: %w", table, err)
		}
	}
	return nil
}

// MaxBatchRows returns the most rows one transaction can insert.
func (e *Engine) MaxBatchRows() int {
	return MaxBatchRows
}

// CountRows counts committed row keys of the table.
func (e *Engine) CountRows(ctx context.Context, table *engine.Table) (int64, error) {
	var n int64
	err := e.scanKeys(ctx, rowsOfTable(table.DatabaseName, table.Name), func([]byte) error {
		n++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger: failed to count %s: %w", table, err)
	}
	return n, nil
}

// ScanIDs returns the ids of all committed rows, ascending.
func (e *Engine) ScanIDs(ctx context.Context, table *engine.Table) ([]int64, error) {
	var ids []int64
	err := e.scanKeys(ctx, rowsOfTable(table.DatabaseName, table.Name), func(key []byte) error {
		id, err := idFromRowKey(key)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: failed to scan %s: %w", table, err)
	}
	slices.Sort(ids)
	return ids, nil
}

// ScanRows returns the committed rows of one partition in id order.
func (e *Engine) ScanRows(ctx context.Context, table *engine.Table, partition int) ([][]int64, error) {
	var rows [][]int64
	err := e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = rowsOfPartition(table.DatabaseName, table.Name, partition)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			row, err := decodeRow(val)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: failed to scan partition %d of %s: %w", partition, table, err)
	}
	return rows, nil
}

// Snapshot writes a full Badger backup to w.
func (e *Engine) Snapshot(ctx context.Context, w io.Writer) error {
	if _, err := e.db.Backup(w, 0); err != nil {
		return fmt.Errorf("badger: failed to back up store: %w", err)
	}
	return nil
}

// TxnStats reports transaction counters.
func (e *Engine) TxnStats() engine.TxnStats {
	return e.txns.Stats()
}

// Close closes the store.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("badger: failed to close store: %w", err)
	}
	return nil
}

var _ engine.Engine = (*Engine)(nil)
