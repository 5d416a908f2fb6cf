// Package sqlite implements the engine contract on a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/sortbench/sortbench/internal/engine"
	"github.com/sortbench/sortbench/pkg/types"
)

// Kind is the name the engine is registered under.
const Kind = "sqlite"

// FileName is the database file created inside the engine directory.
const FileName = "sortbench.db"

func init() {
	engine.Register(Kind, func(dir string, logger *zap.Logger) (engine.Engine, error) {
		return Open(dir, logger)
	})
}

// Engine stores every database of a run in one SQLite file. Writes go through a
// single connection; catalog lookups and scans use a read-only pool and only
// see committed data.
type Engine struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool
	path   string
	logger *zap.Logger
	txns   engine.TxnTracker

	mu     sync.Mutex
	closed bool
}

type txn struct {
	id    uint64
	tx    *sql.Tx
	done  bool
	stmts map[string]*sql.Stmt
}

func (t *txn) ID() uint64 { return t.id }

// Open opens or creates the engine file under dir.
func Open(dir string, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("sqlite: failed to create directory: %w", err)
	}
	path := filepath.Join(dir, FileName)

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range CatalogSchemaSQL() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: failed to initialize catalog: %w", err)
		}
	}

	readDB, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	logger.Debug("sqlite engine opened", zap.String("path", path))
	return &Engine{db: db, readDB: readDB, path: path, logger: logger}, nil
}

// Path returns the database file path.
func (e *Engine) Path() string {
	return e.path
}

// BeginTransaction opens a transaction on the write connection.
func (e *Engine) BeginTransaction(ctx context.Context) (engine.Txn, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	id := e.txns.Begin()
	e.logger.Debug("transaction begun", zap.Uint64("txn_id", id))
	return &txn{id: id, tx: tx, stmts: make(map[string]*sql.Stmt)}, nil
}

// CommitTransaction commits txn. The transaction is finished even if the
// commit fails.
func (e *Engine) CommitTransaction(t engine.Txn) error {
	tx, err := e.live(t)
	if err != nil {
		return err
	}
	tx.done = true
	if err := tx.tx.Commit(); err != nil {
		e.txns.End(false)
		return fmt.Errorf("sqlite: failed to commit transaction %d: %w", tx.id, err)
	}
	e.txns.End(true)
	e.logger.Debug("transaction committed", zap.Uint64("txn_id", tx.id))
	return nil
}

// AbortTransaction rolls txn back.
func (e *Engine) AbortTransaction(t engine.Txn) error {
	tx, err := e.live(t)
	if err != nil {
		return err
	}
	tx.done = true
	e.txns.End(false)
	if err := tx.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("sqlite: failed to abort transaction %d: %w", tx.id, err)
	}
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

// CreateDatabase registers a database within txn.
func (e *Engine) CreateDatabase(ctx context.Context, name string, t engine.Txn) error {
	if err := engine.ValidateName(name); err != nil {
		return err
	}
	tx, err := e.live(t)
	if err != nil {
		return err
	}
	_, err = tx.tx.ExecContext(ctx,
		"INSERT INTO _sortbench_databases (name, created_at) VALUES (?, ?)",
		name, time.Now().Unix(),
	)
	if isConstraint(err) {
		return fmt.Errorf("sqlite: %w: %s", engine.ErrDatabaseExists, name)
	}
	if err != nil {
		return fmt.Errorf("sqlite: failed to create database %s: %w", name, err)
	}
	return nil
}

// DropDatabase removes a database, its catalog entries and its partition tables.
func (e *Engine) DropDatabase(ctx context.Context, name string) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin drop: %w", err)
	}
	defer tx.Rollback()

	type tableRef struct {
		name       string
		partitions int
	}
	rows, err := tx.QueryContext(ctx,
		"SELECT table_name, partition_count FROM _sortbench_tables WHERE database_name = ?", name)
	if err != nil {
		return fmt.Errorf("sqlite: failed to list tables of %s: %w", name, err)
	}
	var tables []tableRef
	for rows.Next() {
		var ref tableRef
		if err := rows.Scan(&ref.name, &ref.partitions); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite: failed to scan table: %w", err)
		}
		tables = append(tables, ref)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, ref := range tables {
		for p := 0; p < ref.partitions; p++ {
			stmt := "DROP TABLE IF EXISTS " + quoteIdent(PartitionTableName(name, ref.name, p))
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("sqlite: failed to drop partition table: %w", err)
			}
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM _sortbench_tables WHERE database_name = ?", name); err != nil {
		return fmt.Errorf("sqlite: failed to delete table entries: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM _sortbench_databases WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete database entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit drop of %s: %w", name, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		e.logger.Debug("database dropped", zap.String("database", name), zap.Int("tables", len(tables)))
	}
	return nil
}

// CreateTable registers a table and creates its partition tables within txn.
func (e *Engine) CreateTable(ctx context.Context, dbName, tableName string, schema types.Schema, t engine.Txn, partitionCount int) error {
	if err := engine.ValidateName(tableName); err != nil {
		return err
	}
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("sqlite: invalid schema for %s: %w", tableName, err)
	}
	for _, col := range schema.Columns {
		if err := engine.ValidateName(col.Name); err != nil {
			return err
		}
	}
	if partitionCount < 1 {
		return fmt.Errorf("sqlite: %w: partition count %d", engine.ErrInvalidPartition, partitionCount)
	}
	tx, err := e.live(t)
	if err != nil {
		return err
	}

	var exists int
	err = tx.tx.QueryRowContext(ctx, "SELECT 1 FROM _sortbench_databases WHERE name = ?", dbName).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("sqlite: %w: %s", engine.ErrDatabaseNotFound, dbName)
	}
	if err != nil {
		return fmt.Errorf("sqlite: failed to look up database %s: %w", dbName, err)
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode schema: %w", err)
	}
	_, err = tx.tx.ExecContext(ctx,
		`INSERT INTO _sortbench_tables (database_name, table_name, partition_count, schema_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		dbName, tableName, partitionCount, string(schemaJSON), time.Now().Unix(),
	)
	if isConstraint(err) {
		return fmt.Errorf("sqlite: %w: %s.%s", engine.ErrTableExists, dbName, tableName)
	}
	if err != nil {
		return fmt.Errorf("sqlite: failed to register table %s: %w", tableName, err)
	}

	for p := 0; p < partitionCount; p++ {
		ddl := createPartitionSQL(PartitionTableName(dbName, tableName, p), schema)
		if _, err := tx.tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("sqlite: failed to create partition %d of %s: %w", p, tableName, err)
		}
	}
	return nil
}

// GetTableWithName resolves a committed table.
func (e *Engine) GetTableWithName(ctx context.Context, dbName, tableName string) (*engine.Table, error) {
	var (
		partitions int
		schemaJSON string
	)
	err := e.readDB.QueryRowContext(ctx,
		"SELECT partition_count, schema_json FROM _sortbench_tables WHERE database_name = ? AND table_name = ?",
		dbName, tableName,
	).Scan(&partitions, &schemaJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sqlite: %w: %s.%s", engine.ErrTableNotFound, dbName, tableName)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to look up table %s.%s: %w", dbName, tableName, err)
	}

	var schema types.Schema
	if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
		return nil, fmt.Errorf("sqlite: corrupt schema for %s.%s: %w", dbName, tableName, err)
	}
	return &engine.Table{
		DatabaseName:   dbName,
		Name:           tableName,
		Schema:         schema,
		PartitionCount: partitions,
	}, nil
}

// ListDatabases returns committed database names, sorted.
func (e *Engine) ListDatabases(ctx context.Context) ([]string, error) {
	return e.queryNames(ctx, "SELECT name FROM _sortbench_databases ORDER BY name")
}

// ListTables returns the committed table names of dbName, sorted.
func (e *Engine) ListTables(ctx context.Context, dbName string) ([]string, error) {
	return e.queryNames(ctx,
		"SELECT table_name FROM _sortbench_tables WHERE database_name = ? ORDER BY table_name", dbName)
}

func (e *Engine) queryNames(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := e.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query failed: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Insert writes rows into one partition table within txn.
func (e *Engine) Insert(ctx context.Context, t engine.Txn, table *engine.Table, partition int, rows [][]int64) error {
	if err := engine.CheckInsert(table, partition, rows); err != nil {
		return err
	}
	tx, err := e.live(t)
	if err != nil {
		return err
	}

	physical := PartitionTableName(table.DatabaseName, table.Name, partition)
	stmt, ok := tx.stmts[physical]
	if !ok {
		stmt, err = tx.tx.PrepareContext(ctx, insertSQL(physical, table.Schema))
		if err != nil {
			return fmt.Errorf("sqlite: failed to prepare insert into %s: %w", physical, err)
		}
		tx.stmts[physical] = stmt
	}

	args := make([]any, len(table.Schema.Columns))
	for _, row := range rows {
		for i, v := range row {
			args[i] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			if isConstraint(err) {
				return fmt.Errorf("sqlite: %w: %s id %d", engine.ErrDuplicateKey, table, row[0])
			}
			return fmt.Errorf("sqlite: failed to insert into %s: %w", physical, err)
		}
	}
	return nil
}

// CountRows counts committed rows across all partitions.
func (e *Engine) CountRows(ctx context.Context, table *engine.Table) (int64, error) {
	var total int64
	for p := 0; p < table.PartitionCount; p++ {
		var n int64
		q := "SELECT COUNT(*) FROM " + quoteIdent(PartitionTableName(table.DatabaseName, table.Name, p))
		if err := e.readDB.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return 0, fmt.Errorf("sqlite: failed to count partition %d of %s: %w", p, table, err)
		}
		total += n
	}
	return total, nil
}

// ScanIDs returns the first-column values of all committed rows, ascending.
func (e *Engine) ScanIDs(ctx context.Context, table *engine.Table) ([]int64, error) {
	if len(table.Schema.Columns) == 0 {
		return nil, fmt.Errorf("sqlite: table %s has no columns", table)
	}
	idCol := quoteIdent(table.Schema.Columns[0].Name)
	var ids []int64
	for p := 0; p < table.PartitionCount; p++ {
		q := fmt.Sprintf("SELECT %s FROM %s", idCol,
			quoteIdent(PartitionTableName(table.DatabaseName, table.Name, p)))
		rows, err := e.readDB.QueryContext(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan partition %d of %s: %w", p, table, err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			ids = append(ids, id)
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Snapshot writes a compacted copy of the database file to w.
func (e *Engine) Snapshot(ctx context.Context, w io.Writer) error {
	tmp, err := os.CreateTemp(filepath.Dir(e.path), "snapshot-*.db")
	if err != nil {
		return fmt.Errorf("sqlite: failed to create snapshot file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	os.Remove(tmpPath) // VACUUM INTO requires the target not to exist
	defer os.Remove(tmpPath)

	if _, err := e.db.ExecContext(ctx, "VACUUM INTO ?", tmpPath); err != nil {
		return fmt.Errorf("sqlite: failed to snapshot database: %w", err)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("sqlite: failed to open snapshot: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("sqlite: failed to copy snapshot: %w", err)
	}
	return nil
}

// TxnStats reports transaction counters.
func (e *Engine) TxnStats() engine.TxnStats {
	return e.txns.Stats()
}

// Close closes the read pool, then the write connection.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	if err := e.readDB.Close(); err != nil {
		e.db.Close()
		return fmt.Errorf("sqlite: failed to close read database: %w", err)
	}
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("sqlite: failed to close database: %w", err)
	}
	return nil
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

var _ engine.Engine = (*Engine)(nil)
