// Package schema creates the benchmark database and its two tables.
package schema

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sortbench/sortbench/internal/engine"
	sberrors "github.com/sortbench/sortbench/internal/errors"
	"github.com/sortbench/sortbench/pkg/types"
)

// Table names and column prefixes of the benchmark tables.
const (
	LeftTableName  = "LEFT_TABLE"
	RightTableName = "RIGHT_TABLE"
	LeftPrefix     = "l_"
	RightPrefix    = "r_"
)

// State holds the database retained by a run and its table handles. It is
// owned by the run; the provisioner only replaces its contents.
type State struct {
	DatabaseName string
	Left         *engine.Table
	Right        *engine.Table
}

// Clear forgets the retained database and handles.
func (s *State) Clear() {
	s.DatabaseName = ""
	s.Left = nil
	s.Right = nil
}

// Provisioner creates a clean database with LEFT_TABLE and RIGHT_TABLE.
type Provisioner struct {
	engine     engine.Engine
	database   string
	partitions int
	logger     *zap.Logger
}

// NewProvisioner creates a provisioner for database with partitions per table.
func NewProvisioner(eng engine.Engine, database string, partitions int, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if partitions < 1 {
		partitions = 1
	}
	return &Provisioner{engine: eng, database: database, partitions: partitions, logger: logger}
}

// Descriptors returns the descriptors of the two tables in creation order.
func (p *Provisioner) Descriptors() []types.TableDescriptor {
	return []types.TableDescriptor{
		{Name: LeftTableName, DatabaseName: p.database, Schema: types.SortBenchSchema(LeftPrefix)},
		{Name: RightTableName, DatabaseName: p.database, Schema: types.SortBenchSchema(RightPrefix)},
	}
}

// Provision replaces any previously retained database with a fresh one and
// creates both tables. Each DDL step runs in its own committed transaction.
// On success state holds the new database and handles.
func (p *Provisioner) Provision(ctx context.Context, state *State) (left, right *engine.Table, err error) {
	stale := []string{p.database}
	if state.DatabaseName != "" && state.DatabaseName != p.database {
		stale = append(stale, state.DatabaseName)
	}
	if state.DatabaseName != "" {
		p.logger.Info("releasing retained database", zap.String("database", state.DatabaseName))
	}
	state.Clear()

	for _, name := range stale {
		if err := p.engine.DropDatabase(ctx, name); err != nil {
			return nil, nil, sberrors.NewSchemaError(sberrors.CodeDatabaseDropFailed,
				fmt.Sprintf("failed to drop database %s", name), err,
			).WithDetails(map[string]interface{}{"database": name})
		}
	}

	err = p.inTxn(ctx, func(txn engine.Txn) error {
		return p.engine.CreateDatabase(ctx, p.database, txn)
	})
	if err != nil {
		return nil, nil, sberrors.NewSchemaError(sberrors.CodeDatabaseCreateFailed,
			fmt.Sprintf("failed to create database %s", p.database), err,
		).WithDetails(map[string]interface{}{"database": p.database})
	}
	state.DatabaseName = p.database
	p.logger.Debug("database created", zap.String("database", p.database))

	handles := make([]*engine.Table, 0, 2)
	for _, desc := range p.Descriptors() {
		table, err := p.createTable(ctx, desc)
		if err != nil {
			return nil, nil, err
		}
		handles = append(handles, table)
	}

	state.Left, state.Right = handles[0], handles[1]
	p.logger.Info("schema provisioned",
		zap.String("database", p.database),
		zap.Int("partitions", p.partitions))
	return state.Left, state.Right, nil
}

func (p *Provisioner) createTable(ctx context.Context, desc types.TableDescriptor) (*engine.Table, error) {
	details := map[string]interface{}{"database": desc.DatabaseName, "table": desc.Name}

	err := p.inTxn(ctx, func(txn engine.Txn) error {
		return p.engine.CreateTable(ctx, desc.DatabaseName, desc.Name, desc.Schema, txn, p.partitions)
	})
	if err != nil {
		return nil, sberrors.NewSchemaError(sberrors.CodeTableCreateFailed,
			fmt.Sprintf("failed to create table %s.%s", desc.DatabaseName, desc.Name), err,
		).WithDetails(details)
	}

	table, err := p.engine.GetTableWithName(ctx, desc.DatabaseName, desc.Name)
	if err != nil {
		return nil, sberrors.NewSchemaError(sberrors.CodeTableNotFound,
			fmt.Sprintf("table %s.%s not found after creation", desc.DatabaseName, desc.Name), err,
		).WithDetails(details)
	}
	p.logger.Debug("table created",
		zap.String("database", desc.DatabaseName),
		zap.String("table", desc.Name),
		zap.Strings("columns", desc.Schema.ColumnNames()))
	return table, nil
}

// inTxn runs fn in a new transaction, committing on success and aborting on
// failure.
func (p *Provisioner) inTxn(ctx context.Context, fn func(engine.Txn) error) error {
	txn, err := p.engine.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("schema: failed to begin transaction: %w", err)
	}
	if err := fn(txn); err != nil {
		if abortErr := p.engine.AbortTransaction(txn); abortErr != nil {
			p.logger.Warn("abort failed", zap.Uint64("txn_id", txn.ID()), zap.Error(abortErr))
		}
		return err
	}
	if err := p.engine.CommitTransaction(txn); err != nil {
		return fmt.Errorf("schema: failed to commit transaction %d: %w", txn.ID(), err)
	}
	return nil
}
