// Package app wires the sortbench components into one benchmark run.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sortbench/sortbench/internal/archive"
	"github.com/sortbench/sortbench/internal/config"
	"github.com/sortbench/sortbench/internal/engine"
	_ "github.com/sortbench/sortbench/internal/engine/badger"
	_ "github.com/sortbench/sortbench/internal/engine/sqlite"
	sberrors "github.com/sortbench/sortbench/internal/errors"
	"github.com/sortbench/sortbench/internal/executor"
	"github.com/sortbench/sortbench/internal/generator"
	"github.com/sortbench/sortbench/internal/loader"
	"github.com/sortbench/sortbench/internal/observability"
	"github.com/sortbench/sortbench/internal/partition"
	"github.com/sortbench/sortbench/internal/recorder"
	"github.com/sortbench/sortbench/internal/schema"
	"github.com/sortbench/sortbench/pkg/types"
)

// LoadContext holds everything a run needs. It is built once per process by
// New and released by Close.
type LoadContext struct {
	Config *config.Config
	Logger *zap.Logger
	Engine engine.Engine
	RunID  string
	State  *schema.State
	Stats  *observability.LoadStats

	// Report receives the end of run report; defaults to stderr
	Report io.Writer

	mu     sync.Mutex
	closed bool
}

// New validates cfg, creates the data directories and opens the engine. An
// insert size above the engine's transaction limit is a configuration error.
func New(cfg *config.Config, logger *zap.Logger) (*LoadContext, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, sberrors.NewIOError(sberrors.CodeUnexpected, "failed to create directories", err)
	}

	eng, err := engine.Open(cfg.Engine, cfg.DataDir, logger.Named("engine"))
	if err != nil {
		return nil, sberrors.NewInternalError(fmt.Sprintf("failed to open %s engine", cfg.Engine), err).
			WithDetails(map[string]interface{}{"data_dir": cfg.DataDir})
	}

	if limit := engine.MaxBatchRows(eng); limit > 0 && cfg.InsertSize > limit {
		eng.Close()
		return nil, sberrors.NewConfigurationError(sberrors.CodeInvalidValue,
			fmt.Sprintf("insert_size %d exceeds the %s engine limit of %d rows per transaction",
				cfg.InsertSize, cfg.Engine, limit))
	}

	lc := &LoadContext{
		Config: cfg,
		Logger: logger,
		Engine: eng,
		RunID:  archive.NewRunID(),
		State:  &schema.State{},
		Stats:  observability.NewLoadStats(),
		Report: os.Stderr,
	}
	logger.Info("run initialized",
		zap.String("run_id", lc.RunID),
		zap.String("engine", cfg.Engine),
		zap.String("data_dir", cfg.DataDir),
		zap.Int("scale_factor", cfg.ScaleFactor))
	cfg.LogOptions(logger)
	return lc, nil
}

// Run provisions the schema, loads LEFT_TABLE then RIGHT_TABLE, and records the
// load time. Archiving and the report run after the result is recorded;
// archive failures are logged and do not fail the run.
func (lc *LoadContext) Run(ctx context.Context) (types.BenchmarkResult, error) {
	cfg := lc.Config

	provisioner := schema.NewProvisioner(lc.Engine, cfg.DatabaseName, cfg.Partition.Count, lc.Logger.Named("schema"))
	left, right, err := provisioner.Provision(ctx, lc.State)
	if err != nil {
		return types.BenchmarkResult{}, err
	}

	x := executor.NewInsertExecutor(lc.Engine, lc.Logger.Named("executor"))
	defer x.Unbind()
	if err := bind(x, cfg.Partition, left, cfg.LeftRows()); err != nil {
		return types.BenchmarkResult{}, err
	}
	if err := bind(x, cfg.Partition, right, cfg.RightRows()); err != nil {
		return types.BenchmarkResult{}, err
	}

	gen := generator.New(generator.Options{
		SortKeyBits:  cfg.SortKeyBits,
		ShipDateDays: int64(cfg.ShipDateDays),
		Seed:         cfg.Seed,
	})
	ld := loader.New(lc.Engine, x, lc.Stats, loader.Options{BatchTimeout: cfg.BatchTimeout}, lc.Logger.Named("loader"))

	start := time.Now()
	counts, err := ld.LoadTables(ctx,
		loader.TableLoad{Table: left, Rows: gen.Generate(cfg.LeftTableSize, cfg.ScaleFactor), BatchSize: cfg.InsertSize},
		loader.TableLoad{Table: right, Rows: gen.Generate(cfg.RightTableSize, cfg.ScaleFactor), BatchSize: cfg.InsertSize},
	)
	elapsed := time.Since(start)
	if err != nil {
		lc.report()
		return types.BenchmarkResult{}, err
	}
	lc.Logger.Info("load complete",
		zap.Int64("left_rows", counts[0]),
		zap.Int64("right_rows", counts[1]),
		zap.Duration("elapsed", elapsed))

	result, err := recorder.New(lc.Logger.Named("recorder")).Record(cfg, elapsed.Milliseconds())
	if err != nil {
		lc.report()
		return result, err
	}

	lc.archive(ctx)
	lc.report()
	return result, nil
}

// bind attaches a router sized for rows to table.
func bind(x *executor.InsertExecutor, cfg types.PartitionConfig, table *engine.Table, rows int64) error {
	router, err := partition.NewRouter(cfg, rows)
	if err != nil {
		return sberrors.NewInternalError(fmt.Sprintf("failed to build router for %s", table), err)
	}
	if err := x.Bind(table, router); err != nil {
		return sberrors.NewInternalError(fmt.Sprintf("failed to bind %s", table), err)
	}
	return nil
}

func (lc *LoadContext) archive(ctx context.Context) {
	a, err := archive.NewFromConfig(ctx, lc.Config, lc.Logger.Named("archive"))
	if err != nil {
		lc.Logger.Warn("archive unavailable", zap.Error(err))
		return
	}
	if a == nil {
		return
	}
	if _, err := a.Archive(ctx, lc.Engine, lc.RunID, lc.Config.SummaryPath); err != nil {
		lc.Logger.Warn("archive failed", zap.String("run_id", lc.RunID), zap.Error(err))
	}
}

func (lc *LoadContext) report() {
	if !lc.Config.Report || lc.Report == nil {
		return
	}
	if err := lc.Stats.RenderReport(lc.Report); err != nil {
		lc.Logger.Warn("failed to render report", zap.Error(err))
	}
}

// Close closes the engine and clears the run state. It is safe to call more
// than once.
func (lc *LoadContext) Close() error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.closed {
		return nil
	}
	lc.closed = true

	lc.State.Clear()
	err := lc.Engine.Close()
	lc.Engine = nil
	if err != nil {
		return fmt.Errorf("app: failed to close engine: %w", err)
	}
	return nil
}
