// Package main implements the sortbench loader binary.
// It creates LEFT_TABLE and RIGHT_TABLE, fills them with random tuples and
// appends the load time to the summary file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sortbench/sortbench/internal/app"
	"github.com/sortbench/sortbench/internal/config"
	sberrors "github.com/sortbench/sortbench/internal/errors"
	"github.com/sortbench/sortbench/internal/logutil"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.ParseArgs(args, os.Stderr)
	if err != nil {
		switch sberrors.GetCode(err) {
		case sberrors.CodeHelpRequested, sberrors.CodeInvalidScaleFactor:
		default:
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		return 1
	}

	logger, err := logutil.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lc, err := app.New(cfg, logger)
	if err != nil {
		if sberrors.IsCategory(err, sberrors.ErrCategoryConfiguration) {
			config.Usage(os.Stderr)
		}
		logError(logger, "failed to initialize run", err)
		return 1
	}
	defer func() {
		if err := lc.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	result, err := lc.Run(ctx)
	if err != nil {
		logError(logger, "run failed", err)
		return 1
	}

	logger.Info("benchmark complete",
		zap.Int("scale_factor", result.ScaleFactor),
		zap.Int64("execution_time_ms", result.ExecutionTimeMs),
		zap.String("summary", cfg.SummaryPath))
	return 0
}

// logError logs err with its category, code and details.
func logError(logger *zap.Logger, msg string, err error) {
	fields := []zap.Field{
		zap.String("category", string(sberrors.GetCategory(err))),
		zap.String("code", sberrors.GetCode(err)),
		zap.Error(err),
	}
	for k, v := range sberrors.GetDetails(err) {
		fields = append(fields, zap.Any(k, v))
	}
	logger.Error(msg, fields...)
}
