// Package recorder appends benchmark results to the summary file and reads them back.
package recorder

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sortbench/sortbench/internal/config"
	sberrors "github.com/sortbench/sortbench/internal/errors"
	"github.com/sortbench/sortbench/pkg/types"
)

// Recorder writes one "<scale_factor> <execution_time_ms>" line per run.
type Recorder struct {
	logger *zap.Logger
}

// New creates a recorder.
func New(logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{logger: logger}
}

// Record appends the result of a run to cfg.SummaryPath. The file is opened,
// written, synced and closed on every call.
func (r *Recorder) Record(cfg *config.Config, executionTimeMs int64) (types.BenchmarkResult, error) {
	result := types.BenchmarkResult{ScaleFactor: cfg.ScaleFactor, ExecutionTimeMs: executionTimeMs}
	path := cfg.SummaryPath

	r.logger.Info("benchmark result",
		zap.Int("scale_factor", result.ScaleFactor),
		zap.Int64("execution_time_ms", result.ExecutionTimeMs))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return result, sberrors.NewIOError(sberrors.CodeSummaryOpenFailed,
			fmt.Sprintf("failed to open summary file %s", path), err,
		).WithDetails(map[string]interface{}{"path": path})
	}

	writeErr := func(err error) error {
		return sberrors.NewIOError(sberrors.CodeSummaryWriteFailed,
			fmt.Sprintf("failed to write summary file %s", path), err,
		).WithDetails(map[string]interface{}{"path": path})
	}

	if _, err := fmt.Fprintf(f, "%d %d\n", result.ScaleFactor, result.ExecutionTimeMs); err != nil {
		f.Close()
		return result, writeErr(err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return result, writeErr(err)
	}
	if err := f.Close(); err != nil {
		return result, writeErr(err)
	}

	r.logger.Debug("summary appended", zap.String("path", path))
	return result, nil
}

// ReadSummary parses every result in the summary file at path, oldest first.
// Values may be separated by any whitespace, so files written without line
// breaks are read the same way.
func ReadSummary(path string) ([]types.BenchmarkResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sberrors.NewIOError(sberrors.CodeSummaryOpenFailed,
			fmt.Sprintf("failed to read summary file %s", path), err)
	}
	return ParseSummary(string(data))
}

// ParseSummary parses summary file contents.
func ParseSummary(data string) ([]types.BenchmarkResult, error) {
	fields := strings.Fields(data)
	if len(fields)%2 != 0 {
		return nil, sberrors.NewIOError(sberrors.CodeSummaryParseFailed,
			fmt.Sprintf("summary has an odd number of values (%d)", len(fields)), nil)
	}

	results := make([]types.BenchmarkResult, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		sf, err := strconv.Atoi(fields[i])
		if err != nil {
			return nil, parseError(i, fields[i], err)
		}
		ms, err := strconv.ParseInt(fields[i+1], 10, 64)
		if err != nil {
			return nil, parseError(i+1, fields[i+1], err)
		}
		results = append(results, types.BenchmarkResult{ScaleFactor: sf, ExecutionTimeMs: ms})
	}
	return results, nil
}

func parseError(index int, field string, cause error) error {
	return sberrors.NewIOError(sberrors.CodeSummaryParseFailed,
		fmt.Sprintf("invalid summary value %q at position %d", field, index), cause)
}

// LastResult returns the most recent result in the summary file at path.
func LastResult(path string) (types.BenchmarkResult, error) {
	results, err := ReadSummary(path)
	if err != nil {
		return types.BenchmarkResult{}, err
	}
	if len(results) == 0 {
		return types.BenchmarkResult{}, sberrors.NewIOError(sberrors.CodeSummaryParseFailed,
			fmt.Sprintf("summary file %s has no results", path), nil)
	}
	return results[len(results)-1], nil
}
