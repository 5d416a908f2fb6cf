package config

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sberrors "github.com/sortbench/sortbench/internal/errors"
	"github.com/sortbench/sortbench/pkg/types"
)

func TestParseArgsDefaults(t *testing.T) {
	var stderr bytes.Buffer
	cfg, err := ParseArgs(nil, &stderr)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.ScaleFactor)
	assert.Equal(t, DefaultInsertSize, cfg.InsertSize)
	assert.Equal(t, DefaultSortKeyBits, cfg.SortKeyBits)
	assert.Equal(t, EngineSQLite, cfg.Engine)
	assert.Equal(t, "outputfile.summary", cfg.SummaryPath)
	assert.Empty(t, stderr.String())
}

func TestParseArgsScaleFactor(t *testing.T) {
	for _, args := range [][]string{
		{"-s", "4"},
		{"--scale_factor", "4"},
		{"-scale_factor=4"},
	} {
		cfg, err := ParseArgs(args, &bytes.Buffer{})
		require.NoError(t, err, "args %v", args)
		assert.Equal(t, 4, cfg.ScaleFactor, "args %v", args)
		assert.Equal(t, int64(4*DefaultLeftTableSize), cfg.LeftRows())
		assert.Equal(t, int64(4*DefaultRightTableSize), cfg.RightRows())
	}
}

func TestParseArgsRejectsNonPositiveScaleFactor(t *testing.T) {
	for _, sf := range []string{"0", "-1", "-100"} {
		var stderr bytes.Buffer
		cfg, err := ParseArgs([]string{"-s", sf}, &stderr)
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.True(t, sberrors.IsCategory(err, sberrors.ErrCategoryConfiguration))
		assert.Equal(t, sberrors.CodeInvalidScaleFactor, sberrors.GetCode(err))
		assert.Contains(t, stderr.String(), "Invalid scale_factor")
	}
}

func TestParseArgsHelp(t *testing.T) {
	for _, flagName := range []string{"-h", "--help"} {
		var stderr bytes.Buffer
		_, err := ParseArgs([]string{flagName}, &stderr)
		require.Error(t, err)
		assert.Equal(t, sberrors.CodeHelpRequested, sberrors.GetCode(err))
		assert.Contains(t, stderr.String(), "Command line options : sortbench <options>")
	}
}

func TestParseArgsUnknownOption(t *testing.T) {
	var stderr bytes.Buffer
	_, err := ParseArgs([]string{"-x"}, &stderr)
	require.Error(t, err)
	assert.Equal(t, sberrors.CodeUnknownOption, sberrors.GetCode(err))
	assert.Contains(t, stderr.String(), "--scale_factor")

	_, err = ParseArgs([]string{"extra"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, sberrors.CodeUnknownOption, sberrors.GetCode(err))
}

func TestParseArgsMalformedValue(t *testing.T) {
	var stderr bytes.Buffer
	_, err := ParseArgs([]string{"-s", "many"}, &stderr)
	require.Error(t, err)
	assert.Equal(t, sberrors.CodeInvalidValue, sberrors.GetCode(err))
	assert.True(t, strings.Contains(stderr.String(), "Command line options"))
}

func TestParseArgsAddedFlags(t *testing.T) {
	dir := t.TempDir()
	cfg, err := ParseArgs([]string{
		"-s", "2", "--insert_size", "25", "--partitions", "4", "--seed", "99",
		"--engine", "badger", "--data-dir", dir, "--log-level", "trace",
	}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.ScaleFactor)
	assert.Equal(t, 25, cfg.InsertSize)
	assert.Equal(t, 4, cfg.Partition.Count)
	assert.Equal(t, uint64(99), cfg.Seed)
	assert.Equal(t, EngineBadger, cfg.Engine)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "trace", cfg.LogLevel)
	assert.Len(t, cfg.options, 7)
}

func TestParseArgsConfigFileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sortbench.yaml")
	content := `
scale_factor: 3
insert_size: 50
left_table_size: 100
engine: badger
partition:
  strategy: range
  count: 2
batch_timeout: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("SORTBENCH_INSERT_SIZE", "75")

	cfg, err := ParseArgs([]string{"--config", path, "--env", "-s", "5"}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.ScaleFactor, "flag beats file")
	assert.Equal(t, 75, cfg.InsertSize, "env beats file")
	assert.Equal(t, 100, cfg.LeftTableSize)
	assert.Equal(t, EngineBadger, cfg.Engine)
	assert.Equal(t, types.StrategyRange, cfg.Partition.Strategy)
	assert.Equal(t, 2, cfg.Partition.Count)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
}

func TestParseArgsIgnoresEnvironmentByDefault(t *testing.T) {
	t.Setenv("SORTBENCH_SCALE_FACTOR", "9")
	t.Setenv("SORTBENCH_SUMMARY_PATH", "elsewhere.summary")

	cfg, err := ParseArgs(nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.ScaleFactor)
	assert.Equal(t, "outputfile.summary", cfg.SummaryPath)

	cfg, err = ParseArgs([]string{"--env"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.ScaleFactor)
	assert.Equal(t, "elsewhere.summary", cfg.SummaryPath)
}

func TestParseArgsRejectsOverflowingScaleFactor(t *testing.T) {
	var stderr bytes.Buffer
	cfg, err := ParseArgs([]string{"-s", "2000000000000000"}, &stderr)
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Equal(t, sberrors.CodeInvalidScaleFactor, sberrors.GetCode(err))
	assert.Contains(t, stderr.String(), "Invalid scale_factor")

	// The largest scale factor whose row counts still fit is accepted.
	ok := DefaultConfig()
	ok.ScaleFactor = math.MaxInt64 / DefaultLeftTableSize
	assert.NoError(t, ok.Validate())
	assert.Positive(t, ok.LeftRows())

	ok.ScaleFactor++
	assert.Equal(t, sberrors.CodeInvalidScaleFactor, sberrors.GetCode(ok.Validate()))
}

func TestParseArgsRejectsUnknownLogLevel(t *testing.T) {
	_, err := ParseArgs([]string{"--log-level", "bogus"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, sberrors.IsCategory(err, sberrors.ErrCategoryConfiguration))
	assert.Equal(t, sberrors.CodeInvalidValue, sberrors.GetCode(err))

	for _, level := range []string{"trace", "debug", "info", "warn", "error"} {
		_, err := ParseArgs([]string{"--log-level", level}, &bytes.Buffer{})
		assert.NoError(t, err, level)
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sortbench.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"scale_factor": 7, "summary_path": "out/run.summary"}`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.ScaleFactor)
	assert.Equal(t, "out/run.summary", cfg.SummaryPath)
	assert.Equal(t, DefaultInsertSize, cfg.InsertSize, "unset fields keep defaults")
}

func TestLoadFromFileUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sortbench.toml")
	require.NoError(t, os.WriteFile(path, []byte(`scale_factor = 1`), 0644))
	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadFromEnvRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("SORTBENCH_PARTITIONS", "lots")
	err := LoadFromEnv(DefaultConfig())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		code   string
	}{
		{"zero scale", func(c *Config) { c.ScaleFactor = 0 }, sberrors.CodeInvalidScaleFactor},
		{"zero insert size", func(c *Config) { c.InsertSize = 0 }, sberrors.CodeInvalidConfig},
		{"negative table", func(c *Config) { c.LeftTableSize = -1 }, sberrors.CodeInvalidConfig},
		{"too many key bits", func(c *Config) { c.SortKeyBits = 63 }, sberrors.CodeInvalidConfig},
		{"zero ship days", func(c *Config) { c.ShipDateDays = 0 }, sberrors.CodeInvalidConfig},
		{"zero partitions", func(c *Config) { c.Partition.Count = 0 }, sberrors.CodeInvalidConfig},
		{"bad strategy", func(c *Config) { c.Partition.Strategy = "round_robin" }, sberrors.CodeInvalidConfig},
		{"bad engine", func(c *Config) { c.Engine = "pebble" }, sberrors.CodeInvalidConfig},
		{"local archive without path", func(c *Config) { c.Archive.Type = ArchiveLocal }, sberrors.CodeInvalidConfig},
		{"s3 archive without bucket", func(c *Config) { c.Archive.Type = ArchiveS3 }, sberrors.CodeInvalidConfig},
		{"bad archive", func(c *Config) { c.Archive.Type = "ftp" }, sberrors.CodeInvalidConfig},
		{"valid", func(c *Config) {}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, sberrors.GetCode(err))
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.SummaryPath = filepath.Join(dir, "results", "outputfile.summary")
	cfg.Archive = ArchiveConfig{Type: ArchiveLocal, Path: filepath.Join(dir, "archive")}

	require.NoError(t, cfg.EnsureDirectories())
	for _, d := range []string{"data", "results", "archive"} {
		info, err := os.Stat(filepath.Join(dir, d))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
