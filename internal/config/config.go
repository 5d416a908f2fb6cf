// Package config provides the run configuration for the sortbench loader.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	sberrors "github.com/sortbench/sortbench/internal/errors"
	"github.com/sortbench/sortbench/internal/logutil"
	"github.com/sortbench/sortbench/pkg/types"
)

// Engine names accepted by Config.Engine.
const (
	EngineSQLite = "sqlite"
	EngineBadger = "badger"
)

// Archive types accepted by ArchiveConfig.Type.
const (
	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveS3    = "s3"
)

// Default sizes of the benchmark tables, per unit of scale factor.
const (
	DefaultLeftTableSize  = 6000000
	DefaultRightTableSize = 200000
	DefaultInsertSize     = 1000
	DefaultSortKeyBits    = 24
	DefaultShipDateDays   = 60
)

// Config holds the configuration of one benchmark run. It is built once at
// process start and not modified after Validate succeeds.
type Config struct {
	// ScaleFactor multiplies the base table sizes
	ScaleFactor int `json:"scale_factor" yaml:"scale_factor"`

	// LeftTableSize is the number of LEFT_TABLE rows per unit of scale factor
	LeftTableSize int `json:"left_table_size" yaml:"left_table_size"`

	// RightTableSize is the number of RIGHT_TABLE rows per unit of scale factor
	RightTableSize int `json:"right_table_size" yaml:"right_table_size"`

	// InsertSize is the number of rows per insert batch (one transaction each)
	InsertSize int `json:"insert_size" yaml:"insert_size"`

	// SortKeyBits bounds generated sort keys to [0, 2^SortKeyBits)
	SortKeyBits int `json:"sort_key_bits" yaml:"sort_key_bits"`

	// ShipDateDays bounds generated ship dates to [0, ShipDateDays)
	ShipDateDays int `json:"ship_date_days" yaml:"ship_date_days"`

	// Partition controls how rows are spread over table partitions
	Partition types.PartitionConfig `json:"partition" yaml:"partition"`

	// Seed makes row generation reproducible; 0 picks a random seed
	Seed uint64 `json:"seed" yaml:"seed"`

	// BatchTimeout bounds each batch transaction; 0 disables the deadline
	BatchTimeout time.Duration `json:"batch_timeout" yaml:"batch_timeout"`

	// Engine selects the storage engine: sqlite or badger
	Engine string `json:"engine" yaml:"engine"`

	// DataDir is the directory holding the engine's files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// DatabaseName is the name of the database the tables are created in
	DatabaseName string `json:"database_name" yaml:"database_name"`

	// SummaryPath is the append-only result file
	SummaryPath string `json:"summary_path" yaml:"summary_path"`

	// Archive configures where run artifacts are uploaded
	Archive ArchiveConfig `json:"archive" yaml:"archive"`

	// LogLevel is one of trace, debug, info, warn, error
	LogLevel string `json:"log_level" yaml:"log_level"`

	// Report prints a per-table load report at the end of the run
	Report bool `json:"report" yaml:"report"`

	// options lists the options recognized while parsing, in order
	options []option
}

type option struct {
	name  string
	value string
}

// ArchiveConfig holds the result archive configuration.
type ArchiveConfig struct {
	// Type is the archive type: none, local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local archive directory (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 archive configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ScaleFactor:    1,
		LeftTableSize:  DefaultLeftTableSize,
		RightTableSize: DefaultRightTableSize,
		InsertSize:     DefaultInsertSize,
		SortKeyBits:    DefaultSortKeyBits,
		ShipDateDays:   DefaultShipDateDays,
		Partition: types.PartitionConfig{
			Strategy: types.StrategyHash,
			Count:    1,
		},
		Engine:       EngineSQLite,
		DataDir:      "./data/sortbench",
		DatabaseName: "sortbench",
		SummaryPath:  "outputfile.summary",
		Archive: ArchiveConfig{
			Type: ArchiveNone,
		},
		LogLevel: "info",
		Report:   true,
	}
}

// Validate validates the configuration. The scale factor is checked first so that
// an invalid explicit value always surfaces as INVALID_SCALE_FACTOR.
func (c *Config) Validate() error {
	if c.ScaleFactor <= 0 {
		return sberrors.NewConfigurationError(sberrors.CodeInvalidScaleFactor,
			fmt.Sprintf("invalid scale_factor: %d (must be a positive integer)", c.ScaleFactor))
	}

	for _, size := range []int{c.LeftTableSize, c.RightTableSize} {
		if size > 0 && int64(c.ScaleFactor) > math.MaxInt64/int64(size) {
			return sberrors.NewConfigurationError(sberrors.CodeInvalidScaleFactor,
				fmt.Sprintf("invalid scale_factor: %d (%d-row table overflows the row count)", c.ScaleFactor, size))
		}
	}

	invalid := func(format string, args ...interface{}) error {
		return sberrors.NewConfigurationError(sberrors.CodeInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.LeftTableSize < 0 || c.RightTableSize < 0 {
		return invalid("table sizes must not be negative, got left=%d right=%d", c.LeftTableSize, c.RightTableSize)
	}
	if c.InsertSize <= 0 {
		return invalid("insert_size must be positive, got %d", c.InsertSize)
	}
	if c.SortKeyBits < 1 || c.SortKeyBits > 62 {
		return invalid("sort_key_bits must be between 1 and 62, got %d", c.SortKeyBits)
	}
	if c.ShipDateDays <= 0 {
		return invalid("ship_date_days must be positive, got %d", c.ShipDateDays)
	}
	if c.Partition.Count < 1 {
		return invalid("partition.count must be at least 1, got %d", c.Partition.Count)
	}
	switch c.Partition.Strategy {
	case types.StrategyHash, types.StrategyRange:
	default:
		return invalid("invalid partition strategy: %s (must be hash or range)", c.Partition.Strategy)
	}
	if c.BatchTimeout < 0 {
		return invalid("batch_timeout must not be negative, got %v", c.BatchTimeout)
	}
	switch c.Engine {
	case EngineSQLite, EngineBadger:
	default:
		return invalid("invalid engine: %s (must be sqlite or badger)", c.Engine)
	}
	if c.DataDir == "" {
		return invalid("data_dir is required")
	}
	if c.DatabaseName == "" {
		return invalid("database_name is required")
	}
	if c.SummaryPath == "" {
		return invalid("summary_path is required")
	}
	switch c.Archive.Type {
	case ArchiveNone, "":
	case ArchiveLocal:
		if c.Archive.Path == "" {
			return invalid("archive.path is required when archive type is local")
		}
	case ArchiveS3:
		if c.Archive.S3.Bucket == "" {
			return invalid("archive.s3.bucket is required when archive type is s3")
		}
	default:
		return invalid("invalid archive type: %s (must be none, local, or s3)", c.Archive.Type)
	}

	if _, err := logutil.ParseLevel(c.LogLevel); err != nil {
		return sberrors.NewConfigurationError(sberrors.CodeInvalidValue,
			fmt.Sprintf("invalid log_level: %s (must be trace, debug, info, warn, or error)", c.LogLevel))
	}

	return nil
}

// LeftRows returns the number of rows loaded into LEFT_TABLE.
func (c *Config) LeftRows() int64 {
	return int64(c.LeftTableSize) * int64(c.ScaleFactor)
}

// RightRows returns the number of rows loaded into RIGHT_TABLE.
func (c *Config) RightRows() int64 {
	return int64(c.RightTableSize) * int64(c.ScaleFactor)
}

// LogOptions writes one trace-level line per option recognized on the command line.
func (c *Config) LogOptions(logger *zap.Logger) {
	for _, opt := range c.options {
		logger.Debug("option", zap.String("name", opt.name), zap.String("value", opt.value))
	}
}

// LoadFromFile loads configuration from a YAML or JSON file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overlays environment variables on cfg.
// Environment variables use the SORTBENCH_ prefix.
func LoadFromEnv(cfg *Config) error {
	ints := []struct {
		name string
		dst  *int
	}{
		{"SORTBENCH_SCALE_FACTOR", &cfg.ScaleFactor},
		{"SORTBENCH_LEFT_TABLE_SIZE", &cfg.LeftTableSize},
		{"SORTBENCH_RIGHT_TABLE_SIZE", &cfg.RightTableSize},
		{"SORTBENCH_INSERT_SIZE", &cfg.InsertSize},
		{"SORTBENCH_SORT_KEY_BITS", &cfg.SortKeyBits},
		{"SORTBENCH_PARTITIONS", &cfg.Partition.Count},
	}
	for _, v := range ints {
		s := os.Getenv(v.name)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", v.name, s)
		}
		*v.dst = n
	}

	if v := os.Getenv("SORTBENCH_SEED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SORTBENCH_SEED: %q", v)
		}
		cfg.Seed = n
	}
	if v := os.Getenv("SORTBENCH_BATCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SORTBENCH_BATCH_TIMEOUT: %q", v)
		}
		cfg.BatchTimeout = d
	}
	if v := os.Getenv("SORTBENCH_PARTITION_STRATEGY"); v != "" {
		cfg.Partition.Strategy = types.PartitionStrategy(v)
	}
	if v := os.Getenv("SORTBENCH_ENGINE"); v != "" {
		cfg.Engine = v
	}
	if v := os.Getenv("SORTBENCH_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SORTBENCH_SUMMARY_PATH"); v != "" {
		cfg.SummaryPath = v
	}
	if v := os.Getenv("SORTBENCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	// Archive configuration
	if v := os.Getenv("SORTBENCH_ARCHIVE_TYPE"); v != "" {
		cfg.Archive.Type = v
	}
	if v := os.Getenv("SORTBENCH_ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
	}
	if v := os.Getenv("SORTBENCH_S3_BUCKET"); v != "" {
		cfg.Archive.S3.Bucket = v
	}
	if v := os.Getenv("SORTBENCH_S3_REGION"); v != "" {
		cfg.Archive.S3.Region = v
	}
	if v := os.Getenv("SORTBENCH_S3_ENDPOINT"); v != "" {
		cfg.Archive.S3.Endpoint = v
	}

	return nil
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.SummaryPath),
	}
	if c.Archive.Type == ArchiveLocal {
		dirs = append(dirs, c.Archive.Path)
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
