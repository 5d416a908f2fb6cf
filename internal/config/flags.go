package config

import (
	"flag"
	"fmt"
	"io"
	"strings"

	sberrors "github.com/sortbench/sortbench/internal/errors"
)

// Usage writes the command line help to out.
func Usage(out io.Writer) {
	fmt.Fprintf(out, "Command line options : sortbench <options>\n")
	fmt.Fprintf(out, "   -h --help              :  print help message\n")
	fmt.Fprintf(out, "   -s --scale_factor      :  # of K tuples (default: 1)\n")
	fmt.Fprintf(out, "      --insert_size       :  rows per insert transaction (default: %d)\n", DefaultInsertSize)
	fmt.Fprintf(out, "      --partitions        :  partitions per table (default: 1)\n")
	fmt.Fprintf(out, "      --seed              :  row generator seed, 0 is random (default: 0)\n")
	fmt.Fprintf(out, "      --engine            :  storage engine: sqlite, badger (default: sqlite)\n")
	fmt.Fprintf(out, "      --data-dir          :  engine data directory (default: ./data/sortbench)\n")
	fmt.Fprintf(out, "      --log-level         :  trace, debug, info, warn, error (default: info)\n")
	fmt.Fprintf(out, "      --config            :  YAML or JSON configuration file\n")
	fmt.Fprintf(out, "      --env               :  apply SORTBENCH_* environment overrides\n")
}

// ParseArgs parses command line arguments (without the program name) into a
// validated Config. Help, unknown options and malformed values print usage to
// stderr and return a CONFIGURATION error; the caller reports the error and
// decides how to terminate.
func ParseArgs(args []string, stderr io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("sortbench", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		help        bool
		scaleFactor int
		insertSize  int
		partitions  int
		seed        uint64
		engine      string
		dataDir     string
		logLevel    string
		configFile  string
		useEnv      bool
	)

	fs.BoolVar(&help, "h", false, "print help message")
	fs.BoolVar(&help, "help", false, "print help message")
	fs.IntVar(&scaleFactor, "s", 1, "scale factor")
	fs.IntVar(&scaleFactor, "scale_factor", 1, "scale factor")
	fs.IntVar(&insertSize, "insert_size", DefaultInsertSize, "rows per insert transaction")
	fs.IntVar(&partitions, "partitions", 1, "partitions per table")
	fs.Uint64Var(&seed, "seed", 0, "row generator seed")
	fs.StringVar(&engine, "engine", EngineSQLite, "storage engine")
	fs.StringVar(&dataDir, "data-dir", "", "engine data directory")
	fs.StringVar(&logLevel, "log-level", "", "log level")
	fs.StringVar(&configFile, "config", "", "configuration file")
	fs.BoolVar(&useEnv, "env", false, "apply SORTBENCH_* environment overrides")

	if err := fs.Parse(args); err != nil {
		Usage(stderr)
		code := sberrors.CodeInvalidValue
		if strings.Contains(err.Error(), "provided but not defined") {
			code = sberrors.CodeUnknownOption
		}
		return nil, sberrors.NewConfigurationError(code, err.Error())
	}
	if help {
		Usage(stderr)
		return nil, sberrors.NewConfigurationError(sberrors.CodeHelpRequested, "help requested")
	}
	if fs.NArg() > 0 {
		Usage(stderr)
		return nil, sberrors.NewConfigurationError(sberrors.CodeUnknownOption,
			fmt.Sprintf("unexpected argument: %s", fs.Arg(0)))
	}

	var cfg *Config
	if configFile != "" {
		var err error
		cfg, err = LoadFromFile(configFile)
		if err != nil {
			return nil, sberrors.NewConfigurationError(sberrors.CodeInvalidConfig, err.Error())
		}
	} else {
		cfg = DefaultConfig()
	}
	if useEnv {
		if err := LoadFromEnv(cfg); err != nil {
			return nil, sberrors.NewConfigurationError(sberrors.CodeInvalidValue, err.Error())
		}
	}

	// Command line flags have the highest priority.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "s", "scale_factor":
			cfg.ScaleFactor = scaleFactor
		case "insert_size":
			cfg.InsertSize = insertSize
		case "partitions":
			cfg.Partition.Count = partitions
		case "seed":
			cfg.Seed = seed
		case "engine":
			cfg.Engine = engine
		case "data-dir":
			cfg.DataDir = dataDir
		case "log-level":
			cfg.LogLevel = logLevel
		}
		cfg.options = append(cfg.options, option{name: f.Name, value: f.Value.String()})
	})

	if err := cfg.Validate(); err != nil {
		if sberrors.GetCode(err) == sberrors.CodeInvalidScaleFactor {
			fmt.Fprintf(stderr, "Invalid scale_factor :: %d\n", cfg.ScaleFactor)
		}
		return nil, err
	}
	return cfg, nil
}
