// Package cli implements the command line shared by the beatset binaries.
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/beatset/beatset/internal/app"
	"github.com/beatset/beatset/internal/config"
	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/internal/logger"
	"github.com/beatset/beatset/internal/signalctx"
)

var (
	version = "dev"
	commit  = "unknown"
)

// options are the values of the command line flags.
type options struct {
	configFile string
	envFile    string
	mode       string
	dataDir    string

	input     string
	force     bool
	sample    int
	seed      int64
	assets    string
	batchSize int

	output      string
	partition   string
	limit       int
	concurrency int
	chunkSize   int

	logLevel zapcore.Level
	logPath  string
	logMode  logger.FileMode
	progress bool
	version  bool
}

// Main runs the binary called name. A fixed mode hides the -mode flag and
// the flags of the other pipeline. It returns the process exit code.
func Main(name string, fixed config.Mode, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := options{logLevel: zapcore.InfoLevel, logMode: logger.FileModeAppend}

	fs.StringVar(&opts.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	fs.StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before BEATSET_ variables are read")
	fs.StringVar(&opts.dataDir, "data-dir", "", "Dataset directory")
	if fixed == "" {
		fs.StringVar(&opts.mode, "mode", string(config.ModeEncode), "Mode: encode, reconstruct, partitions")
	}
	if fixed == "" || fixed == config.ModeEncode {
		fs.StringVar(&opts.input, "input", "", "Directory holding one extracted folder per partition")
		fs.BoolVar(&opts.force, "force", false, "Rebuild the dataset, ignoring existing partitions and the failure ledger")
		fs.IntVar(&opts.sample, "sample", 0, "Encode this many randomly chosen folders (0 = all)")
		fs.Int64Var(&opts.seed, "seed", 0, "Seed for -sample (0 = time based)")
		fs.StringVar(&opts.assets, "assets", "", "Assets to store: referenced, all, none")
		fs.IntVar(&opts.batchSize, "batch-size", 0, "Rows buffered per table before a write")
	}
	if fixed == "" || fixed == config.ModeReconstruct {
		fs.StringVar(&opts.output, "output", "", "Directory receiving reconstructed folders")
		fs.StringVar(&opts.partition, "partition", "", "Reconstruct only this partition")
		fs.IntVar(&opts.limit, "limit", 0, "Reconstruct at most this many partitions (0 = all)")
		fs.IntVar(&opts.concurrency, "concurrency", 0, "Partitions reconstructed in parallel")
		fs.IntVar(&opts.chunkSize, "chunk-size", 0, "Rows read per chunk")
	}
	fs.Var(&opts.logLevel, "log.level", "Log level: debug, info, warn, error")
	fs.StringVar(&opts.logPath, "log.path", "", "Log destination: stderr, stdout, /dev/null or a file")
	fs.Var(&opts.logMode, "log.filemode", "Log file mode: append, truncate, rotate")
	fs.BoolVar(&opts.progress, "progress", false, "Show live progress on stderr")
	fs.BoolVar(&opts.version, "version", false, "Show version information")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [options]\n\nOptions:\n", name)
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nEnvironment variables prefixed with BEATSET_ override the configuration file;\nflags override both.\n")
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if opts.version {
		fmt.Fprintf(stdout, "%s version %s (commit: %s)\n", name, version, commit)
		return 0
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := loadConfig(&opts, set, fixed)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return 2
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "%s: failed to open log: %v\n", name, err)
		return 1
	}
	defer log.Sync()

	ctx, cancel := signalctx.New(os.Interrupt, syscall.SIGTERM)
	defer cancel()

	appOpts := []app.Option{app.WithLogger(log)}
	if opts.progress {
		appOpts = append(appOpts, app.WithProgress(stderr))
	}
	a, err := app.New(ctx, cfg, appOpts...)
	if err != nil {
		log.Error("failed to start", zap.Error(err))
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		if errors.IsCategory(err, errors.ErrCategoryConfig) {
			return 2
		}
		return 1
	}
	log.Info("starting",
		zap.String("version", version),
		zap.String("mode", string(cfg.Mode)),
		zap.String("data_dir", cfg.DataDir),
		zap.String("storage", cfg.Storage.Type))

	if err := a.Run(ctx, stdout); err != nil {
		log.Error("run failed", zap.Error(err))
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return 1
	}
	if ctx.Err() != nil {
		log.Warn("stopped early", zap.Error(ctx.Err()))
		return 130
	}
	return 0
}

// loadConfig layers defaults or the configuration file, the environment
// and the flags that were set, in that order.
func loadConfig(opts *options, set map[string]bool, fixed config.Mode) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", opts.envFile, err)
	}

	cfg := config.DefaultConfig()
	if opts.configFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(opts.configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	config.LoadFromEnv(cfg)

	if fixed != "" {
		cfg.Mode = fixed
	} else if set["mode"] {
		cfg.Mode = config.Mode(opts.mode)
	}
	if set["data-dir"] {
		cfg.DataDir = opts.dataDir
	}
	if set["input"] {
		cfg.Encode.InputDir = opts.input
	}
	if set["force"] {
		cfg.Encode.Force = opts.force
	}
	if set["sample"] {
		cfg.Encode.Sample = opts.sample
	}
	if set["seed"] {
		cfg.Encode.SampleSeed = opts.seed
	}
	if set["assets"] {
		cfg.Encode.Assets = config.AssetMode(opts.assets)
	}
	if set["batch-size"] {
		cfg.Encode.BatchSize = opts.batchSize
	}
	if set["output"] {
		cfg.Reconstruct.OutputDir = opts.output
	}
	if set["partition"] {
		cfg.Reconstruct.PartitionID = opts.partition
	}
	if set["limit"] {
		cfg.Reconstruct.Limit = opts.limit
	}
	if set["concurrency"] {
		cfg.Reconstruct.Concurrency = opts.concurrency
	}
	if set["chunk-size"] {
		cfg.Reconstruct.ChunkSize = opts.chunkSize
	}
	if set["log.level"] {
		cfg.Log.Level = opts.logLevel
	}
	if set["log.path"] {
		cfg.Log.Path = opts.logPath
	}
	if set["log.filemode"] {
		cfg.Log.Mode = opts.logMode
	}
	return cfg, nil
}
