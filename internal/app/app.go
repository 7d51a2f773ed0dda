// Package app wires the beatset pipelines: encoding folders into a dataset,
// reconstructing folders from it, and listing what it holds.
package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/beatset/beatset/internal/config"
	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/internal/logger"
	"github.com/beatset/beatset/internal/storage"
)

// App holds the resources shared by the pipelines.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	// assets stores partition assets and, for remote datasets, the table files.
	assets storage.ObjectStorage
	// progress receives live progress lines; nil disables them.
	progress io.Writer
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) { a.logger = logger.OrNop(l) }
}

// WithProgress writes live progress to w.
func WithProgress(w io.Writer) Option {
	return func(a *App) { a.progress = w }
}

// WithStorage replaces the object storage built from the configuration.
func WithStorage(s storage.ObjectStorage) Option {
	return func(a *App) { a.assets = s }
}

// New resolves and validates cfg, creates the directories it names and
// opens the configured object storage.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigError(err.Error())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, errors.Wrap(errors.ErrCategoryConfig, errors.CodeInvalidConfig, "failed to create directories", err)
	}

	a := &App{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	if a.assets == nil {
		s, err := openStorage(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		a.assets = s
	}
	a.logger.Debug("storage initialized",
		zap.String("type", cfg.Storage.Type),
		zap.String("path", cfg.Storage.Path),
		zap.String("bucket", cfg.Storage.S3.Bucket))
	return a, nil
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStorage, error) {
	switch cfg.Type {
	case "local":
		return storage.NewLocalStorage(cfg.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if cfg.S3.Region != "" {
			s3Cfg.Region = cfg.S3.Region
		}
		if cfg.S3.Endpoint != "" {
			s3Cfg.Endpoint = cfg.S3.Endpoint
			s3Cfg.UsePathStyle = true
		}
		s3Cfg.Prefix = cfg.S3.Prefix
		return storage.NewS3Storage(ctx, cfg.S3.Bucket, s3Cfg)
	}
	return nil, errors.NewConfigError(fmt.Sprintf("unsupported storage type: %s", cfg.Type))
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config { return a.cfg }

// remote reports whether table files live in object storage.
func (a *App) remote() bool { return a.cfg.Storage.Type == "s3" }

// Run executes the configured mode. Summaries are written to out.
func (a *App) Run(ctx context.Context, out io.Writer) error {
	switch a.cfg.Mode {
	case config.ModeEncode:
		sum, err := a.Encode(ctx)
		if sum != nil {
			sum.Print(out)
		}
		return err
	case config.ModeReconstruct:
		sum, err := a.Reconstruct(ctx)
		if sum != nil {
			sum.Print(out)
		}
		return err
	case config.ModePartitions:
		return a.Partitions(ctx, out)
	}
	return errors.NewConfigError(fmt.Sprintf("invalid mode: %s", a.cfg.Mode))
}
