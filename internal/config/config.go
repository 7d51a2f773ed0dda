// Package config provides the configuration shared by the beatset binaries.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/beatset/beatset/internal/logger"
)

// Mode selects what the unified binary does.
type Mode string

const (
	ModeEncode      Mode = "encode"
	ModeReconstruct Mode = "reconstruct"
	ModePartitions  Mode = "partitions"
)

// Config holds the configuration for all beatset binaries.
type Config struct {
	// Mode specifies what to run: encode, reconstruct, partitions
	Mode Mode `json:"mode" yaml:"mode"`

	// DataDir is the dataset directory: table files, assets, ledger and catalog
	DataDir string `json:"data_dir" yaml:"data_dir"`

	Encode      EncodeConfig      `json:"encode" yaml:"encode"`
	Reconstruct ReconstructConfig `json:"reconstruct" yaml:"reconstruct"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
	Log         logger.Config     `json:"log" yaml:"log"`
}

// EncodeConfig holds the encode pipeline settings.
type EncodeConfig struct {
	// InputDir holds one extracted folder per partition
	InputDir string `json:"input_dir" yaml:"input_dir"`

	// Force rebuilds the dataset, ignoring existing partitions and the failure ledger
	Force bool `json:"force" yaml:"force"`

	// Sample limits the run to this many randomly chosen folders (0 = all)
	Sample int `json:"sample" yaml:"sample"`

	// BatchSize is the number of rows buffered per table before a write
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// SampleSeed seeds the sample selection (0 = time based)
	SampleSeed int64 `json:"sample_seed" yaml:"sample_seed"`

	// Assets selects which files of a folder are stored: referenced, all, none
	Assets AssetMode `json:"assets" yaml:"assets"`
}

// AssetMode selects the files stored as assets during encode.
type AssetMode string

const (
	// AssetsReferenced stores the audio, background and storyboard files
	// the folder's documents reference.
	AssetsReferenced AssetMode = "referenced"
	// AssetsAll stores every file of the folder except .osu and .osb.
	AssetsAll AssetMode = "all"
	AssetsNone AssetMode = "none"
)

// ReconstructConfig holds the reconstruct pipeline settings.
type ReconstructConfig struct {
	// OutputDir receives one folder per reconstructed partition
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// PartitionID restricts the run to one partition
	PartitionID string `json:"partition_id" yaml:"partition_id"`

	// Limit caps the number of partitions (0 = all)
	Limit int `json:"limit" yaml:"limit"`

	// Concurrency is the number of partitions reconstructed in parallel
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// ChunkSize is the number of rows read per chunk
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`

	// CacheDir holds table files downloaded from remote storage
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`
}

// StorageConfig holds storage configuration for assets and remote datasets.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage root (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Region string `json:"region" yaml:"region"`
	// Endpoint is set for S3-compatible storage
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// Prefix is prepended to every object key
	Prefix string `json:"prefix" yaml:"prefix"`
}

// DefaultConfig returns the default configuration for local use.
func DefaultConfig() *Config {
	return &Config{
		Mode:    ModeEncode,
		DataDir: "./data/beatset",
		Encode: EncodeConfig{
			InputDir:  "./extracted",
			BatchSize: 100,
			Assets:    AssetsReferenced,
		},
		Reconstruct: ReconstructConfig{
			OutputDir:   "./reconstructed",
			Concurrency: 4,
			ChunkSize:   8192,
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Log: logger.DefaultConfig(),
	}
}

// Resolve fills derived paths from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/beatset"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = c.DataDir
	}
	if c.Reconstruct.CacheDir == "" {
		c.Reconstruct.CacheDir = filepath.Join(c.DataDir, ".cache")
	}
}

// LedgerPath returns the failure ledger file.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "failed_folders.txt")
}

// CatalogPath returns the run catalog database.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.DataDir, "catalog.db")
}

// LockPath returns the file locked while an encode run owns the dataset.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, ".lock")
}

// StagingDir returns the parent of per-run staging directories.
func (c *Config) StagingDir() string {
	return filepath.Join(c.DataDir, ".staging")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeEncode, ModeReconstruct, ModePartitions:
	default:
		return fmt.Errorf("invalid mode: %s (must be encode, reconstruct, or partitions)", c.Mode)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Mode == ModeEncode && c.Encode.InputDir == "" {
		return fmt.Errorf("encode.input_dir is required")
	}

	if c.Encode.BatchSize < 1 {
		return fmt.Errorf("encode.batch_size must be positive, got %d", c.Encode.BatchSize)
	}

	switch c.Encode.Assets {
	case AssetsReferenced, AssetsAll, AssetsNone:
	default:
		return fmt.Errorf("invalid encode.assets: %s (must be referenced, all, or none)", c.Encode.Assets)
	}

	if c.Encode.Sample < 0 {
		return fmt.Errorf("encode.sample must not be negative, got %d", c.Encode.Sample)
	}

	if c.Reconstruct.Concurrency < 1 || c.Reconstruct.Concurrency > 64 {
		return fmt.Errorf("reconstruct.concurrency must be between 1 and 64, got %d", c.Reconstruct.Concurrency)
	}

	if c.Reconstruct.ChunkSize < 1 {
		return fmt.Errorf("reconstruct.chunk_size must be positive, got %d", c.Reconstruct.ChunkSize)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults.
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

// LoadDotEnv loads variables from a .env file if it exists. Variables already
// set in the environment win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// LoadFromEnv applies BEATSET_ environment variables to cfg.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("BEATSET_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("BEATSET_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Encode configuration
	if v := os.Getenv("BEATSET_INPUT_DIR"); v != "" {
		cfg.Encode.InputDir = v
	}
	if v := os.Getenv("BEATSET_FORCE"); v != "" {
		cfg.Encode.Force = envBool(v)
	}
	envInt("BEATSET_SAMPLE", &cfg.Encode.Sample)
	envInt("BEATSET_BATCH_SIZE", &cfg.Encode.BatchSize)
	if v := os.Getenv("BEATSET_ASSETS"); v != "" {
		cfg.Encode.Assets = AssetMode(v)
	}

	// Reconstruct configuration
	if v := os.Getenv("BEATSET_OUTPUT_DIR"); v != "" {
		cfg.Reconstruct.OutputDir = v
	}
	if v := os.Getenv("BEATSET_PARTITION"); v != "" {
		cfg.Reconstruct.PartitionID = v
	}
	envInt("BEATSET_LIMIT", &cfg.Reconstruct.Limit)
	envInt("BEATSET_CONCURRENCY", &cfg.Reconstruct.Concurrency)
	envInt("BEATSET_CHUNK_SIZE", &cfg.Reconstruct.ChunkSize)

	// Storage configuration
	if v := os.Getenv("BEATSET_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("BEATSET_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("BEATSET_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("BEATSET_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("BEATSET_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("BEATSET_S3_PREFIX"); v != "" {
		cfg.Storage.S3.Prefix = v
	}

	// Log configuration
	if v := os.Getenv("BEATSET_LOG_LEVEL"); v != "" {
		var lvl zapcore.Level
		if err := lvl.Set(v); err == nil {
			cfg.Log.Level = lvl
		}
	}
	if v := os.Getenv("BEATSET_LOG_PATH"); v != "" {
		cfg.Log.Path = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(v string) bool {
	return v == "true" || v == "1"
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.StagingDir(),
	}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	} else {
		dirs = append(dirs, c.Reconstruct.CacheDir)
	}
	if c.Mode == ModeReconstruct {
		dirs = append(dirs, c.Reconstruct.OutputDir)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
