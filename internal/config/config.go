// Package config loads rebuild settings with priority env > file > defaults.
//
// Environment variables:
//
//	SYNSTRENGTH_STORAGE_DRIVER   memory|sqlite|postgres (default sqlite)
//	SYNSTRENGTH_SQLITE_PATH      database file (default ./synstrength.db)
//	SYNSTRENGTH_POSTGRES_DSN     connection string (default postgres.DefaultDSN)
//	SYNSTRENGTH_WORKERS          processor workers (default NumCPU)
//	SYNSTRENGTH_BATCH_SIZE       rows per batch (default 1000)
//	SYNSTRENGTH_SAMPLE_RATE      sample rate in Hz (default 20000)
//	SYNSTRENGTH_MIN_SAMPLES      smallest summarised cohort (default 1)
//	SYNSTRENGTH_CLAMP_MODE       clamp mode of summarised features (default ic)
//	SYNSTRENGTH_BLOB_DRIVER      fs|s3|memory (default fs)
//	SYNSTRENGTH_BLOB_FS_ROOT     fs driver root (default ./artifacts)
//	SYNSTRENGTH_BLOB_S3_BUCKET, _REGION, _ENDPOINT, _PATH_STYLE
//	SYNSTRENGTH_LOG_LEVEL        debug|info|warn|error (default info)
//	SYNSTRENGTH_LOG_FORMAT       text|json (default text)
//	SYNSTRENGTH_METRICS_ADDR     serve /metrics on this address when set
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"synstrength/internal/blob"
	"synstrength/internal/strength"
	"synstrength/pkg/domain"
)

// StorageDriver names a storage backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"
	StorageSQLite   StorageDriver = "sqlite"
	StoragePostgres StorageDriver = "postgres"
)

const envPrefix = "SYNSTRENGTH_"

type Storage struct {
	Driver       StorageDriver `yaml:"driver"`
	SQLitePath   string        `yaml:"sqlite_path"`
	PostgresDSN  string        `yaml:"postgres_dsn"`
	MaxOpenConns int           `yaml:"max_open_conns"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete process configuration.
type Config struct {
	Storage    Storage `yaml:"storage"`
	Workers    int     `yaml:"workers"`
	BatchSize  int     `yaml:"batch_size"`
	SampleRate float64 `yaml:"sample_rate"`
	MinSamples int     `yaml:"min_samples"`
	ClampMode  string  `yaml:"clamp_mode"`
	// PairConcurrency bounds the aggregator's concurrent pair reads.
	PairConcurrency int         `yaml:"pair_concurrency"`
	Blob            blob.Config `yaml:"blob"`
	Log             Log         `yaml:"log"`
	MetricsAddr     string      `yaml:"metrics_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage:         Storage{Driver: StorageSQLite, SQLitePath: "./synstrength.db"},
		Workers:         runtime.NumCPU(),
		BatchSize:       strength.DefaultBatchSize,
		SampleRate:      strength.DefaultSampleRate,
		MinSamples:      1,
		ClampMode:       domain.ClampModeCurrent,
		PairConcurrency: 4,
		Blob:            blob.Config{Driver: blob.DriverFilesystem, FSRoot: "./artifacts"},
		Log:             Log{Level: "info", Format: "text"},
	}
}

// Load merges defaults, the YAML file at path (skipped when path is empty)
// and the environment read through getenv (os.Getenv when nil).
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	var errs []error
	str := func(name string, dst *string) {
		if v := getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := getenv(envPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	if v := getenv(envPrefix + "STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = StorageDriver(strings.ToLower(v))
	}
	str("SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	num("WORKERS", &cfg.Workers)
	num("BATCH_SIZE", &cfg.BatchSize)
	num("MIN_SAMPLES", &cfg.MinSamples)
	if v := getenv(envPrefix + "SAMPLE_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSAMPLE_RATE: %w", envPrefix, err))
		} else {
			cfg.SampleRate = f
		}
	}
	str("CLAMP_MODE", &cfg.ClampMode)
	if v := getenv(envPrefix + "BLOB_DRIVER"); v != "" {
		cfg.Blob.Driver = blob.Driver(strings.ToLower(v))
	}
	str("BLOB_FS_ROOT", &cfg.Blob.FSRoot)
	str("BLOB_S3_BUCKET", &cfg.Blob.S3.Bucket)
	str("BLOB_S3_REGION", &cfg.Blob.S3.Region)
	str("BLOB_S3_ENDPOINT", &cfg.Blob.S3.Endpoint)
	if v := getenv(envPrefix + "BLOB_S3_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sBLOB_S3_PATH_STYLE: %w", envPrefix, err))
		} else {
			cfg.Blob.S3.PathStyle = b
		}
	}
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("METRICS_ADDR", &cfg.MetricsAddr)
	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StorageMemory, StoragePostgres:
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path required for sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", c.BatchSize))
	}
	if !(c.SampleRate > 0) {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %v", c.SampleRate))
	}
	if c.MinSamples < 1 {
		errs = append(errs, fmt.Errorf("min_samples must be at least 1, got %d", c.MinSamples))
	}
	if c.ClampMode == "" {
		errs = append(errs, errors.New("clamp_mode required"))
	}
	if c.PairConcurrency < 1 {
		errs = append(errs, fmt.Errorf("pair_concurrency must be positive, got %d", c.PairConcurrency))
	}
	switch c.Blob.Driver {
	case "", blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket required for s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	return errors.Join(errs...)
}
