// Package config provides configuration loading and structs for the leakscan server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. LEAKSCAN_SERVER_PORT.
const EnvPrefix = "LEAKSCAN_"

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug" env:"DEBUG"`
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	Ingest  IngestConfig  `yaml:"ingest" envPrefix:"INGEST_"`
	Search  SearchConfig  `yaml:"search" envPrefix:"SEARCH_"`
	Watch   WatchConfig   `yaml:"watch" envPrefix:"WATCH_"`
}

// LogConfig holds the optional rotating log file.
type LogConfig struct {
	File       string `yaml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string `yaml:"host" env:"HOST"`
	Port        int    `yaml:"port" env:"PORT"`
	MaxUploadMB int64  `yaml:"max_upload_mb" env:"MAX_UPLOAD_MB"`
}

// StorageConfig holds paths for the registry database, the index and archived dumps.
type StorageConfig struct {
	DatabasePath   string      `yaml:"database_path" env:"DATABASE_PATH"`
	BleveIndexPath string      `yaml:"bleve_index_path" env:"BLEVE_INDEX_PATH"`
	UploadDir      string      `yaml:"upload_dir" env:"UPLOAD_DIR"`
	MinIO          MinIOConfig `yaml:"minio" envPrefix:"MINIO_"`
}

// MinIOConfig selects the MinIO blob store when Endpoint is set.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"SECRET_KEY"`
	Bucket    string `yaml:"bucket" env:"BUCKET"`
	UseSSL    bool   `yaml:"use_ssl" env:"USE_SSL"`
}

// Enabled reports whether dumps should be archived in MinIO.
func (m MinIOConfig) Enabled() bool {
	return m.Endpoint != ""
}

// Duplicate policies for IngestConfig.DuplicatePolicy.
const (
	DuplicateSkip   = "skip"
	DuplicateReject = "reject"
	DuplicateAllow  = "allow"
)

// IngestConfig holds batching and retry settings for index commits.
type IngestConfig struct {
	BatchSize              int    `yaml:"batch_size" env:"BATCH_SIZE"`
	Concurrency            int    `yaml:"concurrency" env:"CONCURRENCY"`
	MaxRetries             int    `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryInitialIntervalMS int    `yaml:"retry_initial_interval_ms" env:"RETRY_INITIAL_INTERVAL_MS"`
	MaxLineBytes           int    `yaml:"max_line_bytes" env:"MAX_LINE_BYTES"`
	DuplicatePolicy        string `yaml:"duplicate_policy" env:"DUPLICATE_POLICY"`
}

// SearchConfig holds paging limits.
type SearchConfig struct {
	DefaultPageSize int `yaml:"default_page_size" env:"DEFAULT_PAGE_SIZE"`
	MaxPageSize     int `yaml:"max_page_size" env:"MAX_PAGE_SIZE"`
	ExportLimit     int `yaml:"export_limit" env:"EXPORT_LIMIT"`
}

// WatchConfig holds drop-directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories" env:"DIRECTORIES"`
	Extensions  []string `yaml:"extensions" env:"EXTENSIONS"`
	Recursive   *bool    `yaml:"recursive"`
	OwnerID     string   `yaml:"owner_id" env:"OWNER_ID"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies LEAKSCAN_ environment
// overrides, expands paths and applies defaults. Returns an error if the file
// cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Log.File = expandPath(cfg.Log.File, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.UploadDir = expandPath(cfg.Storage.UploadDir, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// FromEnv builds a config from defaults and LEAKSCAN_ environment variables only.
// Used when no config file exists.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	cwd, _ := os.Getwd()
	cfg.Log.File = expandPath(cfg.Log.File, cwd)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, cwd)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, cwd)
	cfg.Storage.UploadDir = expandPath(cfg.Storage.UploadDir, cwd)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], cwd)
	}
	return &cfg, nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing files
// are skipped; variables already set are not overridden.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// Validate rejects settings no component can run with.
func Validate(cfg *Config) error {
	switch cfg.Ingest.DuplicatePolicy {
	case DuplicateSkip, DuplicateReject, DuplicateAllow:
	default:
		return fmt.Errorf("invalid ingest.duplicate_policy %q (want skip, reject or allow)", cfg.Ingest.DuplicatePolicy)
	}
	if cfg.Search.DefaultPageSize > cfg.Search.MaxPageSize {
		return fmt.Errorf("search.default_page_size %d exceeds search.max_page_size %d",
			cfg.Search.DefaultPageSize, cfg.Search.MaxPageSize)
	}
	return nil
}

// Save writes the config to path. Used for persisting watch directory changes.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/..." and other relative paths are relative to the home directory. Empty stays empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return path
}
