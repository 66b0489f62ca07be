package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration rejected by validation, before any backend
// I/O has happened.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application configuration
type Config struct {
	Storage     Storage   `yaml:"storage"`
	Migration   Migration `yaml:"migration"`
	LogLevel    string    `yaml:"log_level"`
	MetricsAddr string    `yaml:"metrics_addr"`
}

// Storage selects the backend and carries its settings
type Storage struct {
	Type      string   `yaml:"type"`
	LocalPath string   `yaml:"local_path"`
	S3        S3Config `yaml:"s3"`
}

// S3Config represents S3-compatible storage configuration
type S3Config struct {
	EndpointURL     string `yaml:"endpoint_url"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	CustomDomain    string `yaml:"custom_domain"`
}

// Migration represents migration-specific configuration
type Migration struct {
	DryRun       bool   `yaml:"dry_run"`
	DeleteLocal  bool   `yaml:"delete_local"`
	Concurrency  int    `yaml:"concurrency"`
	Retries      int    `yaml:"retries"`
	StartIndex   int    `yaml:"start_index"`
	Resume       bool   `yaml:"resume"`
	Checkpoint   string `yaml:"checkpoint"`
	ShowProgress bool   `yaml:"show_progress"`
}

// Load builds the configuration from defaults, an optional YAML file, the
// environment, and command line flags, in that order of precedence.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		LogLevel: "info",
		Storage: Storage{
			Type:      "local",
			LocalPath: "files",
			S3:        S3Config{Region: "auto"},
		},
		Migration: Migration{
			Concurrency:  10,
			Retries:      3,
			StartIndex:   1,
			Checkpoint:   "./migrate.db",
			ShowProgress: true,
		},
	}

	// Load from YAML file if provided
	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Environment beats the file: credentials live in the environment
	loadFromEnv(cfg)

	// Override with command line flags
	loadFromFlags(cfg, flags)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("LOCAL_STORAGE_PATH"); v != "" {
		cfg.Storage.LocalPath = v
	}
	if v := os.Getenv("S3_ENDPOINT_URL"); v != "" {
		cfg.Storage.S3.EndpointURL = v
	}
	if v := os.Getenv("S3_ACCESS_KEY_ID"); v != "" {
		cfg.Storage.S3.AccessKeyID = v
	}
	if v := os.Getenv("S3_SECRET_ACCESS_KEY"); v != "" {
		cfg.Storage.S3.SecretAccessKey = v
	}
	if v := os.Getenv("S3_BUCKET_NAME"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("S3_CUSTOM_DOMAIN"); v != "" {
		cfg.Storage.S3.CustomDomain = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) {
	if flags == nil {
		return
	}

	if flags.Changed("storage-type") {
		cfg.Storage.Type, _ = flags.GetString("storage-type")
	}
	if flags.Changed("local-path") {
		cfg.Storage.LocalPath, _ = flags.GetString("local-path")
	}

	if flags.Changed("dry-run") {
		cfg.Migration.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("delete-local") {
		cfg.Migration.DeleteLocal, _ = flags.GetBool("delete-local")
	}
	if flags.Changed("concurrency") {
		cfg.Migration.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("retries") {
		cfg.Migration.Retries, _ = flags.GetInt("retries")
	}
	if flags.Changed("start-index") {
		cfg.Migration.StartIndex, _ = flags.GetInt("start-index")
	}
	if flags.Changed("resume") {
		cfg.Migration.Resume, _ = flags.GetBool("resume")
	}
	if flags.Changed("checkpoint") {
		cfg.Migration.Checkpoint, _ = flags.GetString("checkpoint")
	}
	if flags.Changed("show-progress") {
		cfg.Migration.ShowProgress, _ = flags.GetBool("show-progress")
	}

	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
}

func (c *Config) validate() error {
	switch c.Storage.Type {
	case "local", "s3":
	default:
		return fmt.Errorf("storage type must be local or s3 (got %q)", c.Storage.Type)
	}

	if c.Storage.LocalPath == "" {
		return fmt.Errorf("local storage path is required")
	}

	if c.Storage.Type == "s3" {
		if c.Storage.S3.EndpointURL == "" {
			return fmt.Errorf("s3 endpoint is required")
		}
		if c.Storage.S3.AccessKeyID == "" {
			return fmt.Errorf("s3 access key id is required")
		}
		if c.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("s3 secret access key is required")
		}
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket name is required")
		}
	}

	if c.Migration.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.Migration.Retries < 0 {
		return fmt.Errorf("retries cannot be negative")
	}
	if c.Migration.StartIndex < 1 {
		return fmt.Errorf("start index must be at least 1")
	}

	return nil
}
