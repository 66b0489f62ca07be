package main

import (
	"fmt"
	"os"

	"github.com/seriaati/image-host/internal/config"
	"github.com/seriaati/image-host/internal/logger"
	"github.com/seriaati/image-host/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "imagehost",
	Short: "Manage image-host storage backends",
	Long:  `A storage tool for image-host deployments: inspect the local or S3 backend and migrate local files to S3 with support for checkpointing, retry, and monitoring.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().String("storage-type", "local", "Storage backend (local/s3)")
	rootCmd.PersistentFlags().String("local-path", "files", "Directory backing local storage")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(urlCmd)
}

// setup loads the configuration and builds the logger shared by every
// command.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, log, nil
}

// newProvider builds the storage backend the configuration selects.
func newProvider(cfg *config.Config) (storage.Provider, error) {
	return storage.New(storage.Config{
		Kind:      storage.Kind(cfg.Storage.Type),
		LocalPath: cfg.Storage.LocalPath,
		S3: storage.S3Config{
			EndpointURL:     cfg.Storage.S3.EndpointURL,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			Bucket:          cfg.Storage.S3.Bucket,
			Region:          cfg.Storage.S3.Region,
			CustomDomain:    cfg.Storage.S3.CustomDomain,
		},
	})
}
