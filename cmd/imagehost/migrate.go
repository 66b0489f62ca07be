package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seriaati/image-host/internal/checkpoint"
	"github.com/seriaati/image-host/internal/metrics"
	"github.com/seriaati/image-host/internal/migrate"
	"github.com/seriaati/image-host/internal/progress"
	"github.com/seriaati/image-host/internal/storage"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateYes bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upload local files to the configured S3 bucket",
	Long:  `Snapshots the local storage directory and uploads every file to the S3 bucket, with concurrent transfers, per-object retries, and an optional cleanup of the local copies once everything has arrived.`,
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().Bool("dry-run", false, "List planned transfers without migrating")
	migrateCmd.Flags().Bool("delete-local", false, "Delete local files after a fully successful run")
	migrateCmd.Flags().Int("concurrency", 10, "Number of concurrent transfers")
	migrateCmd.Flags().Int("retries", 3, "Maximum retry attempts per object")
	migrateCmd.Flags().Int("start-index", 1, "1-based inventory position to start from")
	migrateCmd.Flags().Bool("resume", false, "Continue from the checkpoint journal")
	migrateCmd.Flags().String("checkpoint", "./migrate.db", "Checkpoint database file")
	migrateCmd.Flags().Bool("show-progress", true, "Show progress display (auto-disabled for dry-run)")
	migrateCmd.Flags().String("metrics-addr", "", "Prometheus listen address (disabled when empty)")
	migrateCmd.Flags().BoolVarP(&migrateYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Storage.Type != string(storage.KindS3) {
		return fmt.Errorf("migrate uploads to s3 storage, but the configured storage type is %q", cfg.Storage.Type)
	}

	source := storage.NewLocal(cfg.Storage.LocalPath)

	dest, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal, gracefully stopping...")
		cancel()
	}()

	// One listing proves the bucket is reachable before anything moves.
	if _, err := dest.List(ctx); err != nil {
		return fmt.Errorf("destination is not reachable: %w", err)
	}

	journal, err := checkpoint.NewSQLiteJournal(cfg.Migration.Checkpoint)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint journal: %w", err)
	}
	defer journal.Close()

	startIndex := cfg.Migration.StartIndex
	if cfg.Migration.Resume && !cmd.Flags().Changed("start-index") {
		startIndex, err = journal.ResumeIndex()
		if err != nil {
			return fmt.Errorf("failed to read checkpoint journal: %w", err)
		}
		log.Info("resuming from checkpoint", zap.Int("start_index", startIndex))
	}

	collector := metrics.New()
	tracker := progress.NewTracker()

	job := migrate.NewJob(source, dest, migrate.Options{
		DryRun:       cfg.Migration.DryRun,
		DeleteSource: cfg.Migration.DeleteLocal,
		Concurrency:  cfg.Migration.Concurrency,
		MaxRetries:   cfg.Migration.Retries,
		StartIndex:   startIndex,
	}, journal, collector, tracker, log)

	plan, err := job.Plan(ctx)
	if err != nil {
		if cfg.Migration.Resume && errors.Is(err, migrate.ErrStartIndex) {
			return fmt.Errorf("%w (the checkpoint may already cover every file; run without --resume to start over)", err)
		}
		return err
	}

	if len(plan.Tasks) == 0 {
		color.Yellow("Nothing to migrate: %d files in %s.", plan.Inventory, cfg.Storage.LocalPath)
		return nil
	}

	if !cfg.Migration.DryRun && !migrateYes {
		fmt.Printf("About to migrate %d files (%s) from %s to bucket %q.\n",
			len(plan.Tasks), progress.FormatBytes(plan.TotalBytes),
			cfg.Storage.LocalPath, cfg.Storage.S3.Bucket)
		if cfg.Migration.DeleteLocal {
			color.Yellow("⚠ Local files will be deleted after a fully successful run.")
		}

		confirmed := false
		if err := survey.AskOne(&survey.Confirm{Message: "Proceed with the migration?"}, &confirmed); err != nil {
			return err
		}
		if !confirmed {
			color.Red("Migration aborted.")
			return nil
		}
	}

	// A fresh run starts from an empty journal; a resumed one builds on it.
	if !cfg.Migration.DryRun && !cfg.Migration.Resume {
		if err := journal.Reset(); err != nil {
			return fmt.Errorf("failed to reset checkpoint journal: %w", err)
		}
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := collector.Serve(cfg.MetricsAddr); err != nil {
				log.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}

	var display *progress.Display
	if cfg.Migration.ShowProgress && !cfg.Migration.DryRun && progress.IsTerminalSupported() {
		display = progress.NewDisplay(tracker, time.Second)
		display.Start()
	}

	report, err := job.Run(ctx)
	if display != nil {
		display.Stop()
	}
	if err != nil {
		return err
	}

	printReport(report)

	if len(report.Failures) > 0 {
		return fmt.Errorf("%d of %d files failed to migrate", len(report.Failures), report.PlannedCount)
	}
	return nil
}

func printReport(report *migrate.Report) {
	fmt.Println()

	if report.SkippedCount > 0 {
		fmt.Printf("Skipped %d files before the start index.\n", report.SkippedCount)
	}

	if report.DryRun {
		fmt.Printf("Dry run: %d of %d files would be migrated.\n", report.PlannedCount, report.InventorySize)
		return
	}

	color.Green("✓ %d files migrated (%s in %s, %.1f files/s)",
		len(report.Succeeded), progress.FormatBytes(report.BytesMoved),
		progress.FormatDuration(report.Elapsed), report.Throughput)

	for _, f := range report.Failures {
		color.Red("✗ #%d %s: %v", f.Index, f.Key, f.Err)
	}

	switch {
	case report.DeletionSkipped:
		color.Yellow("⚠ Local files kept: the run had failures.")
	case report.SourceDeleted > 0:
		fmt.Printf("Deleted %d local files.\n", report.SourceDeleted)
	}
	for _, f := range report.DeleteErrors {
		color.Red("✗ could not delete %s: %v", f.Key, f.Err)
	}
}
