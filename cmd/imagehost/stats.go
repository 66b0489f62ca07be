package main

import (
	"context"
	"fmt"

	"github.com/seriaati/image-host/internal/progress"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show object count and total size",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()

	count, err := provider.Count(ctx)
	if err != nil {
		return err
	}
	size, err := provider.TotalSize(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Storage:    %s\n", cfg.Storage.Type)
	fmt.Printf("Objects:    %d\n", count)
	fmt.Printf("Total size: %s\n", progress.FormatBytes(size))
	return nil
}
