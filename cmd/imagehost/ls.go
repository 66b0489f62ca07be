package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/seriaati/image-host/internal/progress"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored objects and their sizes",
	RunE:  runLs,
}

func runLs(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	objects, err := provider.List(context.Background())
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(objects))
	for key := range objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		fmt.Printf("%10s  %s\n", progress.FormatBytes(objects[key]), key)
	}
	return nil
}
