package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var urlCmd = &cobra.Command{
	Use:   "url <key>",
	Short: "Print the public URL of a stored object",
	Long:  `Resolves the URL an object is served under. The resolution is purely computed from configuration, so the object does not need to exist yet.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runURL,
}

func runURL(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	fmt.Println(provider.ResolveURL(args[0]))
	return nil
}
