package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Photo gallery backed by a cached, coalescing catalog loader",
		Long: `Gallery serves posts from a public image catalog.

Upstream responses are cached for a short freshness window and concurrent
identical requests share a single upstream call.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")

	cmd.AddCommand(
		newServeCmd(&configPath),
		newListCmd(&configPath),
		newShowCmd(&configPath),
		newChaosCmd(&configPath),
	)
	return cmd
}
