package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gallery/internal/catalog"
	"gallery/internal/chaos"
	"gallery/internal/config"
	"gallery/internal/observability"
)

func newChaosCmd(configPath *string) *cobra.Command {
	var itemID string

	cmd := &cobra.Command{
		Use:   "chaos",
		Short: "Run fault-injection experiments against the upstream catalog",
		Long: `Runs the predefined experiments against the configured catalog:
listing failure isolation, coalescing under latency and abandoned loads.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger(cfg.Log.Level)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			engine := chaos.NewEngine(logger.Named("chaos"))
			engine.RegisterExperiments(chaos.Target{
				BaseURL:   cfg.Catalog.BaseURL,
				ItemID:    catalog.ItemID(itemID),
				Freshness: cfg.Loader.Freshness,
			})

			failed := 0
			for _, res := range engine.RunAll(cmd.Context(), cmd.OutOrStdout()) {
				if !res.HypothesisHeld {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d experiment(s) violated their hypothesis", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&itemID, "item", "0", "Post id used by experiments that load a single post")
	return cmd
}
