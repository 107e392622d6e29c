package main

import (
	"github.com/spf13/cobra"

	"gallery/internal/catalog"
)

func newShowCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "show <id>",
		Short:   "Print a post page, with author posts and related posts, as JSON",
		Example: `  gallery show 10`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()

			page, err := a.builder.Post(ctx, catalog.ItemID(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), page)
		},
	}
}
