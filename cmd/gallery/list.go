package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"gallery/internal/catalog"
	"gallery/internal/journal"
)

func newListCmd(configPath *string) *cobra.Command {
	var (
		limit   int
		author  string
		search  string
		related string
		stats   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print one page of posts as JSON",
		Example: `  gallery list --limit 10
  gallery list --author "Alejandro Escamilla"
  gallery list --q escam --related 0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()

			page, err := a.builder.Posts(ctx, catalog.ListingRequest{
				Limit:     limit,
				Author:    author,
				Search:    search,
				RelatedTo: catalog.ItemID(related),
			})
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), page); err != nil {
				return err
			}
			if !stats {
				return nil
			}
			calls, err := a.calls(ctx)
			if err != nil {
				return err
			}
			printSummary(cmd.ErrOrStderr(), journal.Summarize(calls))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Page size (0 uses the configured default)")
	cmd.Flags().StringVar(&author, "author", "", "Only posts by this exact author")
	cmd.Flags().StringVarP(&search, "q", "q", "", "Case-insensitive author substring")
	cmd.Flags().StringVar(&related, "related", "", "Exclude this post and its author")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print upstream call statistics to stderr")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(w io.Writer, summaries []journal.Summary) {
	fmt.Fprintln(w, "📊 Upstream calls")
	for _, s := range summaries {
		fmt.Fprintf(w, "   %-6s calls=%d failures=%d\n", s.Endpoint, s.Calls, s.Failures)
	}
}
