package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/saffron/internal/merchant"
)

func (a *app) patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "patterns",
		Aliases: []string{"pattern"},
		Short:   "Inspect learned merchant patterns",
	}

	cmd.AddCommand(a.patternsListCmd())
	cmd.AddCommand(patternsKeyCmd())
	return cmd
}

func (a *app) patternsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List learned merchant patterns by usage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, cleanup, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			patterns, err := store.ListPatterns(ctx)
			if err != nil {
				return fmt.Errorf("failed to list patterns: %w", err)
			}
			categories, err := store.ListCategories(ctx)
			if err != nil {
				return fmt.Errorf("failed to list categories: %w", err)
			}
			names := make(map[int64]string, len(categories))
			for _, c := range categories {
				names[c.ID] = c.Name + " / " + c.Subcategory
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "PATTERN\tDISPLAY\tCATEGORY\tCONFIDENCE\tUSES")
			for _, p := range patterns {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%d\n",
					p.PatternKey,
					p.Display,
					names[p.CategoryID],
					p.EffectiveConfidence()*100,
					p.UsageCount)
			}
			return w.Flush()
		},
	}
}

func patternsKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key MERCHANT...",
		Short: "Show the pattern key derived from raw merchant text",
		Args:  cobra.MinimumNArgs(1),
		// Key derivation needs no configuration or database.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, raw := range args {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", raw, merchant.Normalize(raw), merchant.PatternKey(raw))
			}
			return w.Flush()
		},
	}
}
