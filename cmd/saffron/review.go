package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/saffron/internal/cli"
	"github.com/Veraticus/saffron/internal/proposals"
	"github.com/Veraticus/saffron/internal/review"
)

func (a *app) reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Work with review documents and category proposals",
	}

	cmd.AddCommand(a.reviewExportCmd())
	cmd.AddCommand(a.reviewApplyCmd())
	cmd.AddCommand(a.reviewProposalsCmd())
	return cmd
}

func (a *app) reviewExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export FILE",
		Short: "Write every stored transaction awaiting review to a document",
		Long: `Collect transactions earlier runs left for review, together with pending
category proposals, into a YAML document for "review apply".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, cleanup, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			doc, err := review.ExportBacklog(ctx, store, a.settings.Categorization.EngineConfig().SimilarHistoryLimit, time.Now())
			if err != nil {
				return err
			}
			if err := review.WriteFile(args[0], doc); err != nil {
				return err
			}

			_, _ = fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("Wrote %d transactions and %d proposals to %s",
				len(doc.Transactions), len(doc.Proposals), args[0])))
			return nil
		},
	}
}

func (a *app) reviewApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply FILE",
		Short: "Apply the decisions written into a review document",
		Long: `Apply a review document produced by "categorize --review-out".

Transactions marked accept are assigned to the override category or the
top suggestion and their merchant is learned. Proposals marked approve
create the category, learn each example merchant and mark the proposal
approved. Entries left blank are kept for a later pass.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			doc, err := review.ReadFile(args[0])
			if err != nil {
				return err
			}

			store, cleanup, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := review.NewApplier(store, slog.Default()).Apply(ctx, doc)
			if err != nil {
				return fmt.Errorf("failed to apply review: %w", err)
			}

			_, _ = fmt.Fprintln(a.out, cli.RenderApplySummary(stats))
			return nil
		},
	}
}

func (a *app) reviewProposalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proposals",
		Short: "List category proposals awaiting approval",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, cleanup, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			pending, err := proposals.NewTracker(store).Pending(ctx)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				_, _ = fmt.Fprintln(a.out, cli.FormatInfo("No pending proposals"))
				return nil
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "CATEGORY\tSUBCATEGORY\tSUPPORT\tTOTAL\tMAX CONFIDENCE\tLAST SEEN")
			for _, p := range pending {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.0f%%\t%s\n",
					p.Category,
					p.Subcategory,
					p.SupportCount,
					p.TotalAmount.StringFixed(2),
					p.MaxConfidence*100,
					p.LastSeen.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
}
