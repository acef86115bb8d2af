package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/saffron/internal/cli"
	"github.com/Veraticus/saffron/internal/engine"
	"github.com/Veraticus/saffron/internal/importer"
	"github.com/Veraticus/saffron/internal/llm"
	"github.com/Veraticus/saffron/internal/metrics"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/review"
)

type categorizeFlags struct {
	account     string
	reviewOut   string
	metricsFile string
	autoAssign  float64
	needsReview float64
	skipLLM     bool
	dryRun      bool
	quiet       bool
}

func (a *app) categorizeCmd() *cobra.Command {
	var f categorizeFlags

	cmd := &cobra.Command{
		Use:   "categorize FILE...",
		Short: "Categorize transactions from CSV or OFX exports",
		Long: `Import one or more bank exports and categorize every transaction.

Known merchants are matched against learned patterns and past decisions.
The rest are sent to the configured model in small batches; confident
answers are assigned, new categories are proposed or created, and anything
uncertain is written to the review document.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCategorize(cmd.Context(), args, f)
		},
	}

	cmd.Flags().StringVarP(&f.account, "account", "a", "", "account id for rows without one")
	cmd.Flags().StringVarP(&f.reviewOut, "review-out", "o", "", "write the review document to this YAML file")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	cmd.Flags().Float64Var(&f.autoAssign, "auto-threshold", 0, "confidence needed to assign without review (default from config)")
	cmd.Flags().Float64Var(&f.needsReview, "review-threshold", 0, "confidence below which suggestions are not trusted (default from config)")
	cmd.Flags().BoolVar(&f.skipLLM, "skip-llm", false, "use rules only; everything else goes to review")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "do not create categories, learn patterns or save decisions")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "hide progress and summary")

	return cmd
}

func (a *app) runCategorize(ctx context.Context, files []string, f categorizeFlags) error {
	store, cleanup, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var txns []model.Transaction
	for _, path := range files {
		imported, err := importer.ImportFile(ctx, path, f.account)
		if err != nil {
			return err
		}
		txns = append(txns, imported...)
	}

	recorder := metrics.NewRecorder()

	var suggester engine.Suggester
	switch {
	case f.skipLLM:
	case !a.settings.LLM.Available():
		slog.Warn("no model configured; unmatched transactions will need review",
			"provider", a.settings.LLM.Provider)
	default:
		s, err := llm.NewSuggesterFromConfig(ctx, a.settings.LLM.ClientConfig(), slog.Default())
		if err != nil {
			slog.Warn("failed to create model client; unmatched transactions will need review",
				"provider", a.settings.LLM.Provider, "error", err)
			break
		}
		defer func() { _ = s.Close() }()

		s.WithMetrics(recorder)
		if !f.quiet {
			s.WithProgress(cli.NewProgress(a.errOut, "Asking model").Update)
		}
		suggester = s
	}

	eng, err := engine.New(store, suggester, a.settings.Categorization.EngineConfig())
	if err != nil {
		return err
	}
	eng.WithMetrics(recorder)

	opts := a.settings.Categorization.Options()
	opts.DefaultAccount = f.account
	opts.SkipExternal = f.skipLLM
	opts.ApplySideEffects = !f.dryRun
	if f.autoAssign > 0 {
		opts.AutoAssignThreshold = f.autoAssign
	}
	if f.needsReview > 0 {
		opts.NeedsReviewThreshold = f.needsReview
	}

	result, err := eng.CategorizeTransactions(ctx, txns, opts)
	if err != nil {
		return fmt.Errorf("failed to categorize transactions: %w", err)
	}

	if !f.dryRun {
		if err := store.SaveDecisions(ctx, result.Decisions); err != nil {
			return fmt.Errorf("failed to save decisions: %w", err)
		}
	}

	if f.reviewOut != "" {
		if err := review.WriteFile(f.reviewOut, review.Export(result, time.Now())); err != nil {
			return err
		}
		slog.Info("wrote review document", "path", f.reviewOut,
			"transactions", len(result.TransactionReviews),
			"proposals", len(result.CategoryProposals))
	}

	if f.metricsFile != "" {
		if err := recorder.WriteTextfile(f.metricsFile); err != nil {
			return err
		}
	}

	if !f.quiet {
		_, _ = fmt.Fprintln(a.out, cli.RenderRunSummary(*result))
	}
	return nil
}
