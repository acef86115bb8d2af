package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/saffron/internal/cli"
	"github.com/Veraticus/saffron/internal/storage"
)

func (a *app) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This command ensures your local database has all the required
tables and indexes for categorization to run.`,
	}

	status := cmd.Flags().Bool("status", false, "show schema version and row counts")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		slog.Info("running database migrations", "database", a.settings.Database.Path)

		store, cleanup, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if !*status {
			_, _ = fmt.Fprintln(a.out, cli.FormatSuccess("Database is up to date"))
			return nil
		}

		current, err := store.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		total, needsReview, err := store.CountTransactions(ctx)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(a.out, "Database:        %s\n", store.Path())
		_, _ = fmt.Fprintf(a.out, "Schema version:  %d (latest %d)\n", current, storage.ExpectedSchemaVersion)
		_, _ = fmt.Fprintf(a.out, "Transactions:    %d (%d need review)\n", total, needsReview)
		return nil
	}

	return cmd
}
