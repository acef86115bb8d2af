package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/saffron/internal/cli"
	"github.com/Veraticus/saffron/internal/model"
)

func (a *app) categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"category"},
		Short:   "Manage the category taxonomy",
	}

	cmd.AddCommand(a.categoriesListCmd())
	cmd.AddCommand(a.categoriesAddCmd())
	return cmd
}

func (a *app) categoriesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, cleanup, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			categories, err := store.ListCategories(ctx)
			if err != nil {
				return fmt.Errorf("failed to list categories: %w", err)
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tCATEGORY\tSUBCATEGORY\tSOURCE\tAPPROVED")
			for _, c := range categories {
				source := "user"
				if c.SystemGenerated {
					source = "generated"
				}
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\n", c.ID, c.Name, c.Subcategory, source, c.Approved)
			}
			return w.Flush()
		},
	}
}

func (a *app) categoriesAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add CATEGORY SUBCATEGORY",
		Short: "Add an approved category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, cleanup, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			ref := model.CategoryRef{Category: args[0], Subcategory: args[1]}
			if existing, err := store.FindCategory(ctx, ref); err == nil && existing != nil {
				_, _ = fmt.Fprintln(a.out, cli.FormatWarning(ref.String()+" already exists"))
				return nil
			}

			created, err := store.CreateCategory(ctx, ref, false, true)
			if err != nil {
				return fmt.Errorf("failed to create category: %w", err)
			}
			_, _ = fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("Added %s (id %d)", ref, created.ID)))
			return nil
		},
	}
}
