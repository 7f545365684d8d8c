package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-mentat-must-flow/internal/cli"
	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage spending categories",
		Long:  `List, add, and deactivate the categories transactions are sorted into.`,
	}

	cmd.AddCommand(listCategoriesCmd())
	cmd.AddCommand(addCategoryCmd())
	cmd.AddCommand(deactivateCategoryCmd())
	return cmd
}

func listCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all active categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			categories, err := store.GetCategories(ctx)
			if err != nil {
				return fmt.Errorf("failed to get categories: %w", err)
			}
			if len(categories) == 0 {
				fmt.Println(cli.SubtleStyle.Render("No categories found. Use 'mentat categories add' to create one."))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				cli.TableHeaderStyle.Render("ID"),
				cli.TableHeaderStyle.Render("Name"),
				cli.TableHeaderStyle.Render("Type"))
			for _, cat := range categories {
				fmt.Fprintf(w, "%d\t%s\t%s\n", cat.ID, cat.Name, cat.Type)
			}
			return w.Flush()
		},
	}
}

func addCategoryCmd() *cobra.Command {
	var categoryType string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a new category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			category := model.Category{
				Name:     args[0],
				Type:     model.CategoryType(categoryType),
				IsActive: true,
			}
			if err := store.SaveCategory(ctx, category); err != nil {
				return fmt.Errorf("failed to save category: %w", err)
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Category %q added", args[0])))
			return nil
		},
	}

	cmd.Flags().StringVarP(&categoryType, "type", "t", "spending", "category type (spending, income, saving)")
	return cmd
}

func deactivateCategoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <name>",
		Short: "Deactivate a category",
		Long:  `Hide a category from future classification without touching the transactions already assigned to it.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			if err := store.DeactivateCategory(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to deactivate category: %w", err)
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Category %q deactivated", args[0])))
			return nil
		},
	}
}
