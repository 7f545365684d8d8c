package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-mentat-must-flow/internal/cli"
	"github.com/Veraticus/the-mentat-must-flow/internal/common"
	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage merchant rules",
		Long: `List, add, and delete merchant rules. A rule maps a merchant pattern
directly to a category; rules above the shortcut confidence bypass the
model entirely.`,
	}

	cmd.AddCommand(listRulesCmd())
	cmd.AddCommand(addRuleCmd())
	cmd.AddCommand(deleteRuleCmd())
	return cmd
}

func listRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all merchant rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			svc, store, err := initService(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			rules, err := svc.ListRules()
			if err != nil {
				if errors.Is(err, common.ErrNotTrained) {
					return common.NewUserError("No trained model found. Run 'mentat train' first.", err)
				}
				return err
			}
			if len(rules) == 0 {
				fmt.Println(cli.FormatSuccess("No merchant rules yet."))
				return nil
			}

			sort.Slice(rules, func(i, j int) bool { return rules[i].Pattern < rules[j].Pattern })

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				cli.TableHeaderStyle.Render("Pattern"),
				cli.TableHeaderStyle.Render("Category"),
				cli.TableHeaderStyle.Render("Confidence"),
				cli.TableHeaderStyle.Render("Occurrences"))
			for _, rule := range rules {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
					rule.Pattern, rule.Category, cli.FormatConfidence(rule.Confidence), rule.Occurrences)
			}
			return w.Flush()
		},
	}
}

func addRuleCmd() *cobra.Command {
	var confidence float64

	cmd := &cobra.Command{
		Use:   "add <pattern> <category>",
		Short: "Add or replace a merchant rule",
		Long: `Map a merchant pattern to a category. The pattern matches any
transaction whose cleaned merchant starts with or contains it.

Examples:
  mentat rules add "EDEKA" groceries
  mentat rules add "SHELL" fuel --confidence 0.99`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if confidence <= 0 || confidence > 1 {
				return common.NewUserError(
					fmt.Sprintf("Confidence must be between 0 and 1, got %s.", strconv.FormatFloat(confidence, 'g', -1, 64)),
					common.ErrInvalidConfig)
			}

			svc, store, err := initService(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			rule := model.MerchantRule{
				Pattern:    args[0],
				Category:   args[1],
				Confidence: confidence,
				LastSeen:   time.Now(),
			}
			if err := svc.AddRule(ctx, rule); err != nil {
				if errors.Is(err, common.ErrNotTrained) {
					return common.NewUserError("No trained model found. Run 'mentat train' first.", err)
				}
				return err
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Rule %q → %s saved", args[0], args[1])))
			return nil
		},
	}

	cmd.Flags().Float64VarP(&confidence, "confidence", "c", 0.99, "confidence assigned to the rule")
	return cmd
}

func deleteRuleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <pattern>",
		Short: "Delete a merchant rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, store, err := initService(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			if err := svc.DeleteRule(ctx, args[0]); err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return common.NewUserError(fmt.Sprintf("No rule matches %q.", args[0]), err)
				}
				if errors.Is(err, common.ErrNotTrained) {
					return common.NewUserError("No trained model found. Run 'mentat train' first.", err)
				}
				return err
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Rule %q deleted", args[0])))
			return nil
		},
	}
}
