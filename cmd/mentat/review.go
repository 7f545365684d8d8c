package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/the-mentat-must-flow/internal/cli"
	"github.com/Veraticus/the-mentat-must-flow/internal/common"
	"github.com/Veraticus/the-mentat-must-flow/internal/config"
	"github.com/Veraticus/the-mentat-must-flow/internal/model"
	"github.com/Veraticus/the-mentat-must-flow/internal/selector"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review predicted categories",
		Long: `Show the predictions most worth a human look, picked by an adaptive
strategy that learns from your recent corrections.`,
		RunE: runReviewList,
	}

	cmd.Flags().IntP("count", "n", 0, "how many predictions to select (default from config)")
	_ = viper.BindPFlag("review.batch_size", cmd.Flags().Lookup("count"))

	cmd.AddCommand(reviewApplyCmd())
	cmd.AddCommand(reviewAutoCmd())
	return cmd
}

func runReviewList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	svc, store, err := initService(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	selected, strategy, err := svc.SelectForReview(ctx, config.ReviewBatchSize())
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		fmt.Println(cli.FormatSuccess("Review queue is empty."))
		return nil
	}

	type reviewRow struct {
		pred     model.Prediction
		merchant string
		amount   string
		priority float64
	}
	rows := make([]reviewRow, 0, len(selected))
	for _, pred := range selected {
		row := reviewRow{pred: pred, priority: selector.PriorityScore(pred, 0, 0)}
		if txn, txnErr := store.GetTransactionByID(ctx, pred.TransactionID); txnErr == nil {
			row.merchant = txn.Name
			row.amount = fmt.Sprintf("%.2f %s", txn.Amount, txn.Currency)
			sightings, _ := store.CountMerchantSightings(ctx, txn.Name)
			row.priority = selector.PriorityScore(pred, txn.Amount, sightings)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].priority > rows[j].priority })

	fmt.Println(cli.FormatTitle(fmt.Sprintf("Review queue (%s strategy)", strategy)))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		cli.TableHeaderStyle.Render("Transaction"),
		cli.TableHeaderStyle.Render("Merchant"),
		cli.TableHeaderStyle.Render("Amount"),
		cli.TableHeaderStyle.Render("Predicted"),
		cli.TableHeaderStyle.Render("Confidence"),
		cli.TableHeaderStyle.Render("Priority"))
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.2f\n",
			row.pred.TransactionID, row.merchant, row.amount, row.pred.Category,
			cli.FormatConfidence(row.pred.Confidence), row.priority)
	}
	_ = w.Flush()

	fmt.Println(cli.SubtleStyle.Render("Confirm or correct with: mentat review apply <transaction-id> <category>"))
	return nil
}

func reviewApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <transaction-id> <category>",
		Short: "Record the reviewed category for a transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, store, err := initService(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			if err := svc.ApplyReview(ctx, args[0], args[1]); err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return common.NewUserError(fmt.Sprintf("No transaction with id %q.", args[0]), err)
				}
				return err
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Categorized %s as %s", args[0], args[1])))
			return nil
		},
	}
}

func reviewAutoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auto",
		Short: "Apply all predictions above the auto-approve threshold",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			svc, store, err := initService(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			applied, err := svc.AutoApprove(ctx, config.AutoApproveThreshold())
			if err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Auto-approved %d predictions", applied)))
			return nil
		},
	}

	cmd.Flags().Float64P("threshold", "t", 0, "confidence required for auto-approval (default from config)")
	_ = viper.BindPFlag("review.auto_approve_threshold", cmd.Flags().Lookup("threshold"))

	return cmd
}
