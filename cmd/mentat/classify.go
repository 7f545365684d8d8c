package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-mentat-must-flow/internal/cli"
	"github.com/Veraticus/the-mentat-must-flow/internal/common"
	"github.com/Veraticus/the-mentat-must-flow/internal/selector"
)

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify",
		Short: "Predict categories for uncategorized transactions",
		Long: `Run the trained model over every transaction that has no category yet
and store the predictions for review.

Examples:
  mentat classify            # Classify all pending transactions
  mentat review              # Then review the least certain predictions`,
		RunE: runClassify,
	}
}

func runClassify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	svc, store, err := initService(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	result, err := svc.ClassifyPending(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNotTrained) {
			return common.NewUserError("No trained model found. Run 'mentat train' first.", err)
		}
		return err
	}

	if len(result.Predictions) == 0 && len(result.Failures) == 0 {
		fmt.Println(cli.FormatSuccess("Nothing to classify."))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\n",
		cli.TableHeaderStyle.Render("Transaction"),
		cli.TableHeaderStyle.Render("Category"),
		cli.TableHeaderStyle.Render("Confidence"))
	for _, pred := range result.Predictions {
		fmt.Fprintf(w, "%s\t%s\t%s\n", pred.TransactionID, pred.Category, cli.FormatConfidence(pred.Confidence))
	}
	_ = w.Flush()

	stats := selector.Statistics(result.Predictions)
	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Classified %d transactions", stats.Total)))
	fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf(
		"Confidence: %d high / %d medium / %d low (avg %.1f%%), review %d suggested",
		stats.HighConfidence, stats.MediumConfidence, stats.LowConfidence,
		stats.AverageConfidence*100, stats.RecommendedReviewCount)))
	if len(result.Failures) > 0 {
		fmt.Println(cli.FormatWarning(fmt.Sprintf("%d transactions could not be classified", len(result.Failures))))
	}
	return nil
}
