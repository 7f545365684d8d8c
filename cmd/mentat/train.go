package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/the-mentat-must-flow/internal/cli"
	"github.com/Veraticus/the-mentat-must-flow/internal/common"
	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

func trainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train the categorization model from reviewed transactions",
		Long: `Train the ensemble on every reviewed, categorized transaction in the
database. The previous model stays active until training succeeds, so a
failed run never leaves you without a working model.`,
		RunE: runTrain,
	}
}

func runTrain(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	svc, store, err := initService(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Training ensemble..."),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	summary, err := svc.Train(ctx)
	close(done)
	_ = bar.Finish()

	if err != nil {
		if common.IsTrainingDataError(err) {
			return common.NewUserError(
				"Not enough reviewed transactions to train yet. Review more transactions and try again.", err)
		}
		return err
	}

	printSummary(summary)
	return nil
}

func printSummary(summary model.TrainingSummary) {
	fmt.Println(cli.FormatSuccess(fmt.Sprintf(
		"Trained on %d transactions across %d categories", summary.Samples, summary.Categories)))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Accuracy\t%.1f%%\n", summary.Accuracy*100)
	fmt.Fprintf(w, "Macro F1\t%.3f\n", summary.MacroF1)
	fmt.Fprintf(w, "Weights\tstructured %.2f / text %.2f\n", summary.StructuredWeight, summary.TextWeight)
	_ = w.Flush()

	if len(summary.TopFeatures) > 0 {
		fmt.Println(cli.FormatTitle("Top features"))
		names := make([]string, 0, len(summary.TopFeatures))
		for name := range summary.TopFeatures {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			if summary.TopFeatures[names[i]] != summary.TopFeatures[names[j]] {
				return summary.TopFeatures[names[i]] > summary.TopFeatures[names[j]]
			}
			return names[i] < names[j]
		})
		for _, name := range names {
			fmt.Printf("  %s\t%.4f\n", name, summary.TopFeatures[name])
		}
	}
}
