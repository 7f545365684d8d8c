package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/the-mentat-must-flow/internal/cli"
	"github.com/Veraticus/the-mentat-must-flow/internal/ingest"
	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

const importChunkSize = 200

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv> [more files...]",
		Short: "Import transactions from CSV exports",
		Long: `Load transactions from one or more CSV files into the database.
Rows that already carry a category are stored as reviewed history and
feed straight into training; imports are idempotent, so re-running on
the same file never duplicates transactions or wipes existing labels.

Expected columns: date, value_date, name, purpose, amount, currency, category.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	var txns []model.Transaction
	skipped := 0
	for _, path := range args {
		result, err := ingest.ReadFile(path)
		if err != nil {
			return err
		}
		txns = append(txns, result.Transactions...)
		skipped += result.Skipped
	}

	if len(txns) == 0 {
		fmt.Println(cli.FormatWarning("No importable transactions found."))
		return nil
	}

	bar := progressbar.NewOptions(len(txns),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Importing transactions..."),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
	for start := 0; start < len(txns); start += importChunkSize {
		end := min(start+importChunkSize, len(txns))
		if err := store.SaveTransactions(ctx, txns[start:end]); err != nil {
			return fmt.Errorf("saving transactions: %w", err)
		}
		_ = bar.Add(end - start)
	}
	_ = bar.Finish()

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Imported %d transactions", len(txns))))
	if skipped > 0 {
		fmt.Println(cli.FormatWarning(fmt.Sprintf("Skipped %d malformed rows", skipped)))
	}
	return nil
}
