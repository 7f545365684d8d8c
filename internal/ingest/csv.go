// Package ingest loads transactions from CSV exports.
package ingest

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

// Date wraps time.Time so gocsv can parse the date formats bank exports
// actually use.
type Date struct {
	time.Time
}

var dateLayouts = []string{"2006-01-02", "02.01.2006", "01/02/2006"}

// UnmarshalCSV implements gocsv unmarshaling for Date.
func (d *Date) UnmarshalCSV(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("unrecognized date %q", value)
}

// MarshalCSV implements gocsv marshaling for Date.
func (d Date) MarshalCSV() (string, error) {
	if d.IsZero() {
		return "", nil
	}
	return d.Format("2006-01-02"), nil
}

type csvRow struct {
	Date      Date    `csv:"date"`
	ValueDate Date    `csv:"value_date"`
	Name      string  `csv:"name"`
	Purpose   string  `csv:"purpose"`
	Currency  string  `csv:"currency"`
	Category  string  `csv:"category"`
	Amount    float64 `csv:"amount"`
}

// Result reports what a CSV read produced.
type Result struct {
	Transactions []model.Transaction
	Skipped      int
}

// ReadFile parses a CSV export into transactions. Rows carrying a
// category are treated as reviewed history, so exported data from another
// tool can bootstrap training. Malformed rows are skipped, not fatal.
func ReadFile(path string) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("Failed to close CSV file", "file", path, "error", closeErr)
		}
	}()

	var rows []csvRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	result := &Result{}
	for i, row := range rows {
		if row.Date.IsZero() || strings.TrimSpace(row.Name) == "" {
			slog.Warn("Skipping malformed CSV row", "file", path, "row", i+1)
			result.Skipped++
			continue
		}

		txn := model.Transaction{
			Date:       row.Date.Time,
			Name:       strings.TrimSpace(row.Name),
			Purpose:    strings.TrimSpace(row.Purpose),
			Category:   strings.TrimSpace(row.Category),
			Currency:   strings.TrimSpace(row.Currency),
			Amount:     row.Amount,
			IsReviewed: strings.TrimSpace(row.Category) != "",
		}
		if !row.ValueDate.IsZero() {
			vd := row.ValueDate.Time
			txn.ValueDate = &vd
		}
		if txn.Currency == "" {
			txn.Currency = "EUR"
		}
		result.Transactions = append(result.Transactions, txn)
	}
	return result, nil
}
