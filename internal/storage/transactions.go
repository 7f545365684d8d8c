package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/the-mentat-must-flow/internal/common"
	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

// SaveTransactions upserts transactions by id inside one database
// transaction. Records without an id get their content hash.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, txns []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(txns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (id, date, value_date, name, purpose, amount, currency, category, is_reviewed)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			value_date = excluded.value_date,
			name = excluded.name,
			purpose = excluded.purpose,
			amount = excluded.amount,
			currency = excluded.currency,
			category = COALESCE(excluded.category, transactions.category),
			is_reviewed = MAX(excluded.is_reviewed, transactions.is_reviewed)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range txns {
		txn := &txns[i]
		id := txn.ID
		if id == "" {
			id = txn.Identity()
		}
		if _, err := stmt.ExecContext(ctx,
			id, txn.Date, txn.ValueDate, txn.Name, txn.Purpose,
			txn.Amount, txn.Currency, txn.Category, txn.IsReviewed,
		); err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transactions: %w", err)
	}
	return nil
}

// GetTransactionByID fetches a single transaction.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, date, value_date, name, purpose, amount, currency, COALESCE(category, ''), is_reviewed
		FROM transactions WHERE id = ?
	`, id)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetTransactionsToClassify returns transactions without a category,
// oldest first.
func (s *SQLiteStorage) GetTransactionsToClassify(ctx context.Context) ([]model.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT id, date, value_date, name, purpose, amount, currency, COALESCE(category, ''), is_reviewed
		FROM transactions WHERE category IS NULL ORDER BY date, id
	`)
}

// GetLabeledTransactions returns the training corpus: every transaction
// with a category, oldest first.
func (s *SQLiteStorage) GetLabeledTransactions(ctx context.Context) ([]model.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT id, date, value_date, name, purpose, amount, currency, COALESCE(category, ''), is_reviewed
		FROM transactions WHERE category IS NOT NULL ORDER BY date, id
	`)
}

// SetTransactionCategory assigns a category, optionally marking the row
// human-reviewed.
func (s *SQLiteStorage) SetTransactionCategory(ctx context.Context, id, category string, reviewed bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateString(category, "category"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET category = ?, is_reviewed = ? WHERE id = ?`,
		category, reviewed, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set category: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// GetTransactionCount reports how many transactions are stored.
func (s *SQLiteStorage) GetTransactionCount(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// CountMerchantSightings reports how many stored transactions share the
// leading characters of the given merchant name.
func (s *SQLiteStorage) CountMerchantSightings(ctx context.Context, name string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if name == "" {
		return 0, nil
	}

	prefix := name
	if len(prefix) > 10 {
		prefix = prefix[:10]
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE name LIKE ? ESCAPE '\'`,
		"%"+escapeLike(prefix)+"%",
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count merchant sightings: %w", err)
	}
	return count, nil
}

func (s *SQLiteStorage) queryTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txns, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var txn model.Transaction
	var valueDate sql.NullTime
	if err := row.Scan(
		&txn.ID, &txn.Date, &valueDate, &txn.Name, &txn.Purpose,
		&txn.Amount, &txn.Currency, &txn.Category, &txn.IsReviewed,
	); err != nil {
		return nil, err
	}
	if valueDate.Valid {
		vd := valueDate.Time
		txn.ValueDate = &vd
	}
	return &txn, nil
}

// escapeLike escapes LIKE wildcards in user-provided merchant text.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
