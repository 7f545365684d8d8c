package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

// SavePredictions upserts predictions keyed by transaction id.
func (s *SQLiteStorage) SavePredictions(ctx context.Context, preds []model.Prediction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(preds) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO predictions (transaction_id, category, confidence, contributions, predicted_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(transaction_id) DO UPDATE SET
			category = excluded.category,
			confidence = excluded.confidence,
			contributions = excluded.contributions,
			predicted_at = excluded.predicted_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare prediction upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range preds {
		contributions, err := json.Marshal(preds[i].Contributions)
		if err != nil {
			return fmt.Errorf("failed to encode contributions: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			preds[i].TransactionID, preds[i].Category, preds[i].Confidence, string(contributions),
		); err != nil {
			return fmt.Errorf("failed to save prediction for %s: %w", preds[i].TransactionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit predictions: %w", err)
	}
	return nil
}

// GetPredictions returns all stored predictions, least confident first.
func (s *SQLiteStorage) GetPredictions(ctx context.Context) ([]model.Prediction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, category, confidence, COALESCE(contributions, '{}')
		FROM predictions ORDER BY confidence, transaction_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var preds []model.Prediction
	for rows.Next() {
		var pred model.Prediction
		var contributions string
		if err := rows.Scan(&pred.TransactionID, &pred.Category, &pred.Confidence, &contributions); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		if err := json.Unmarshal([]byte(contributions), &pred.Contributions); err != nil {
			return nil, fmt.Errorf("failed to decode contributions for %s: %w", pred.TransactionID, err)
		}
		preds = append(preds, pred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate predictions: %w", err)
	}
	return preds, nil
}

// DeletePrediction drops a prediction once its transaction is reviewed.
func (s *SQLiteStorage) DeletePrediction(ctx context.Context, transactionID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM predictions WHERE transaction_id = ?`, transactionID,
	); err != nil {
		return fmt.Errorf("failed to delete prediction: %w", err)
	}
	return nil
}

// RecordReviewOutcome appends one review outcome to the log.
func (s *SQLiteStorage) RecordReviewOutcome(ctx context.Context, outcome model.ReviewOutcome) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(outcome.TransactionID, "transactionID"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO review_log (transaction_id, original_confidence, was_corrected)
		VALUES (?, ?, ?)
	`, outcome.TransactionID, outcome.OriginalConfidence, outcome.WasCorrected); err != nil {
		return fmt.Errorf("failed to record review outcome: %w", err)
	}
	return nil
}

// GetRecentReviewOutcomes returns the newest outcomes, oldest first, so
// the selector's adaptive policy sees them in review order.
func (s *SQLiteStorage) GetRecentReviewOutcomes(ctx context.Context, limit int) ([]model.ReviewOutcome, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, original_confidence, was_corrected
		FROM (
			SELECT id, transaction_id, original_confidence, was_corrected
			FROM review_log ORDER BY id DESC LIMIT ?
		) ORDER BY id
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query review outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var outcomes []model.ReviewOutcome
	for rows.Next() {
		var outcome model.ReviewOutcome
		if err := rows.Scan(&outcome.TransactionID, &outcome.OriginalConfidence, &outcome.WasCorrected); err != nil {
			return nil, fmt.Errorf("failed to scan review outcome: %w", err)
		}
		outcomes = append(outcomes, outcome)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate review outcomes: %w", err)
	}
	return outcomes, nil
}
