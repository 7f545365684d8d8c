package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/the-mentat-must-flow/internal/common"
)

// SaveModelState stores a serialized ensemble blob. Older blobs are kept
// so a bad training run can be rolled back by hand.
func (s *SQLiteStorage) SaveModelState(ctx context.Context, version string, trainedAt time.Time, blob []byte) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(version, "version"); err != nil {
		return err
	}
	if len(blob) == 0 {
		return fmt.Errorf("model blob is empty: %w", common.ErrInvalidConfig)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO models (version, blob, trained_at) VALUES (?, ?, ?)
	`, version, blob, trainedAt); err != nil {
		return fmt.Errorf("failed to save model state: %w", err)
	}
	return nil
}

// LoadLatestModelState returns the newest persisted model blob.
func (s *SQLiteStorage) LoadLatestModelState(ctx context.Context) ([]byte, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT blob FROM models ORDER BY id DESC LIMIT 1`,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no trained model stored: %w", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model state: %w", err)
	}
	return blob, nil
}
