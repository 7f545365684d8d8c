package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/the-mentat-must-flow/internal/model"
)

// SaveCategory inserts or updates a category by name.
func (s *SQLiteStorage) SaveCategory(ctx context.Context, category model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(category.Name, "name"); err != nil {
		return err
	}

	categoryType := category.Type
	if categoryType == "" {
		categoryType = model.CategoryTypeSpending
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (name, type, is_active)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			type = excluded.type,
			is_active = excluded.is_active
	`, category.Name, string(categoryType), category.IsActive); err != nil {
		return fmt.Errorf("failed to save category: %w", err)
	}
	return nil
}

// GetCategories returns all categories ordered by name.
func (s *SQLiteStorage) GetCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, is_active, created_at
		FROM categories ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		var category model.Category
		var categoryType string
		if err := rows.Scan(&category.ID, &category.Name, &categoryType, &category.IsActive, &category.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		category.Type = model.CategoryType(categoryType)
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

// DeactivateCategory hides a category from new labeling without touching
// transactions that already use it.
func (s *SQLiteStorage) DeactivateCategory(ctx context.Context, name string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(name, "name"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE categories SET is_active = 0 WHERE name = ?`, name,
	); err != nil {
		return fmt.Errorf("failed to deactivate category: %w", err)
	}
	return nil
}
