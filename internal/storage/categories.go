package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
)

const categoryColumns = `id, name, subcategory, system_generated, approved, created_at`

func scanCategory(row interface{ Scan(...any) error }) (model.Category, error) {
	var c model.Category
	err := row.Scan(&c.ID, &c.Name, &c.Subcategory, &c.SystemGenerated, &c.Approved, &c.CreatedAt)
	return c, err
}

// FindCategory returns the category for ref or common.ErrNotFound.
func (s *SQLiteStorage) FindCategory(ctx context.Context, ref model.CategoryRef) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	return s.findCategoryTx(ctx, s.db, ref)
}

func (s *SQLiteStorage) findCategoryTx(ctx context.Context, q queryable, ref model.CategoryRef) (*model.Category, error) {
	c, err := scanCategory(q.QueryRowContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		WHERE name = ? AND subcategory = ?
	`, ref.Category, ref.Subcategory))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %s: %w", ref, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find category: %w", err)
	}
	return &c, nil
}

// ListCategories returns every category ordered by name then subcategory.
func (s *SQLiteStorage) ListCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		ORDER BY name, subcategory
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

// CreateCategory inserts ref unless it already exists and returns the stored row.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, ref model.CategoryRef, systemGenerated, approved bool) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateRef(ref); err != nil {
		return nil, err
	}

	var category *model.Category
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO categories (name, subcategory, system_generated, approved)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (name, subcategory) DO NOTHING
		`, ref.Category, ref.Subcategory, systemGenerated, approved)
		if err != nil {
			return fmt.Errorf("failed to create category: %w", err)
		}

		if n, _ := result.RowsAffected(); n > 0 {
			slog.Info("created new category",
				"category", ref.Category,
				"subcategory", ref.Subcategory,
				"system_generated", systemGenerated)
		}

		category, err = s.findCategoryTx(ctx, tx, ref)
		return err
	})
	if err != nil {
		return nil, err
	}

	return category, nil
}

// ApproveCategory marks a category as user-approved.
func (s *SQLiteStorage) ApproveCategory(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE categories SET approved = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to approve category: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("category %d: %w", id, common.ErrNotFound)
	}
	return nil
}
