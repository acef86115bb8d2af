package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
)

const suggestionColumns = `category, subcategory, support_count, total_amount, max_confidence, status, first_seen, last_seen`

func scanSuggestion(row interface{ Scan(...any) error }) (model.CategorySuggestionRecord, error) {
	var (
		rec    model.CategorySuggestionRecord
		status string
	)
	err := row.Scan(&rec.Category, &rec.Subcategory, &rec.SupportCount, &rec.TotalAmount,
		&rec.MaxConfidence, &status, &rec.FirstSeen, &rec.LastSeen)
	if err != nil {
		return rec, err
	}

	rec.Status, err = model.ParseSuggestionStatus(status)
	if err != nil {
		return rec, fmt.Errorf("%w: %v", common.ErrDatabaseCorrupted, err)
	}
	return rec, nil
}

// GetCategorySuggestion returns the evidence record for ref or common.ErrNotFound.
func (s *SQLiteStorage) GetCategorySuggestion(ctx context.Context, ref model.CategoryRef) (*model.CategorySuggestionRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	return s.getCategorySuggestionTx(ctx, s.db, ref)
}

func (s *SQLiteStorage) getCategorySuggestionTx(ctx context.Context, q queryable, ref model.CategoryRef) (*model.CategorySuggestionRecord, error) {
	rec, err := scanSuggestion(q.QueryRowContext(ctx, `
		SELECT `+suggestionColumns+`
		FROM category_suggestions
		WHERE category = ? AND subcategory = ?
	`, ref.Category, ref.Subcategory))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category suggestion %s: %w", ref, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category suggestion: %w", err)
	}
	return &rec, nil
}

// RecordCategorySuggestion adds one transaction of evidence for ref,
// creating a pending record on first sight.
func (s *SQLiteStorage) RecordCategorySuggestion(ctx context.Context, ref model.CategoryRef, amount, confidence float64, seenAt time.Time) (*model.CategorySuggestionRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateRef(ref); err != nil {
		return nil, err
	}

	abs := decimal.NewFromFloat(math.Abs(amount))

	var rec *model.CategorySuggestionRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO category_suggestions (category, subcategory, support_count, total_amount, max_confidence, status, first_seen, last_seen)
			VALUES (?, ?, 1, ?, ?, ?, ?, ?)
			ON CONFLICT (category, subcategory) DO NOTHING
		`, ref.Category, ref.Subcategory, abs.String(), confidence, string(model.SuggestionPending), seenAt, seenAt)
		if err != nil {
			return fmt.Errorf("failed to insert category suggestion: %w", err)
		}

		existing, err := s.getCategorySuggestionTx(ctx, tx, ref)
		if err != nil {
			return err
		}
		rec = existing

		if inserted, _ := result.RowsAffected(); inserted > 0 {
			return nil
		}

		existing.SupportCount++
		existing.TotalAmount = existing.TotalAmount.Add(abs)
		existing.MaxConfidence = math.Max(existing.MaxConfidence, confidence)
		existing.LastSeen = seenAt

		if _, err := tx.ExecContext(ctx, `
			UPDATE category_suggestions
			SET support_count = ?, total_amount = ?, max_confidence = ?, last_seen = ?
			WHERE category = ? AND subcategory = ?
		`, existing.SupportCount, existing.TotalAmount.String(), existing.MaxConfidence, seenAt,
			ref.Category, ref.Subcategory); err != nil {
			return fmt.Errorf("failed to update category suggestion: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SetCategorySuggestionStatus overwrites the status of an existing record.
func (s *SQLiteStorage) SetCategorySuggestionStatus(ctx context.Context, ref model.CategoryRef, status model.SuggestionStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRef(ref); err != nil {
		return err
	}
	if _, err := model.ParseSuggestionStatus(string(status)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStatus, err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE category_suggestions SET status = ?
		WHERE category = ? AND subcategory = ?
	`, string(status), ref.Category, ref.Subcategory)
	if err != nil {
		return fmt.Errorf("failed to set category suggestion status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("category suggestion %s: %w", ref, common.ErrNotFound)
	}
	return nil
}

// ListCategorySuggestions returns records with the given status, or all
// records when status is empty, strongest evidence first.
func (s *SQLiteStorage) ListCategorySuggestions(ctx context.Context, status model.SuggestionStatus) ([]model.CategorySuggestionRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+suggestionColumns+`
		FROM category_suggestions
		WHERE ? = '' OR status = ?
		ORDER BY support_count DESC, category, subcategory
	`, string(status), string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query category suggestions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.CategorySuggestionRecord
	for rows.Next() {
		rec, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category suggestion: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category suggestions: %w", err)
	}
	return records, nil
}
