package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/saffron/internal/merchant"
	"github.com/Veraticus/saffron/internal/model"
)

// MerchantCategoryCounts groups categorized transactions for the literal
// merchant string, most frequent first with ties broken by category id.
func (s *SQLiteStorage) MerchantCategoryCounts(ctx context.Context, merchantName string) ([]model.CategoryCount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(merchantName, "merchant"); err != nil {
		return nil, err
	}

	return s.categoryCounts(ctx, `t.merchant = ?`, merchantName, 0)
}

// SimilarHistory groups categorized transactions that share patternKey.
func (s *SQLiteStorage) SimilarHistory(ctx context.Context, patternKey string, limit int) ([]model.CategoryCount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(patternKey, "patternKey"); err != nil {
		return nil, err
	}

	return s.categoryCounts(ctx, `t.pattern_key = ?`, patternKey, limit)
}

func (s *SQLiteStorage) categoryCounts(ctx context.Context, where string, arg any, limit int) ([]model.CategoryCount, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.category_id, c.name, c.subcategory, COUNT(*) AS n
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		WHERE `+where+` AND t.category_id IS NOT NULL
		GROUP BY t.category_id, c.name, c.subcategory
		ORDER BY n DESC, t.category_id ASC
		LIMIT ?
	`, arg, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query category counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []model.CategoryCount
	for rows.Next() {
		var c model.CategoryCount
		if err := rows.Scan(&c.CategoryID, &c.Category, &c.Subcategory, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category counts: %w", err)
	}
	return counts, nil
}

// SaveDecisions persists transactions with their outcomes. A transaction
// already stored under the same id has its outcome overwritten.
func (s *SQLiteStorage) SaveDecisions(ctx context.Context, decisions []model.Decision) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(decisions) == 0 {
		return nil
	}

	for i := range decisions {
		if err := validateTransaction(&decisions[i].Transaction); err != nil {
			return fmt.Errorf("decision at index %d: %w", i, err)
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO transactions (
				id, hash, date, merchant, description, amount, account_id,
				pattern_key, category_id, method, confidence, needs_review, categorized_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				pattern_key = excluded.pattern_key,
				category_id = excluded.category_id,
				method = excluded.method,
				confidence = excluded.confidence,
				needs_review = excluded.needs_review,
				categorized_at = excluded.categorized_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		now := time.Now()
		for _, d := range decisions {
			txn := d.Transaction
			hash := txn.Hash
			if hash == "" {
				hash = txn.GenerateHash()
			}
			id := txn.ID
			if id == "" {
				id = hash
			}

			var categoryID any
			if d.Outcome.CategoryID != nil {
				categoryID = *d.Outcome.CategoryID
			}
			var method any
			if d.Outcome.Method != model.MethodNone {
				method = string(d.Outcome.Method)
			}

			if _, err := stmt.ExecContext(ctx,
				id, hash, txn.Date, txn.Merchant, txn.Description, txn.Amount, txn.AccountID,
				merchant.PatternKey(txn.Merchant), categoryID, method, d.Outcome.Confidence,
				d.Outcome.NeedsReview, now,
			); err != nil {
				return fmt.Errorf("failed to save transaction %s: %w", id, err)
			}
		}
		return nil
	})
}

// CountTransactions returns how many transactions are stored and how many still need review.
func (s *SQLiteStorage) CountTransactions(ctx context.Context) (total, needsReview int, err error) {
	if err := validateContext(ctx); err != nil {
		return 0, 0, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN needs_review THEN 1 ELSE 0 END), 0)
		FROM transactions
	`).Scan(&total, &needsReview)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return total, needsReview, nil
}

// ReviewBacklog returns stored transactions still flagged for review, oldest
// first. A limit of zero returns all of them.
func (s *SQLiteStorage) ReviewBacklog(ctx context.Context, limit int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hash, date, merchant, COALESCE(description, ''), amount, COALESCE(account_id, '')
		FROM transactions
		WHERE needs_review
		ORDER BY date, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query review backlog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(&t.ID, &t.Hash, &t.Date, &t.Merchant, &t.Description, &t.Amount, &t.AccountID); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating review backlog: %w", err)
	}
	return txns, nil
}
