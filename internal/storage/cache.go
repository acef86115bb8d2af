package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
)

// GetCachedSuggestions loads the last advisory result stored for merchantKey.
func (s *SQLiteStorage) GetCachedSuggestions(ctx context.Context, merchantKey string) (*model.SuggestionResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(merchantKey, "merchantKey"); err != nil {
		return nil, err
	}

	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT result FROM llm_cache WHERE merchant_key = ?
	`, merchantKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cached suggestions for %q: %w", merchantKey, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached suggestions: %w", err)
	}

	var result model.SuggestionResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("%w: cached suggestions for %q: %v", common.ErrDatabaseCorrupted, merchantKey, err)
	}
	return &result, nil
}

// PutCachedSuggestions replaces any stored result for merchantKey.
func (s *SQLiteStorage) PutCachedSuggestions(ctx context.Context, merchantKey, modelName string, result model.SuggestionResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(merchantKey, "merchantKey"); err != nil {
		return err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode suggestions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO llm_cache (merchant_key, model, result, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (merchant_key) DO UPDATE SET
			model = excluded.model,
			result = excluded.result,
			updated_at = excluded.updated_at
	`, merchantKey, modelName, string(payload), time.Now())
	if err != nil {
		return fmt.Errorf("failed to cache suggestions: %w", err)
	}
	return nil
}
