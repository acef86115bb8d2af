package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
)

const patternColumns = `pattern_key, category_id, confidence, usage_count, display, metadata, last_updated`

func scanPattern(row interface{ Scan(...any) error }) (model.MerchantPattern, error) {
	var (
		p          model.MerchantPattern
		confidence sql.NullFloat64
		display    sql.NullString
		metadata   sql.NullString
	)

	if err := row.Scan(&p.PatternKey, &p.CategoryID, &confidence, &p.UsageCount, &display, &metadata, &p.LastUpdated); err != nil {
		return p, err
	}

	if confidence.Valid {
		c := confidence.Float64
		p.Confidence = &c
	}
	p.Display = display.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &p.Metadata); err != nil {
			return p, fmt.Errorf("failed to decode metadata for %q: %w", p.PatternKey, err)
		}
	}
	return p, nil
}

// FindPatterns returns the patterns stored for patternKey, highest confidence first.
func (s *SQLiteStorage) FindPatterns(ctx context.Context, patternKey string) ([]model.MerchantPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(patternKey, "patternKey"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+patternColumns+`
		FROM merchant_patterns
		WHERE pattern_key = ?
		ORDER BY COALESCE(confidence, ?) DESC
	`, patternKey, model.DefaultPatternConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant patterns: %w", err)
	}
	return collectPatterns(rows)
}

// ListPatterns returns every learned pattern ordered by usage then key.
func (s *SQLiteStorage) ListPatterns(ctx context.Context) ([]model.MerchantPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+patternColumns+`
		FROM merchant_patterns
		ORDER BY usage_count DESC, pattern_key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant patterns: %w", err)
	}
	return collectPatterns(rows)
}

func collectPatterns(rows *sql.Rows) ([]model.MerchantPattern, error) {
	defer func() { _ = rows.Close() }()

	var patterns []model.MerchantPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan merchant pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating merchant patterns: %w", err)
	}
	return patterns, nil
}

// IncrementPatternUsage bumps the usage counter of an existing pattern.
func (s *SQLiteStorage) IncrementPatternUsage(ctx context.Context, patternKey string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(patternKey, "patternKey"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE merchant_patterns
		SET usage_count = usage_count + 1
		WHERE pattern_key = ?
	`, patternKey)
	if err != nil {
		return fmt.Errorf("failed to increment pattern usage: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("merchant pattern %q: %w", patternKey, common.ErrNotFound)
	}
	return nil
}

// UpsertPattern inserts the pattern or overwrites its category and confidence.
// Display and metadata keep their stored values when the new ones are empty.
func (s *SQLiteStorage) UpsertPattern(ctx context.Context, pattern model.MerchantPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePattern(pattern); err != nil {
		return err
	}

	var metadata any
	if len(pattern.Metadata) > 0 {
		encoded, err := json.Marshal(pattern.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode pattern metadata: %w", err)
		}
		metadata = string(encoded)
	}

	var confidence any
	if pattern.Confidence != nil {
		confidence = *pattern.Confidence
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO merchant_patterns (pattern_key, category_id, confidence, usage_count, display, metadata, last_updated)
		VALUES (?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT (pattern_key) DO UPDATE SET
			category_id = excluded.category_id,
			confidence = excluded.confidence,
			display = COALESCE(NULLIF(excluded.display, ''), merchant_patterns.display),
			metadata = COALESCE(excluded.metadata, merchant_patterns.metadata),
			last_updated = excluded.last_updated
	`, pattern.PatternKey, pattern.CategoryID, confidence, pattern.Display, metadata, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert merchant pattern: %w", err)
	}
	return nil
}
