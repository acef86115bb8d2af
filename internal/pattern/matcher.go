package pattern

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/saffron/internal/merchant"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/service"
)

// HistoryConfidence is reported for outcomes decided by majority history.
const HistoryConfidence = 0.7

// Matcher implements Categorizer against pattern and history stores.
type Matcher struct {
	patterns service.PatternStore
	history  service.HistoryStore
	logger   *slog.Logger
}

// NewMatcher creates a matcher over the given stores.
func NewMatcher(patterns service.PatternStore, history service.HistoryStore) *Matcher {
	return &Matcher{
		patterns: patterns,
		history:  history,
		logger:   slog.Default(),
	}
}

// WithLogger replaces the matcher's logger.
func (m *Matcher) WithLogger(logger *slog.Logger) *Matcher {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// Categorize tries the learned pattern for the merchant's pattern key first,
// then falls back to the most frequent category for the literal merchant.
func (m *Matcher) Categorize(ctx context.Context, merchantName string) (model.Outcome, error) {
	key := merchant.PatternKey(merchantName)

	if key != "" {
		rows, err := m.patterns.FindPatterns(ctx, key)
		if err != nil {
			return model.Outcome{}, fmt.Errorf("failed to find patterns for %q: %w", key, err)
		}

		if best, ok := highestConfidence(rows); ok {
			if err := m.patterns.IncrementPatternUsage(ctx, best.PatternKey); err != nil {
				return model.Outcome{}, fmt.Errorf("failed to increment usage for %q: %w", best.PatternKey, err)
			}

			m.logger.Debug("merchant matched learned pattern",
				"merchant", merchantName,
				"pattern_key", key,
				"category_id", best.CategoryID)

			return model.Resolved(best.CategoryID, best.EffectiveConfidence(), model.MethodRulePattern), nil
		}
	}

	counts, err := m.history.MerchantCategoryCounts(ctx, merchantName)
	if err != nil {
		return model.Outcome{}, fmt.Errorf("failed to load history for %q: %w", merchantName, err)
	}

	if top, ok := mostFrequent(counts); ok {
		m.logger.Debug("merchant matched history",
			"merchant", merchantName,
			"category_id", top.CategoryID,
			"count", top.Count)

		return model.Resolved(top.CategoryID, HistoryConfidence, model.MethodRuleHistory), nil
	}

	return model.Unresolved(), nil
}

// highestConfidence does not trust the store's ordering.
func highestConfidence(rows []model.MerchantPattern) (model.MerchantPattern, bool) {
	if len(rows) == 0 {
		return model.MerchantPattern{}, false
	}

	best := rows[0]
	for _, row := range rows[1:] {
		if row.EffectiveConfidence() > best.EffectiveConfidence() {
			best = row
		}
	}
	return best, true
}

// mostFrequent breaks count ties by the lower category id.
func mostFrequent(counts []model.CategoryCount) (model.CategoryCount, bool) {
	var (
		top   model.CategoryCount
		found bool
	)

	for _, c := range counts {
		if c.Count <= 0 {
			continue
		}
		if !found || c.Count > top.Count || (c.Count == top.Count && c.CategoryID < top.CategoryID) {
			top = c
			found = true
		}
	}
	return top, found
}
