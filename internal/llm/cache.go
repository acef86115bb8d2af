package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/service"
)

// Cache is the persistent suggestion cache keyed by normalized merchant.
// Entries never expire; Put overwrites.
type Cache struct {
	store  service.CacheStore
	logger *slog.Logger
	model  string
}

// NewCache stores results tagged with modelName.
func NewCache(store service.CacheStore, modelName string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, model: modelName, logger: logger}
}

// Get returns the cached result for key. A missing or undecodable entry is a
// miss; other store errors propagate.
func (c *Cache) Get(ctx context.Context, key string) (model.SuggestionResult, bool, error) {
	result, err := c.store.GetCachedSuggestions(ctx, key)
	switch {
	case err == nil:
		if len(result.Suggestions) == 0 {
			return model.SuggestionResult{}, false, nil
		}
		return *result, true, nil
	case errors.Is(err, common.ErrNotFound):
		return model.SuggestionResult{}, false, nil
	case errors.Is(err, common.ErrDatabaseCorrupted):
		c.logger.Warn("ignoring unreadable cache entry", "merchant", key, "error", err)
		return model.SuggestionResult{}, false, nil
	default:
		return model.SuggestionResult{}, false, fmt.Errorf("failed to read suggestion cache: %w", err)
	}
}

// Put replaces the cached result for key.
func (c *Cache) Put(ctx context.Context, key string, result model.SuggestionResult) error {
	if err := c.store.PutCachedSuggestions(ctx, key, c.model, result); err != nil {
		return fmt.Errorf("failed to write suggestion cache: %w", err)
	}
	return nil
}
