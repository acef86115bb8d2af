package engine

import (
	"context"

	"github.com/Veraticus/saffron/internal/model"
)

// Suggester asks the external advisory model about merchants.
type Suggester interface {
	// Enabled reports whether calls can be made at all.
	Enabled() bool
	// ModelName tags cached results.
	ModelName() string
	// CategorizeBatch returns results keyed by normalized merchant. Merchants
	// missing from the result had no usable answer.
	CategorizeBatch(ctx context.Context, items map[string][]model.RequestItem, known []model.CategoryRef) (map[string]model.SuggestionResult, error)
}

// SuggestionCache is consulted before any external call.
type SuggestionCache interface {
	Get(ctx context.Context, merchantKey string) (model.SuggestionResult, bool, error)
	Put(ctx context.Context, merchantKey string, result model.SuggestionResult) error
}
