// Package service defines the contracts shared between the categorization
// pipeline and its collaborators.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/saffron/internal/model"
)

// TaxonomyStore reads and extends the set of known categories.
type TaxonomyStore interface {
	// FindCategory returns common.ErrNotFound when no such category exists.
	FindCategory(ctx context.Context, ref model.CategoryRef) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	// CreateCategory is idempotent: creating an existing pair returns it unchanged.
	CreateCategory(ctx context.Context, ref model.CategoryRef, systemGenerated, approved bool) (*model.Category, error)
}

// CacheStore persists advisory results keyed by normalized merchant.
type CacheStore interface {
	// GetCachedSuggestions returns common.ErrNotFound on a miss.
	GetCachedSuggestions(ctx context.Context, merchantKey string) (*model.SuggestionResult, error)
	PutCachedSuggestions(ctx context.Context, merchantKey, modelName string, result model.SuggestionResult) error
}

// PatternStore holds learned merchant pattern mappings.
type PatternStore interface {
	// FindPatterns returns all rows for key ordered by descending confidence.
	FindPatterns(ctx context.Context, patternKey string) ([]model.MerchantPattern, error)
	IncrementPatternUsage(ctx context.Context, patternKey string) error
	// UpsertPattern inserts or overwrites category and confidence, keeping the
	// prior display and metadata when the new values are empty.
	UpsertPattern(ctx context.Context, pattern model.MerchantPattern) error
	ListPatterns(ctx context.Context) ([]model.MerchantPattern, error)
}

// HistoryStore exposes past categorization decisions.
type HistoryStore interface {
	// MerchantCategoryCounts groups categorized transactions with exactly this
	// merchant string, most frequent first, ties by category id.
	MerchantCategoryCounts(ctx context.Context, merchant string) ([]model.CategoryCount, error)
	// SimilarHistory is like MerchantCategoryCounts but keyed by pattern key.
	SimilarHistory(ctx context.Context, patternKey string, limit int) ([]model.CategoryCount, error)
	SaveDecisions(ctx context.Context, decisions []model.Decision) error
}

// ProposalStore persists category suggestion records.
type ProposalStore interface {
	// GetCategorySuggestion returns common.ErrNotFound when absent.
	GetCategorySuggestion(ctx context.Context, ref model.CategoryRef) (*model.CategorySuggestionRecord, error)
	RecordCategorySuggestion(ctx context.Context, ref model.CategoryRef, amount float64, confidence float64, seenAt time.Time) (*model.CategorySuggestionRecord, error)
	SetCategorySuggestionStatus(ctx context.Context, ref model.CategoryRef, status model.SuggestionStatus) error
	ListCategorySuggestions(ctx context.Context, status model.SuggestionStatus) ([]model.CategorySuggestionRecord, error)
}

// BacklogStore lists transactions left for review by earlier runs.
type BacklogStore interface {
	ReviewBacklog(ctx context.Context, limit int) ([]model.Transaction, error)
}

// Storage is the full persistence contract.
type Storage interface {
	TaxonomyStore
	CacheStore
	PatternStore
	HistoryStore
	ProposalStore

	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
