// Package engine implements the hybrid categorization pipeline: rule
// matching first, then cached or fresh advisory suggestions, then the
// confidence policy that assigns, proposes, or queues each transaction.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/saffron/internal/llm"
	"github.com/Veraticus/saffron/internal/merchant"
	"github.com/Veraticus/saffron/internal/metrics"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/pattern"
	"github.com/Veraticus/saffron/internal/proposals"
	"github.com/Veraticus/saffron/internal/service"
)

// Engine orchestrates categorization of transaction batches.
type Engine struct {
	store     service.Storage
	matcher   pattern.Categorizer
	suggester Suggester
	cache     SuggestionCache
	tracker   *proposals.Tracker
	metrics   *metrics.Recorder
	logger    *slog.Logger
	newID     func() string
	config    Config
}

// New creates an engine over store. suggester may be nil, in which case
// every transaction the rules cannot resolve goes to review.
func New(store service.Storage, suggester Suggester, config Config) (*Engine, error) {
	config = config.withDefaults()
	if err := validateStruct("engine config", config); err != nil {
		return nil, err
	}

	modelName := ""
	if suggester != nil {
		modelName = suggester.ModelName()
	}

	logger := slog.Default()
	return &Engine{
		store:     store,
		matcher:   pattern.NewMatcher(store, store).WithLogger(logger),
		suggester: suggester,
		cache:     llm.NewCache(store, modelName, logger),
		tracker:   proposals.NewTracker(store),
		logger:    logger,
		newID:     uuid.NewString,
		config:    config,
	}, nil
}

// WithLogger replaces the engine's logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	if logger != nil {
		e.logger = logger
		if m, ok := e.matcher.(*pattern.Matcher); ok {
			m.WithLogger(logger)
		}
	}
	return e
}

// WithMetrics records run counters on m.
func (e *Engine) WithMetrics(m *metrics.Recorder) *Engine {
	e.metrics = m
	return e
}

// WithCache replaces the suggestion cache.
func (e *Engine) WithCache(cache SuggestionCache) *Engine {
	e.cache = cache
	return e
}

func (e *Engine) externalEnabled(opts Options) bool {
	return !opts.SkipExternal && e.suggester != nil && e.suggester.Enabled()
}

// CategorizeTransactions produces exactly one decision per input
// transaction, in input order, plus the review queue for the run. Storage
// errors abort the run; advisory failures only send transactions to review.
func (e *Engine) CategorizeTransactions(ctx context.Context, txns []model.Transaction, opts Options) (*model.Result, error) {
	start := time.Now()
	opts = opts.withDefaults()
	if err := validateStruct("options", opts); err != nil {
		return nil, err
	}

	r := &run{
		engine:      e,
		opts:        opts,
		proposals:   make(map[model.CategoryRef]*proposalState),
		autoCreated: make(map[model.CategoryRef]bool),
		result: &model.Result{
			RunID:     e.newID(),
			Decisions: make([]model.Decision, len(txns)),
		},
	}

	external := e.externalEnabled(opts)
	batches := make(map[string][]int)

	for i, txn := range txns {
		if txn.AccountID == "" {
			txn.AccountID = opts.DefaultAccount
		}
		r.result.Decisions[i] = model.Decision{Index: i, Transaction: txn}

		outcome, err := e.matcher.Categorize(ctx, txn.Merchant)
		if err != nil {
			return nil, fmt.Errorf("failed to categorize transaction %d: %w", i, err)
		}
		if outcome.IsResolved() {
			r.result.Decisions[i].Outcome = outcome
			continue
		}

		if !external {
			if err := r.reviewOnly(ctx, i, ReasonExternalUnavailable); err != nil {
				return nil, err
			}
			continue
		}

		key := merchant.Normalize(txn.Merchant)
		batches[key] = append(batches[key], i)
	}

	if len(batches) > 0 {
		suggestions, err := r.fetchSuggestions(ctx, batches)
		if err != nil {
			return nil, err
		}

		for _, i := range pendingIndices(batches) {
			key := merchant.Normalize(r.result.Decisions[i].Transaction.Merchant)
			result, ok := suggestions[key]
			if !ok || len(result.Suggestions) == 0 {
				if err := r.reviewOnly(ctx, i, ReasonNoSuggestions); err != nil {
					return nil, err
				}
				continue
			}
			if err := r.decide(ctx, i, result); err != nil {
				return nil, err
			}
		}
	}

	r.finish()
	e.recordMetrics(r.result, time.Since(start))

	e.logger.Info("categorization run complete",
		"run_id", r.result.RunID,
		"transactions", r.result.Stats.Total,
		"needs_review", r.result.Stats.NeedsReview,
		"categories_added", r.result.Stats.CategoriesAdded,
		"duration", time.Since(start))

	return r.result, nil
}

// fetchSuggestions serves each merchant from the cache when possible and
// asks the suggester about the rest. Only fresh, non-empty results are
// written back to the cache.
func (r *run) fetchSuggestions(ctx context.Context, batches map[string][]int) (map[string]model.SuggestionResult, error) {
	e := r.engine
	keys := make([]string, 0, len(batches))
	for key := range batches {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	results := make(map[string]model.SuggestionResult, len(keys))
	misses := make(map[string][]model.RequestItem)

	for _, key := range keys {
		cached, hit, err := e.cache.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		e.metrics.CacheLookup(hit)
		if hit {
			r.result.Stats.CacheHits++
			e.logger.Debug("suggestion cache hit", "merchant", key)
			results[key] = cached
			continue
		}

		r.result.Stats.CacheMisses++
		items := make([]model.RequestItem, 0, len(batches[key]))
		for _, i := range batches[key] {
			items = append(items, requestItem(r.result.Decisions[i].Transaction))
		}
		misses[key] = items
	}

	if len(misses) == 0 {
		return results, nil
	}

	known, err := r.knownCategories(ctx)
	if err != nil {
		return nil, err
	}

	r.result.Stats.MerchantsSent = len(misses)
	fresh, err := e.suggester.CategorizeBatch(ctx, misses, known)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.Warn("advisory suggestions unavailable, sending merchants to review",
			"merchants", len(misses),
			"error", err)
	}

	freshKeys := make([]string, 0, len(fresh))
	for key := range fresh {
		freshKeys = append(freshKeys, key)
	}
	sort.Strings(freshKeys)

	for _, key := range freshKeys {
		result := fresh[key]
		if _, asked := misses[key]; !asked || len(result.Suggestions) == 0 {
			continue
		}
		result.Suggestions = result.Suggestions.Ranked()
		if err := e.cache.Put(ctx, key, result); err != nil {
			return nil, err
		}
		results[key] = result
	}

	return results, nil
}

func (r *run) knownCategories(ctx context.Context) ([]model.CategoryRef, error) {
	categories, err := r.engine.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	refs := make([]model.CategoryRef, 0, len(categories))
	for _, c := range categories {
		refs = append(refs, c.Ref())
	}
	return refs, nil
}

func requestItem(txn model.Transaction) model.RequestItem {
	item := model.RequestItem{
		Merchant:    txn.Merchant,
		Description: txn.Description,
		Amount:      txn.Amount,
	}
	if !txn.Date.IsZero() {
		item.Date = txn.Date.Format("2006-01-02")
	}
	return item
}

// pendingIndices flattens batches back into input order.
func pendingIndices(batches map[string][]int) []int {
	var indices []int
	for _, idx := range batches {
		indices = append(indices, idx...)
	}
	sort.Ints(indices)
	return indices
}

func (e *Engine) recordMetrics(result *model.Result, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	for _, d := range result.Decisions {
		e.metrics.Outcome(string(d.Outcome.Method))
	}
	e.metrics.ObserveRun(elapsed)
}
