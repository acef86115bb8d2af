package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/merchant"
	"github.com/Veraticus/saffron/internal/metrics"
	"github.com/Veraticus/saffron/internal/model"
	memstore "github.com/Veraticus/saffron/internal/testutil"
)

var (
	coffee    = model.CategoryRef{Category: "Food & Dining", Subcategory: "Coffee"}
	groceries = model.CategoryRef{Category: "Food & Dining", Subcategory: "Groceries"}
	grooming  = model.CategoryRef{Category: "Pets", Subcategory: "Grooming"}
)

type fakeSuggester struct {
	err      error
	results  map[string]model.SuggestionResult
	calls    []map[string][]model.RequestItem
	disabled bool
}

func (f *fakeSuggester) Enabled() bool     { return !f.disabled }
func (f *fakeSuggester) ModelName() string { return "fake" }

func (f *fakeSuggester) CategorizeBatch(_ context.Context, items map[string][]model.RequestItem, _ []model.CategoryRef) (map[string]model.SuggestionResult, error) {
	f.calls = append(f.calls, items)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]model.SuggestionResult)
	for key := range items {
		if r, ok := f.results[key]; ok {
			out[key] = r
		}
	}
	return out, nil
}

func (f *fakeSuggester) requestedMerchants() int {
	n := 0
	for _, call := range f.calls {
		n += len(call)
	}
	return n
}

func suggest(merchantName string, suggestions ...model.Suggestion) model.SuggestionResult {
	return model.SuggestionResult{
		MerchantKey: merchant.Normalize(merchantName),
		Suggestions: suggestions,
	}
}

func newFake(results ...model.SuggestionResult) *fakeSuggester {
	f := &fakeSuggester{results: make(map[string]model.SuggestionResult)}
	for _, r := range results {
		f.results[r.MerchantKey] = r
	}
	return f
}

func txn(merchantName string, amount float64) model.Transaction {
	return model.Transaction{
		Date:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Merchant: merchantName,
		Amount:   amount,
	}
}

func newEngine(t *testing.T, store *memstore.MemoryStore, suggester Suggester) *Engine {
	t.Helper()
	e, err := New(store, suggester, DefaultConfig())
	require.NoError(t, err)
	return e
}

func assertOutcomeInvariant(t *testing.T, result *model.Result) {
	t.Helper()
	for i, d := range result.Decisions {
		assert.Equal(t, i, d.Index)
		assert.Equal(t, d.Outcome.CategoryID == nil, d.Outcome.NeedsReview, "decision %d", i)
	}
}

func TestCategorize_RulesResolveWithoutExternalCalls(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryStore(coffee, groceries)
	conf := 0.95
	require.NoError(t, store.UpsertPattern(ctx, model.MerchantPattern{
		PatternKey: "BLUE BOTTLE COFFEE",
		CategoryID: store.CategoryID(coffee),
		Confidence: &conf,
	}))
	store.AddHistory("SWEETGREEN #123", store.CategoryID(groceries), 3)
	suggester := newFake()

	result, err := newEngine(t, store, suggester).CategorizeTransactions(ctx, []model.Transaction{
		txn("Blue Bottle Coffee #4471", -6.5),
		txn("SWEETGREEN #123", -14),
	}, DefaultOptions())
	require.NoError(t, err)
	assertOutcomeInvariant(t, result)

	first := result.Decisions[0].Outcome
	assert.Equal(t, model.MethodRulePattern, first.Method)
	assert.Equal(t, store.CategoryID(coffee), *first.CategoryID)
	assert.InDelta(t, 0.95, first.Confidence, 1e-9)

	second := result.Decisions[1].Outcome
	assert.Equal(t, model.MethodRuleHistory, second.Method)
	assert.InDelta(t, 0.7, second.Confidence, 1e-9)

	assert.Empty(t, suggester.calls)
	assert.Equal(t, 1, result.Stats.RulePattern)
	assert.Equal(t, 1, result.Stats.RuleHistory)
	assert.NotEmpty(t, result.RunID)
}

func TestCategorize_AutoAssignLearnsPattern(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryStore(coffee)
	suggester := newFake(suggest("SQ *BLUEBOTTLE 1234", model.Suggestion{
		Category: coffee.Category, Subcategory: coffee.Subcategory, Confidence: 0.92,
	}))
	e := newEngine(t, store, suggester)

	result, err := e.CategorizeTransactions(ctx, []model.Transaction{txn("SQ *BLUEBOTTLE 1234", -5)}, DefaultOptions())
	require.NoError(t, err)
	assertOutcomeInvariant(t, result)

	outcome := result.Decisions[0].Outcome
	assert.Equal(t, model.MethodLLMAuto, outcome.Method)
	assert.False(t, outcome.NeedsReview)
	assert.InDelta(t, 0.92, outcome.Confidence, 1e-9)
	assert.Len(t, result.Decisions[0].Suggestions, 1)
	assert.Empty(t, result.TransactionReviews)

	learned, ok := store.Pattern(merchant.PatternKey("SQ *BLUEBOTTLE 1234"))
	require.True(t, ok)
	assert.Equal(t, store.CategoryID(coffee), learned.CategoryID)
	assert.InDelta(t, 0.92, learned.EffectiveConfidence(), 1e-9)

	again, err := e.CategorizeTransactions(ctx, []model.Transaction{txn("SQ *BLUEBOTTLE 1234", -7)}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, model.MethodRulePattern, again.Decisions[0].Outcome.Method)
	assert.Len(t, suggester.calls, 1)
}

func TestCategorize_NewCategoryAccumulatesThenAutoCreates(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryStore(coffee)
	const shop = "PAWS & CLAWS GROOMING"
	suggester := newFake(suggest(shop, model.Suggestion{
		Category: grooming.Category, Subcategory: grooming.Subcategory, Confidence: 0.9, IsNewCategory: true,
	}))
	e := newEngine(t, store, suggester)

	// One supporting transaction: proposal only.
	first, err := e.CategorizeTransactions(ctx, []model.Transaction{txn(shop, -40)}, DefaultOptions())
	require.NoError(t, err)
	assertOutcomeInvariant(t, first)
	assert.True(t, first.Decisions[0].Outcome.NeedsReview)
	assert.Equal(t, model.MethodNone, first.Decisions[0].Outcome.Method)
	assert.Zero(t, store.CategoryID(grooming))
	assert.Empty(t, first.TransactionReviews)
	require.Len(t, first.CategoryProposals, 1)
	proposal := first.CategoryProposals[0]
	assert.Equal(t, grooming, proposal.CategoryRef)
	assert.Len(t, proposal.Examples, 1)
	assert.Equal(t, 1, proposal.SupportCount)
	assert.Equal(t, "40", proposal.TotalAmount.String())

	rec, err := store.GetCategorySuggestion(ctx, grooming)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.SupportCount)
	assert.Equal(t, model.SuggestionPending, rec.Status)

	// Two more: the third supporting transaction creates the category.
	second, err := e.CategorizeTransactions(ctx, []model.Transaction{txn(shop, -25), txn(shop, -30)}, DefaultOptions())
	require.NoError(t, err)
	assertOutcomeInvariant(t, second)

	assert.True(t, second.Decisions[0].Outcome.NeedsReview)
	resolved := second.Decisions[1].Outcome
	assert.Equal(t, model.MethodLLMAutoNewCategory, resolved.Method)
	require.NotZero(t, store.CategoryID(grooming))
	assert.Equal(t, store.CategoryID(grooming), *resolved.CategoryID)
	assert.Equal(t, []model.CategoryRef{grooming}, second.AutoCreatedCategories)
	assert.Empty(t, second.CategoryProposals)
	require.Len(t, second.TransactionReviews, 1)
	assert.Equal(t, 0, second.TransactionReviews[0].Index)
	assert.Equal(t, ReasonCreatedLater, second.TransactionReviews[0].Reason)

	category, err := store.FindCategory(ctx, grooming)
	require.NoError(t, err)
	assert.True(t, category.SystemGenerated)
	assert.False(t, category.Approved)

	rec, err = store.GetCategorySuggestion(ctx, grooming)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.SupportCount)
	assert.Equal(t, model.SuggestionAutoApproved, rec.Status)
	assert.Equal(t, "95", rec.TotalAmount.String())

	// Later transactions take the rule path.
	third, err := e.CategorizeTransactions(ctx, []model.Transaction{txn(shop, -18)}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, model.MethodRulePattern, third.Decisions[0].Outcome.Method)
	assert.Len(t, suggester.calls, 1, "the cache served the second run and the pattern the third")
}

func TestCategorize_ApprovedProposalResolvesDirectly(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryStore()
	_, err := store.CreateCategory(ctx, grooming, true, false)
	require.NoError(t, err)
	_, err = store.RecordCategorySuggestion(ctx, grooming, 10, 0.9, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.SetCategorySuggestionStatus(ctx, grooming, model.SuggestionAutoApproved))

	suggester := newFake(suggest("DOGGY DAY SPA", model.Suggestion{
		Category: grooming.Category, Subcategory: grooming.Subcategory, Confidence: 0.6, IsNewCategory: true,
	}))

	result, err := newEngine(t, store, suggester).CategorizeTransactions(ctx, []model.Transaction{txn("DOGGY DAY SPA", -30)}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, model.MethodLLMAutoNewCategory, result.Decisions[0].Outcome.Method)
	assert.Empty(t, result.CategoryProposals)
	assert.Empty(t, result.AutoCreatedCategories)
}

func TestCategorize_ProposalWithoutSideEffectsPersistsNothing(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryStore()
	const shop = "PAWS & CLAWS GROOMING"
	suggester := newFake(suggest(shop, model.Suggestion{
		Category: grooming.Category, Subcategory: grooming.Subcategory, Confidence: 0.99, IsNewCategory: true,
	}))

	opts := DefaultOptions()
	opts.ApplySideEffects = false
	txns := []model.Transaction{txn(shop, -1), txn(shop, -2), txn(shop, -3), txn(shop, -4)}

	result, err := newEngine(t, store, suggester).CategorizeTransactions(ctx, txns, opts)
	require.NoError(t, err)
	assertOutcomeInvariant(t, result)

	require.Len(t, result.CategoryProposals, 1)
	assert.Equal(t, 4, result.CategoryProposals[0].SupportCount)
	assert.Equal(t, "10", result.CategoryProposals[0].TotalAmount.String())
	assert.InDelta(t, 0.99, result.CategoryProposals[0].MaxConfidence, 1e-9)
	assert.Equal(t, 4, result.Stats.NeedsReview)
	assert.Zero(t, store.CategoryID(grooming))
	_, err = store.GetCategorySuggestion(ctx, grooming)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCategorize_BelowThresholdGoesToReview(t *testing.T) {
	tests := []struct {
		name       string
		suggestion model.Suggestion
		wantReason string
	}{
		{
			name:       "existing category below auto-assign",
			suggestion: model.Suggestion{Category: coffee.Category, Subcategory: coffee.Subcategory, Confidence: 0.65},
			wantReason: ReasonBelowThreshold,
		},
		{
			name:       "existing category with low confidence",
			suggestion: model.Suggestion{Category: coffee.Category, Subcategory: coffee.Subcategory, Confidence: 0.3},
			wantReason: ReasonLowConfidence,
		},
		{
			name:       "unknown category below auto-assign",
			suggestion: model.Suggestion{Category: "Travel", Subcategory: "Lodging", Confidence: 0.7},
			wantReason: ReasonUnknownCategory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memstore.NewMemoryStore(coffee)
			suggester := newFake(suggest("CORNER SHOP", tt.suggestion, model.Suggestion{
				Category: "Shopping", Subcategory: "General", Confidence: 0.1,
			}))

			result, err := newEngine(t, store, suggester).CategorizeTransactions(ctx, []model.Transaction{txn("CORNER SHOP", -3)}, DefaultOptions())
			require.NoError(t, err)
			assertOutcomeInvariant(t, result)

			outcome := result.Decisions[0].Outcome
			assert.True(t, outcome.NeedsReview)
			assert.Zero(t, outcome.Confidence)
			require.Len(t, result.TransactionReviews, 1)
			review := result.TransactionReviews[0]
			assert.Equal(t, tt.wantReason, review.Reason)
			require.Len(t, review.Suggestions, 2)
			assert.Equal(t, tt.suggestion, review.Suggestions[0])
			assert.Equal(t, "CORNER SHOP", review.MerchantKey)
			_, learned := store.Pattern(merchant.PatternKey("CORNER SHOP"))
			assert.False(t, learned)
			assert.Zero(t, store.CategoryID(model.CategoryRef{Category: "Travel", Subcategory: "Lodging"}))
		})
	}
}

func TestCategorize_UnknownCategoryCreatedOnTheFly(t *testing.T) {
	ctx := context.Background()
	lodging := model.CategoryRef{Category: "Travel", Subcategory: "Lodging"}
	suggestion := model.Suggestion{Category: lodging.Category, Subcategory: lodging.Subcategory, Confidence: 0.9}

	t.Run("with side effects", func(t *testing.T) {
		store := memstore.NewMemoryStore(coffee)
		result, err := newEngine(t, store, newFake(suggest("HILTON GARDEN INN", suggestion))).
			CategorizeTransactions(ctx, []model.Transaction{txn("HILTON GARDEN INN", -180)}, DefaultOptions())
		require.NoError(t, err)

		assert.Equal(t, model.MethodLLMAuto, result.Decisions[0].Outcome.Method)
		category, err := store.FindCategory(ctx, lodging)
		require.NoError(t, err)
		assert.True(t, category.SystemGenerated)
		assert.False(t, category.Approved)
		assert.Equal(t, []model.CategoryRef{lodging}, result.AutoCreatedCategories)
	})

	t.Run("without side effects", func(t *testing.T) {
		store := memstore.NewMemoryStore(coffee)
		opts := DefaultOptions()
		opts.ApplySideEffects = false
		result, err := newEngine(t, store, newFake(suggest("HILTON GARDEN INN", suggestion))).
			CategorizeTransactions(ctx, []model.Transaction{txn("HILTON GARDEN INN", -180)}, opts)
		require.NoError(t, err)

		assert.True(t, result.Decisions[0].Outcome.NeedsReview)
		assert.Zero(t, store.CategoryID(lodging))
		require.Len(t, result.TransactionReviews, 1)
		assert.Equal(t, ReasonUnknownCategory, result.TransactionReviews[0].Reason)
	})
}

func TestCategorize_ClientErrorGoesToReview(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryStore(coffee)
	store.AddHistory("BLUE BOTTLE #9", store.CategoryID(coffee), 2)
	suggester := newFake()
	suggester.err = errors.New("connection reset by peer")

	result, err := newEngine(t, store, suggester).CategorizeTransactions(ctx, []model.Transaction{
		txn("BLUE BOTTLE #12", -4),
		txn("MYSTERY MERCHANT", -9),
	}, DefaultOptions())
	require.NoError(t, err)
	assertOutcomeInvariant(t, result)

	require.Len(t, result.TransactionReviews, 2)
	for _, review := range result.TransactionReviews {
		assert.Equal(t, ReasonNoSuggestions, review.Reason)
		assert.Empty(t, review.Suggestions)
	}
	require.Len(t, result.TransactionReviews[0].SimilarHistory, 1)
	assert.Equal(t, coffee, result.TransactionReviews[0].SimilarHistory[0].CategoryRef)
	assert.Equal(t, 2, result.Stats.NeedsReview)

	_, err = store.GetCachedSuggestions(ctx, "MYSTERY MERCHANT")
	assert.ErrorIs(t, err, common.ErrNotFound, "failures are never cached")
}

func TestCategorize_ExternalDisabled(t *testing.T) {
	tests := []struct {
		suggester Suggester
		name      string
		skip      bool
	}{
		{name: "skip external", suggester: newFake(), skip: true},
		{name: "disabled client", suggester: &fakeSuggester{disabled: true}},
		{name: "no client", suggester: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memstore.NewMemoryStore(coffee)
			opts := DefaultOptions()
			opts.SkipExternal = tt.skip

			result, err := newEngine(t, store, tt.suggester).CategorizeTransactions(ctx, []model.Transaction{txn("NEW PLACE", -1)}, opts)
			require.NoError(t, err)

			require.Len(t, result.TransactionReviews, 1)
			assert.Equal(t, ReasonExternalUnavailable, result.TransactionReviews[0].Reason)
			assert.Equal(t, 1, store.Calls["SimilarHistory"])
			assert.Zero(t, store.Calls["GetCachedSuggestions"])
			if f, ok := tt.suggester.(*fakeSuggester); ok {
				assert.Empty(t, f.calls)
			}
		})
	}
}

func TestCategorize_OneRequestPerMerchant(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryStore(coffee)
	suggester := newFake(suggest("ACME DELI", model.Suggestion{
		Category: coffee.Category, Subcategory: coffee.Subcategory, Confidence: 0.5,
	}))

	result, err := newEngine(t, store, suggester).CategorizeTransactions(ctx, []model.Transaction{
		txn("Acme Deli", -1),
		txn("OTHER", -2),
		txn("ACME  DELI", -3),
		txn("acme deli", -4),
	}, DefaultOptions())
	require.NoError(t, err)
	assertOutcomeInvariant(t, result)

	require.Len(t, suggester.calls, 1)
	assert.Equal(t, 2, suggester.requestedMerchants())
	assert.Len(t, suggester.calls[0]["ACME DELI"], 3)
	assert.Equal(t, "2024-06-01", suggester.calls[0]["ACME DELI"][0].Date)
	assert.Equal(t, 2, result.Stats.MerchantsSent)

	indices := make([]int, 0, len(result.TransactionReviews))
	for _, r := range result.TransactionReviews {
		indices = append(indices, r.Index)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, indices)
}

func TestCategorize_CacheHitSkipsClient(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryStore(coffee)
	require.NoError(t, store.PutCachedSuggestions(ctx, "BLUE BOTTLE", "earlier", suggest("BLUE BOTTLE", model.Suggestion{
		Category: coffee.Category, Subcategory: coffee.Subcategory, Confidence: 0.9,
	})))
	suggester := newFake()
	recorder := metrics.NewRecorder()
	e := newEngine(t, store, suggester).WithMetrics(recorder)

	result, err := e.CategorizeTransactions(ctx, []model.Transaction{txn("blue bottle", -4)}, DefaultOptions())
	require.NoError(t, err)

	assert.Empty(t, suggester.calls)
	assert.Equal(t, model.MethodLLMAuto, result.Decisions[0].Outcome.Method)
	assert.Equal(t, 1, result.Stats.CacheHits)

	count, err := testutil.GatherAndCount(recorder.Registry(), "saffron_cache_lookups_total", "saffron_outcomes_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCategorize_DefaultAccountAndOrder(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryStore(coffee)
	conf := 0.9
	require.NoError(t, store.UpsertPattern(ctx, model.MerchantPattern{
		PatternKey: "BLUE BOTTLE", CategoryID: store.CategoryID(coffee), Confidence: &conf,
	}))

	in := []model.Transaction{txn("UNKNOWN A", -1), txn("BLUE BOTTLE", -2), txn("UNKNOWN B", -3)}
	in[2].AccountID = "savings"
	opts := DefaultOptions()
	opts.SkipExternal = true
	opts.DefaultAccount = "checking"

	result, err := newEngine(t, store, nil).CategorizeTransactions(ctx, in, opts)
	require.NoError(t, err)
	assertOutcomeInvariant(t, result)

	require.Len(t, result.Decisions, 3)
	for i, d := range result.Decisions {
		assert.Equal(t, in[i].Merchant, d.Transaction.Merchant)
	}
	assert.Equal(t, "checking", result.Decisions[0].Transaction.AccountID)
	assert.Equal(t, "savings", result.Decisions[2].Transaction.AccountID)
	assert.Empty(t, in[0].AccountID, "input is not modified")
}

func TestCategorize_StorageErrorsPropagate(t *testing.T) {
	suggestion := model.Suggestion{Category: coffee.Category, Subcategory: coffee.Subcategory, Confidence: 0.95}
	tests := []struct {
		name   string
		method string
	}{
		{name: "pattern lookup", method: "FindPatterns"},
		{name: "history lookup", method: "MerchantCategoryCounts"},
		{name: "cache read", method: "GetCachedSuggestions"},
		{name: "cache write", method: "PutCachedSuggestions"},
		{name: "taxonomy lookup", method: "FindCategory"},
		{name: "pattern learning", method: "UpsertPattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.NewMemoryStore(coffee)
			boom := errors.New("disk I/O error")
			store.Failures[tt.method] = boom

			_, err := newEngine(t, store, newFake(suggest("BLUE BOTTLE", suggestion))).
				CategorizeTransactions(context.Background(), []model.Transaction{txn("BLUE BOTTLE", -4)}, DefaultOptions())
			require.Error(t, err)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestCategorize_InvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.AutoAssignThreshold = 0.6
	opts.NeedsReviewThreshold = 0.7

	_, err := newEngine(t, memstore.NewMemoryStore(), nil).CategorizeTransactions(context.Background(), nil, opts)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = New(memstore.NewMemoryStore(), nil, Config{DynamicAutoApproveConfidence: 1.5})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestCategorize_EmptyInput(t *testing.T) {
	result, err := newEngine(t, memstore.NewMemoryStore(), newFake()).CategorizeTransactions(context.Background(), nil, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, result.Decisions)
	assert.Zero(t, result.Stats.Total)
}
