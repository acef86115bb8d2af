package testutil

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/merchant"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/service"
)

var _ service.Storage = (*MemoryStore)(nil)

type historyEntry struct {
	merchant   string
	categoryID int64
}

// MemoryStore is an in-memory service.Storage for unit tests. Set Failures
// to make a named method return an error.
type MemoryStore struct {
	cache          map[string]model.SuggestionResult
	cacheModels    map[string]string
	patterns       map[string]model.MerchantPattern
	proposals      map[model.CategoryRef]*model.CategorySuggestionRecord
	Failures       map[string]error
	Calls          map[string]int
	categories     []model.Category
	history        []historyEntry
	Decisions      []model.Decision
	nextCategoryID int64
	mu             sync.Mutex
}

// NewMemoryStore creates an empty store seeded with the given categories.
func NewMemoryStore(refs ...model.CategoryRef) *MemoryStore {
	m := &MemoryStore{
		cache:       make(map[string]model.SuggestionResult),
		cacheModels: make(map[string]string),
		patterns:    make(map[string]model.MerchantPattern),
		proposals:   make(map[model.CategoryRef]*model.CategorySuggestionRecord),
		Failures:    make(map[string]error),
		Calls:       make(map[string]int),
	}
	for _, ref := range refs {
		m.addCategory(ref, false, true)
	}
	return m
}

func (m *MemoryStore) enter(method string) error {
	m.Calls[method]++
	return m.Failures[method]
}

func (m *MemoryStore) addCategory(ref model.CategoryRef, systemGenerated, approved bool) model.Category {
	m.nextCategoryID++
	cat := model.Category{
		ID:              m.nextCategoryID,
		Name:            ref.Category,
		Subcategory:     ref.Subcategory,
		SystemGenerated: systemGenerated,
		Approved:        approved,
		CreatedAt:       time.Now(),
	}
	m.categories = append(m.categories, cat)
	return cat
}

// CategoryID returns the id of ref, or 0 when unknown.
func (m *MemoryStore) CategoryID(ref model.CategoryRef) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.Ref() == ref {
			return c.ID
		}
	}
	return 0
}

// AddHistory records n prior transactions of merchant categorized as categoryID.
func (m *MemoryStore) AddHistory(merchantName string, categoryID int64, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.history = append(m.history, historyEntry{merchant: merchantName, categoryID: categoryID})
	}
}

// Pattern returns the stored pattern for key.
func (m *MemoryStore) Pattern(key string) (model.MerchantPattern, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patterns[key]
	return p, ok
}

// FindCategory implements service.TaxonomyStore.
func (m *MemoryStore) FindCategory(_ context.Context, ref model.CategoryRef) (*model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindCategory"); err != nil {
		return nil, err
	}
	for _, c := range m.categories {
		if c.Ref() == ref {
			found := c
			return &found, nil
		}
	}
	return nil, common.ErrNotFound
}

// ListCategories implements service.TaxonomyStore.
func (m *MemoryStore) ListCategories(_ context.Context) ([]model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListCategories"); err != nil {
		return nil, err
	}
	out := make([]model.Category, len(m.categories))
	copy(out, m.categories)
	return out, nil
}

// CreateCategory implements service.TaxonomyStore.
func (m *MemoryStore) CreateCategory(_ context.Context, ref model.CategoryRef, systemGenerated, approved bool) (*model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateCategory"); err != nil {
		return nil, err
	}
	for _, c := range m.categories {
		if c.Ref() == ref {
			found := c
			return &found, nil
		}
	}
	cat := m.addCategory(ref, systemGenerated, approved)
	return &cat, nil
}

// ApproveCategory marks a category as user-approved.
func (m *MemoryStore) ApproveCategory(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ApproveCategory"); err != nil {
		return err
	}
	for i := range m.categories {
		if m.categories[i].ID == id {
			m.categories[i].Approved = true
			return nil
		}
	}
	return common.ErrNotFound
}

// GetCachedSuggestions implements service.CacheStore.
func (m *MemoryStore) GetCachedSuggestions(_ context.Context, merchantKey string) (*model.SuggestionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetCachedSuggestions"); err != nil {
		return nil, err
	}
	result, ok := m.cache[merchantKey]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &result, nil
}

// PutCachedSuggestions implements service.CacheStore.
func (m *MemoryStore) PutCachedSuggestions(_ context.Context, merchantKey, modelName string, result model.SuggestionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("PutCachedSuggestions"); err != nil {
		return err
	}
	m.cache[merchantKey] = result
	m.cacheModels[merchantKey] = modelName
	return nil
}

// FindPatterns implements service.PatternStore.
func (m *MemoryStore) FindPatterns(_ context.Context, patternKey string) ([]model.MerchantPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindPatterns"); err != nil {
		return nil, err
	}
	p, ok := m.patterns[patternKey]
	if !ok {
		return nil, nil
	}
	return []model.MerchantPattern{p}, nil
}

// IncrementPatternUsage implements service.PatternStore.
func (m *MemoryStore) IncrementPatternUsage(_ context.Context, patternKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("IncrementPatternUsage"); err != nil {
		return err
	}
	p, ok := m.patterns[patternKey]
	if !ok {
		return common.ErrNotFound
	}
	p.UsageCount++
	m.patterns[patternKey] = p
	return nil
}

// UpsertPattern implements service.PatternStore.
func (m *MemoryStore) UpsertPattern(_ context.Context, pattern model.MerchantPattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpsertPattern"); err != nil {
		return err
	}
	if existing, ok := m.patterns[pattern.PatternKey]; ok {
		pattern.UsageCount = existing.UsageCount
		if pattern.Display == "" {
			pattern.Display = existing.Display
		}
		if len(pattern.Metadata) == 0 {
			pattern.Metadata = existing.Metadata
		}
	}
	pattern.LastUpdated = time.Now()
	m.patterns[pattern.PatternKey] = pattern
	return nil
}

// ListPatterns implements service.PatternStore.
func (m *MemoryStore) ListPatterns(_ context.Context) ([]model.MerchantPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListPatterns"); err != nil {
		return nil, err
	}
	out := make([]model.MerchantPattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatternKey < out[j].PatternKey })
	return out, nil
}

// MerchantCategoryCounts implements service.HistoryStore.
func (m *MemoryStore) MerchantCategoryCounts(_ context.Context, merchantName string) ([]model.CategoryCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("MerchantCategoryCounts"); err != nil {
		return nil, err
	}
	return m.countWhere(func(e historyEntry) bool { return e.merchant == merchantName }, 0), nil
}

// SimilarHistory implements service.HistoryStore.
func (m *MemoryStore) SimilarHistory(_ context.Context, patternKey string, limit int) ([]model.CategoryCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SimilarHistory"); err != nil {
		return nil, err
	}
	return m.countWhere(func(e historyEntry) bool { return merchant.PatternKey(e.merchant) == patternKey }, limit), nil
}

func (m *MemoryStore) countWhere(match func(historyEntry) bool, limit int) []model.CategoryCount {
	counts := make(map[int64]int)
	for _, e := range m.history {
		if match(e) {
			counts[e.categoryID]++
		}
	}

	out := make([]model.CategoryCount, 0, len(counts))
	for id, n := range counts {
		cc := model.CategoryCount{CategoryID: id, Count: n}
		for _, c := range m.categories {
			if c.ID == id {
				cc.CategoryRef = c.Ref()
			}
		}
		out = append(out, cc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SaveDecisions implements service.HistoryStore. Resolved decisions become history.
func (m *MemoryStore) SaveDecisions(_ context.Context, decisions []model.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SaveDecisions"); err != nil {
		return err
	}
	for _, d := range decisions {
		m.Decisions = append(m.Decisions, d)
		if d.Outcome.CategoryID != nil {
			m.history = append(m.history, historyEntry{merchant: d.Transaction.Merchant, categoryID: *d.Outcome.CategoryID})
		}
	}
	return nil
}

// GetCategorySuggestion implements service.ProposalStore.
func (m *MemoryStore) GetCategorySuggestion(_ context.Context, ref model.CategoryRef) (*model.CategorySuggestionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetCategorySuggestion"); err != nil {
		return nil, err
	}
	rec, ok := m.proposals[ref]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := *rec
	return &out, nil
}

// RecordCategorySuggestion implements service.ProposalStore.
func (m *MemoryStore) RecordCategorySuggestion(_ context.Context, ref model.CategoryRef, amount, confidence float64, seenAt time.Time) (*model.CategorySuggestionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("RecordCategorySuggestion"); err != nil {
		return nil, err
	}
	rec, ok := m.proposals[ref]
	if !ok {
		rec = &model.CategorySuggestionRecord{
			CategoryRef: ref,
			Status:      model.SuggestionPending,
			FirstSeen:   seenAt,
			TotalAmount: decimal.Zero,
		}
		m.proposals[ref] = rec
	}
	rec.SupportCount++
	rec.TotalAmount = rec.TotalAmount.Add(decimal.NewFromFloat(math.Abs(amount)))
	if confidence > rec.MaxConfidence {
		rec.MaxConfidence = confidence
	}
	rec.LastSeen = seenAt
	out := *rec
	return &out, nil
}

// SetCategorySuggestionStatus implements service.ProposalStore.
func (m *MemoryStore) SetCategorySuggestionStatus(_ context.Context, ref model.CategoryRef, status model.SuggestionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SetCategorySuggestionStatus"); err != nil {
		return err
	}
	rec, ok := m.proposals[ref]
	if !ok {
		return common.ErrNotFound
	}
	rec.Status = status
	return nil
}

// ListCategorySuggestions implements service.ProposalStore. An empty status lists all.
func (m *MemoryStore) ListCategorySuggestions(_ context.Context, status model.SuggestionStatus) ([]model.CategorySuggestionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListCategorySuggestions"); err != nil {
		return nil, err
	}
	var out []model.CategorySuggestionRecord
	for _, rec := range m.proposals {
		if status == "" || rec.Status == status {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// Migrate implements service.Storage.
func (m *MemoryStore) Migrate(_ context.Context) error { return nil }

// Close implements service.Storage.
func (m *MemoryStore) Close() error { return nil }
