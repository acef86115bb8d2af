package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/merchant"
	"github.com/Veraticus/saffron/internal/metrics"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/service"
)

const systemPrompt = `You categorize financial transactions by merchant.
Respond with a single JSON object and nothing else.
Prefer categories from known_categories. Only set is_new_category to true when none of them fit.
Confidence is a number between 0 and 1.`

const promptTemplate = `For each merchant below, suggest up to three (category, subcategory) pairs, best first.

Reply with this shape:
{"merchants":[{"merchant_normalized":"...","pattern_key":"...","pattern_display":"...","suggestions":[{"category":"...","subcategory":"...","confidence":0.9,"is_new_category":false,"notes":"..."}]}]}

Request:
%s
`

// Suggester asks a Provider for category suggestions in bounded sub-batches.
// A Suggester without a provider is disabled.
type Suggester struct {
	provider  Provider
	logger    *slog.Logger
	limiter   *rate.Limiter
	metrics   *metrics.Recorder
	progress  func(done, total int)
	retryOpts service.RetryOptions
	batchSize int
}

// NewSuggester wraps provider. A nil provider yields a disabled Suggester.
func NewSuggester(provider Provider, cfg Config, logger *slog.Logger) *Suggester {
	if logger == nil {
		logger = slog.Default()
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	return &Suggester{
		provider:  provider,
		logger:    logger,
		limiter:   newRateLimiter(cfg.RateLimit),
		retryOpts: retryOpts,
		batchSize: cfg.batchSize(),
	}
}

// NewSuggesterFromConfig builds the provider named by cfg.Provider.
func NewSuggesterFromConfig(ctx context.Context, cfg Config, logger *slog.Logger) (*Suggester, error) {
	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	return NewSuggester(provider, cfg, logger), nil
}

// WithMetrics records one advisory call per sub-batch.
func (s *Suggester) WithMetrics(m *metrics.Recorder) *Suggester {
	s.metrics = m
	return s
}

// WithProgress sets a hook called after each sub-batch.
func (s *Suggester) WithProgress(fn func(done, total int)) *Suggester {
	s.progress = fn
	return s
}

// Enabled reports whether a provider is configured.
func (s *Suggester) Enabled() bool {
	return s != nil && s.provider != nil
}

// ModelName returns the provider's model, or "" when disabled.
func (s *Suggester) ModelName() string {
	if !s.Enabled() {
		return ""
	}
	return s.provider.Model()
}

// Close releases provider resources when the provider holds any.
func (s *Suggester) Close() error {
	if !s.Enabled() {
		return nil
	}
	if c, ok := s.provider.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type requestMerchant struct {
	MerchantKey  string              `json:"merchant_normalized"`
	PatternKey   string              `json:"pattern_key"`
	Transactions []model.RequestItem `json:"transactions"`
}

type batchRequest struct {
	Merchants       []requestMerchant   `json:"merchants"`
	KnownCategories []model.CategoryRef `json:"known_categories,omitempty"`
}

// CategorizeBatch returns suggestions for the merchants in items, keyed by
// normalized merchant. Failed sub-batches are logged and skipped, so the
// result may cover only some merchants. Only a disabled client or a
// canceled context return an error.
func (s *Suggester) CategorizeBatch(ctx context.Context, items map[string][]model.RequestItem, known []model.CategoryRef) (map[string]model.SuggestionResult, error) {
	if !s.Enabled() {
		return nil, ErrClientDisabled
	}

	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	results := make(map[string]model.SuggestionResult, len(keys))
	total := (len(keys) + s.batchSize - 1) / s.batchSize

	for i := 0; i < len(keys); i += s.batchSize {
		end := min(i+s.batchSize, len(keys))
		subBatch := i / s.batchSize

		batchResults, err := s.callSubBatch(ctx, keys[i:end], items, known)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return results, ctxErr
			}
			s.metrics.AdvisoryCall(false)
			s.logger.Warn("advisory sub-batch failed, skipping",
				"sub_batch", subBatch,
				"merchants", end-i,
				"error", err)
		} else {
			s.metrics.AdvisoryCall(true)
			for key, result := range batchResults {
				results[key] = result
			}
			s.logger.Debug("advisory sub-batch complete",
				"sub_batch", subBatch,
				"requested", end-i,
				"returned", len(batchResults))
		}

		if s.progress != nil {
			s.progress(subBatch+1, total)
		}
	}

	return results, nil
}

func (s *Suggester) callSubBatch(ctx context.Context, keys []string, items map[string][]model.RequestItem, known []model.CategoryRef) (map[string]model.SuggestionResult, error) {
	prompt, err := buildPrompt(keys, items, known)
	if err != nil {
		return nil, err
	}

	requested := make(map[string]bool, len(keys))
	for _, key := range keys {
		requested[key] = true
	}

	var results map[string]model.SuggestionResult
	err = common.WithRetry(ctx, func() error {
		if waitErr := s.limiter.Wait(ctx); waitErr != nil {
			return common.Permanent(fmt.Errorf("rate limiter: %w", waitErr))
		}

		content, callErr := s.provider.Complete(ctx, systemPrompt, prompt)
		if callErr != nil {
			return callErr
		}

		parsed, parseErr := parseBatchResponse(content, requested)
		if parseErr != nil {
			return common.Permanent(parseErr)
		}
		results = parsed
		return nil
	}, s.retryOpts)
	if err != nil {
		var retryable *common.RetryableError
		if errors.As(err, &retryable) {
			return nil, retryable.Err
		}
		return nil, err
	}

	return results, nil
}

func buildPrompt(keys []string, items map[string][]model.RequestItem, known []model.CategoryRef) (string, error) {
	req := batchRequest{
		Merchants:       make([]requestMerchant, 0, len(keys)),
		KnownCategories: known,
	}
	for _, key := range keys {
		txns := items[key]
		patternKey := merchant.PatternKey(key)
		if len(txns) > 0 {
			patternKey = merchant.PatternKey(txns[0].Merchant)
		}
		req.Merchants = append(req.Merchants, requestMerchant{
			MerchantKey:  key,
			PatternKey:   patternKey,
			Transactions: txns,
		})
	}

	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal advisory request: %w", err)
	}
	return strings.TrimSpace(fmt.Sprintf(promptTemplate, payload)), nil
}
