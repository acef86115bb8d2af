package engine

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/Veraticus/saffron/internal/common"
)

// Default thresholds.
const (
	DefaultAutoAssignThreshold          = 0.8
	DefaultNeedsReviewThreshold         = 0.5
	DefaultDynamicAutoApproveConfidence = 0.85
	DefaultDynamicMinTransactionsForNew = 3
	DefaultSimilarHistoryLimit          = 3
)

// Options controls a single categorization run. Zero thresholds take the defaults.
type Options struct {
	DefaultAccount       string
	AutoAssignThreshold  float64 `validate:"gte=0,lte=1"`
	NeedsReviewThreshold float64 `validate:"gte=0,lte=1,ltefield=AutoAssignThreshold"`
	SkipExternal         bool
	ApplySideEffects     bool
}

// DefaultOptions enables external calls and side effects.
func DefaultOptions() Options {
	return Options{
		AutoAssignThreshold:  DefaultAutoAssignThreshold,
		NeedsReviewThreshold: DefaultNeedsReviewThreshold,
		ApplySideEffects:     true,
	}
}

func (o Options) withDefaults() Options {
	if o.AutoAssignThreshold == 0 {
		o.AutoAssignThreshold = DefaultAutoAssignThreshold
	}
	if o.NeedsReviewThreshold == 0 {
		o.NeedsReviewThreshold = min(DefaultNeedsReviewThreshold, o.AutoAssignThreshold)
	}
	return o
}

// Config holds engine-wide policy for dynamic categories. Zero values take the defaults.
type Config struct {
	DynamicAutoApproveConfidence float64 `validate:"gte=0,lte=1"`
	DynamicMinTransactionsForNew int     `validate:"gte=0"`
	SimilarHistoryLimit          int     `validate:"gte=0"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DynamicAutoApproveConfidence: DefaultDynamicAutoApproveConfidence,
		DynamicMinTransactionsForNew: DefaultDynamicMinTransactionsForNew,
		SimilarHistoryLimit:          DefaultSimilarHistoryLimit,
	}
}

func (c Config) withDefaults() Config {
	if c.DynamicAutoApproveConfidence == 0 {
		c.DynamicAutoApproveConfidence = DefaultDynamicAutoApproveConfidence
	}
	if c.DynamicMinTransactionsForNew == 0 {
		c.DynamicMinTransactionsForNew = DefaultDynamicMinTransactionsForNew
	}
	if c.SimilarHistoryLimit == 0 {
		c.SimilarHistoryLimit = DefaultSimilarHistoryLimit
	}
	return c
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateStruct(kind string, v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: invalid %s: %v", common.ErrInvalidInput, kind, err)
	}
	return nil
}
