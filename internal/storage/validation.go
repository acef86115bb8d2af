package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/saffron/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidPattern     = errors.New("invalid merchant pattern")
	ErrInvalidStatus      = errors.New("invalid suggestion status")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateRef(ref model.CategoryRef) error {
	return validateString(ref.Category, "category")
}

func validateTransaction(txn *model.Transaction) error {
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if strings.TrimSpace(txn.Merchant) == "" {
		return fmt.Errorf("%w: missing merchant", ErrInvalidTransaction)
	}
	return nil
}

func validatePattern(p model.MerchantPattern) error {
	if strings.TrimSpace(p.PatternKey) == "" {
		return fmt.Errorf("%w: missing pattern key", ErrInvalidPattern)
	}
	if p.CategoryID <= 0 {
		return fmt.Errorf("%w: missing category", ErrInvalidPattern)
	}
	if p.Confidence != nil && (*p.Confidence < 0 || *p.Confidence > 1) {
		return fmt.Errorf("%w: confidence %.2f out of range", ErrInvalidPattern, *p.Confidence)
	}
	return nil
}
