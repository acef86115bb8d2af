// Package proposals tracks evidence for taxonomy entries suggested by the
// advisory model but not yet in the taxonomy.
package proposals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/service"
)

// ErrStatusRegression is returned when an approved proposal would go back to pending.
var ErrStatusRegression = errors.New("suggestion status cannot return to pending")

// Tracker accumulates support evidence per (category, subcategory) pair.
type Tracker struct {
	store service.ProposalStore
	now   func() time.Time
}

// NewTracker creates a Tracker over store.
func NewTracker(store service.ProposalStore) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// Get returns the record for ref, or nil when no evidence exists yet.
func (t *Tracker) Get(ctx context.Context, ref model.CategoryRef) (*model.CategorySuggestionRecord, error) {
	rec, err := t.store.GetCategorySuggestion(ctx, ref)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category suggestion %s: %w", ref, err)
	}
	return rec, nil
}

// Record adds one supporting transaction: count+1, total+|amount|, max
// confidence raised, last seen refreshed.
func (t *Tracker) Record(ctx context.Context, ref model.CategoryRef, amount, confidence float64) (*model.CategorySuggestionRecord, error) {
	if ref.Category == "" || ref.Subcategory == "" {
		return nil, fmt.Errorf("%w: category and subcategory are required", common.ErrInvalidInput)
	}

	rec, err := t.store.RecordCategorySuggestion(ctx, ref, amount, confidence, t.now())
	if err != nil {
		return nil, fmt.Errorf("failed to record category suggestion %s: %w", ref, err)
	}
	return rec, nil
}

// SetStatus advances the record's status. Unknown statuses and moves back
// to pending are rejected.
func (t *Tracker) SetStatus(ctx context.Context, ref model.CategoryRef, status model.SuggestionStatus) error {
	if _, err := model.ParseSuggestionStatus(string(status)); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidInput, err)
	}

	current, err := t.Get(ctx, ref)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("category suggestion %s: %w", ref, common.ErrNotFound)
	}
	if status == model.SuggestionPending && current.Status.IsApproved() {
		return fmt.Errorf("%s is %s: %w", ref, current.Status, ErrStatusRegression)
	}
	if status == current.Status {
		return nil
	}

	if err := t.store.SetCategorySuggestionStatus(ctx, ref, status); err != nil {
		return fmt.Errorf("failed to set category suggestion status: %w", err)
	}
	return nil
}

// Pending lists records still awaiting approval.
func (t *Tracker) Pending(ctx context.Context) ([]model.CategorySuggestionRecord, error) {
	records, err := t.store.ListCategorySuggestions(ctx, model.SuggestionPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending category suggestions: %w", err)
	}
	return records, nil
}
