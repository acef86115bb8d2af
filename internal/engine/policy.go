package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/merchant"
	"github.com/Veraticus/saffron/internal/metrics"
	"github.com/Veraticus/saffron/internal/model"
)

// decide applies the confidence policy to transaction i using its merchant's
// best suggestion.
func (r *run) decide(ctx context.Context, i int, result model.SuggestionResult) error {
	e := r.engine
	d := &r.result.Decisions[i]
	d.Suggestions = result.Suggestions.Ranked()

	best := d.Suggestions[0]
	ref := best.Ref()
	confidence := best.Confidence

	category, err := e.findCategory(ctx, ref)
	if err != nil {
		return err
	}

	if category == nil && confidence >= r.opts.AutoAssignThreshold && !best.IsNewCategory && r.opts.ApplySideEffects {
		category, err = e.store.CreateCategory(ctx, ref, true, false)
		if err != nil {
			return fmt.Errorf("failed to create category %s: %w", ref, err)
		}
		r.markCreated(ref, metrics.KindOnDemand)
		e.logger.Info("created suggested category",
			"category", ref.Category,
			"subcategory", ref.Subcategory,
			"confidence", confidence)
	}

	if category != nil && confidence >= r.opts.AutoAssignThreshold {
		d.Outcome = model.Resolved(category.ID, confidence, model.MethodLLMAuto)
		return r.learn(ctx, d.Transaction, result, category.ID, confidence)
	}

	if best.IsNewCategory {
		return r.proposeCategory(ctx, i, result, best)
	}

	reason := ReasonLowConfidence
	switch {
	case category == nil:
		reason = ReasonUnknownCategory
	case confidence >= r.opts.NeedsReviewThreshold:
		reason = ReasonBelowThreshold
	}
	return r.review(ctx, i, reason)
}

// proposeCategory handles a best suggestion flagged as a new taxonomy entry.
// Enough confident evidence creates the category; otherwise the evidence is
// accumulated and the transaction stays unresolved.
func (r *run) proposeCategory(ctx context.Context, i int, result model.SuggestionResult, best model.Suggestion) error {
	e := r.engine
	d := &r.result.Decisions[i]
	ref := best.Ref()
	confidence := best.Confidence
	amount := math.Abs(d.Transaction.Amount)

	record, err := e.tracker.Get(ctx, ref)
	if err != nil {
		return err
	}

	if record != nil && record.Status.IsApproved() {
		category, err := e.findCategory(ctx, ref)
		if err != nil {
			return err
		}
		if category != nil {
			d.Outcome = model.Resolved(category.ID, confidence, model.MethodLLMAutoNewCategory)
			return r.learn(ctx, d.Transaction, result, category.ID, confidence)
		}
	}

	support := 1
	total := decimal.NewFromFloat(amount)
	maxConfidence := confidence
	if record != nil {
		support += record.SupportCount
		total = total.Add(record.TotalAmount)
		maxConfidence = math.Max(maxConfidence, record.MaxConfidence)
	}

	if confidence >= e.config.DynamicAutoApproveConfidence &&
		support >= e.config.DynamicMinTransactionsForNew &&
		r.opts.ApplySideEffects {
		category, err := e.store.CreateCategory(ctx, ref, true, false)
		if err != nil {
			return fmt.Errorf("failed to create category %s: %w", ref, err)
		}
		if _, err := e.tracker.Record(ctx, ref, d.Transaction.Amount, confidence); err != nil {
			return err
		}
		e.metrics.ProposalRecorded()
		if err := e.tracker.SetStatus(ctx, ref, model.SuggestionAutoApproved); err != nil {
			return err
		}
		if err := r.learn(ctx, d.Transaction, result, category.ID, confidence); err != nil {
			return err
		}

		d.Outcome = model.Resolved(category.ID, confidence, model.MethodLLMAutoNewCategory)
		r.markCreated(ref, metrics.KindDynamic)
		e.logger.Info("auto-approved new category",
			"category", ref.Category,
			"subcategory", ref.Subcategory,
			"support", support,
			"max_confidence", maxConfidence)
		return r.retireProposal(ctx, ref)
	}

	r.bumpProposal(ref, i, confidence, support, total, maxConfidence)
	d.Outcome = model.Unresolved()

	if r.opts.ApplySideEffects {
		if _, err := e.tracker.Record(ctx, ref, d.Transaction.Amount, confidence); err != nil {
			return err
		}
		e.metrics.ProposalRecorded()
	}
	return nil
}

// learn upserts the merchant pattern for a resolved advisory outcome.
func (r *run) learn(ctx context.Context, txn model.Transaction, result model.SuggestionResult, categoryID int64, confidence float64) error {
	if !r.opts.ApplySideEffects {
		return nil
	}
	key := merchant.PatternKey(txn.Merchant)
	if key == "" {
		return nil
	}

	c := confidence
	err := r.engine.store.UpsertPattern(ctx, model.MerchantPattern{
		PatternKey: key,
		CategoryID: categoryID,
		Confidence: &c,
		Display:    result.PatternDisplay,
		Metadata:   result.Metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to learn pattern %q: %w", key, err)
	}
	return nil
}

// findCategory returns nil when ref is not in the taxonomy.
func (e *Engine) findCategory(ctx context.Context, ref model.CategoryRef) (*model.Category, error) {
	category, err := e.store.FindCategory(ctx, ref)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find category %s: %w", ref, err)
	}
	return category, nil
}
