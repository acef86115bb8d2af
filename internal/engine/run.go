package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/saffron/internal/merchant"
	"github.com/Veraticus/saffron/internal/model"
)

// Review reasons.
const (
	ReasonExternalUnavailable = "external categorization unavailable"
	ReasonNoSuggestions       = "no suggestions available"
	ReasonBelowThreshold      = "below auto-assign threshold"
	ReasonLowConfidence       = "low confidence"
	ReasonUnknownCategory     = "suggested category does not exist"
	ReasonCreatedLater        = "suggested category was created later in this run"
)

type proposalState struct {
	proposal model.CategoryProposal
	indices  []int
}

// run is the mutable state of one CategorizeTransactions call.
type run struct {
	engine        *Engine
	result        *model.Result
	proposals     map[model.CategoryRef]*proposalState
	autoCreated   map[model.CategoryRef]bool
	proposalOrder []model.CategoryRef
	opts          Options
}

// reviewOnly queues transaction i with no suggestions.
func (r *run) reviewOnly(ctx context.Context, i int, reason string) error {
	r.result.Decisions[i].Outcome = model.Unresolved()
	return r.review(ctx, i, reason)
}

// review marks transaction i unresolved and adds its review entry.
func (r *run) review(ctx context.Context, i int, reason string) error {
	d := &r.result.Decisions[i]
	d.Outcome = model.Unresolved()

	patternKey := merchant.PatternKey(d.Transaction.Merchant)
	var similar []model.CategoryCount
	if patternKey != "" {
		var err error
		similar, err = r.engine.store.SimilarHistory(ctx, patternKey, r.engine.config.SimilarHistoryLimit)
		if err != nil {
			return fmt.Errorf("failed to load similar history for %q: %w", patternKey, err)
		}
	}

	r.result.TransactionReviews = append(r.result.TransactionReviews, model.TransactionReview{
		ID:             r.engine.newID(),
		Index:          i,
		Reason:         reason,
		MerchantKey:    merchant.Normalize(d.Transaction.Merchant),
		PatternKey:     patternKey,
		Transaction:    d.Transaction,
		Suggestions:    d.Suggestions,
		SimilarHistory: similar,
	})
	return nil
}

// bumpProposal folds transaction i into this run's proposal for ref. Counts
// only ever rise to the larger of the in-run tally and the stored evidence.
func (r *run) bumpProposal(ref model.CategoryRef, i int, confidence float64, support int, total decimal.Decimal, maxConfidence float64) {
	state, ok := r.proposals[ref]
	if !ok {
		state = &proposalState{proposal: model.CategoryProposal{
			ID:          r.engine.newID(),
			CategoryRef: ref,
			TotalAmount: decimal.Zero,
		}}
		r.proposals[ref] = state
		r.proposalOrder = append(r.proposalOrder, ref)
		r.result.Stats.ProposalsTouched++
	}

	txn := r.result.Decisions[i].Transaction
	p := &state.proposal
	p.Examples = append(p.Examples, model.ProposalExample{
		Index:         i,
		TransactionID: txn.ID,
		Hash:          txn.Hash,
		AccountID:     txn.AccountID,
		Date:          txn.Date,
		Merchant:      txn.Merchant,
		Description:   txn.Description,
		Amount:        txn.Amount,
		Confidence:    confidence,
	})
	state.indices = append(state.indices, i)

	p.SupportCount = max(p.SupportCount+1, support)
	inRun := p.TotalAmount.Add(decimal.NewFromFloat(txn.Amount).Abs())
	p.TotalAmount = decimal.Max(inRun, total)
	p.MaxConfidence = max(p.MaxConfidence, maxConfidence)
}

// retireProposal drops ref's in-run proposal once its category exists. The
// transactions it held stay unresolved and move to individual reviews.
func (r *run) retireProposal(ctx context.Context, ref model.CategoryRef) error {
	state, ok := r.proposals[ref]
	if !ok {
		return nil
	}
	delete(r.proposals, ref)

	for _, i := range state.indices {
		if err := r.review(ctx, i, ReasonCreatedLater); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) markCreated(ref model.CategoryRef, kind string) {
	r.engine.metrics.CategoryCreated(kind)
	if r.autoCreated[ref] {
		return
	}
	r.autoCreated[ref] = true
	r.result.AutoCreatedCategories = append(r.result.AutoCreatedCategories, ref)
	r.result.Stats.CategoriesAdded++
}

// finish orders the review queue and fills in the run statistics.
func (r *run) finish() {
	for _, ref := range r.proposalOrder {
		if state, ok := r.proposals[ref]; ok {
			r.result.CategoryProposals = append(r.result.CategoryProposals, state.proposal)
		}
	}

	sort.SliceStable(r.result.TransactionReviews, func(a, b int) bool {
		return r.result.TransactionReviews[a].Index < r.result.TransactionReviews[b].Index
	})

	stats := &r.result.Stats
	stats.Total = len(r.result.Decisions)
	for _, d := range r.result.Decisions {
		switch d.Outcome.Method {
		case model.MethodRulePattern:
			stats.RulePattern++
		case model.MethodRuleHistory:
			stats.RuleHistory++
		case model.MethodLLMAuto:
			stats.LLMAuto++
		case model.MethodLLMAutoNewCategory:
			stats.LLMAutoNew++
		}
		if d.Outcome.NeedsReview {
			stats.NeedsReview++
		}
	}
}
