package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/merchant"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/proposals"
	"github.com/Veraticus/saffron/internal/service"
)

// ReviewedConfidence is stored on patterns and outcomes a human confirmed.
const ReviewedConfidence = 1.0

// ErrNoCategory is returned when an accepted entry names no category and has no suggestion.
var ErrNoCategory = errors.New("accepted entry has no category")

// Store is what applying decisions needs from persistence.
type Store interface {
	service.TaxonomyStore
	service.PatternStore
	service.HistoryStore
	service.ProposalStore
}

// approver is implemented by stores that track user approval of categories.
type approver interface {
	ApproveCategory(ctx context.Context, id int64) error
}

// Stats counts what Apply did.
type Stats struct {
	Accepted  int
	Rejected  int
	Approved  int
	Undecided int
}

// Applier writes review decisions back through the store primitives.
type Applier struct {
	store    Store
	tracker  *proposals.Tracker
	logger   *slog.Logger
	validate *validator.Validate
}

// NewApplier creates an Applier over store.
func NewApplier(store Store, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{
		store:    store,
		tracker:  proposals.NewTracker(store),
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Apply validates the whole document first, then applies every decision.
// Accepted transactions and approved proposals become reviewed outcomes and
// learned patterns; rejected and undecided entries change nothing.
//
// Writes are not atomic: categories, patterns and proposal status are
// written per entry before the outcomes are saved, so a storage error can
// leave part of the document applied. Every write is an upsert, so applying
// the same document again completes it without duplicating anything.
func (a *Applier) Apply(ctx context.Context, doc *Document) (Stats, error) {
	var stats Stats
	if err := a.validate.Struct(doc); err != nil {
		return stats, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	var decisions []model.Decision

	for i, entry := range doc.Transactions {
		switch entry.Decision {
		case DecisionAccept:
			d, err := a.acceptTransaction(ctx, entry)
			if err != nil {
				return stats, fmt.Errorf("transaction %d (%s): %w", i, entry.Merchant, err)
			}
			decisions = append(decisions, d)
			stats.Accepted++
		case DecisionReject:
			stats.Rejected++
		default:
			stats.Undecided++
		}
	}

	for _, entry := range doc.Proposals {
		switch entry.Decision {
		case DecisionApprove:
			ds, err := a.approveProposal(ctx, entry)
			if err != nil {
				return stats, fmt.Errorf("proposal %s / %s: %w", entry.Category, entry.Subcategory, err)
			}
			decisions = append(decisions, ds...)
			stats.Approved++
		case DecisionReject:
			stats.Rejected++
		default:
			stats.Undecided++
		}
	}

	if err := a.store.SaveDecisions(ctx, decisions); err != nil {
		return stats, fmt.Errorf("failed to save reviewed decisions: %w", err)
	}

	a.logger.Info("applied review decisions",
		"run_id", doc.RunID,
		"accepted", stats.Accepted,
		"approved", stats.Approved,
		"rejected", stats.Rejected,
		"undecided", stats.Undecided)

	return stats, nil
}

func (a *Applier) acceptTransaction(ctx context.Context, entry TransactionEntry) (model.Decision, error) {
	ref := model.CategoryRef{Category: entry.Category, Subcategory: entry.Subcategory}
	if ref.Category == "" {
		if len(entry.Suggestions) == 0 {
			return model.Decision{}, ErrNoCategory
		}
		ref = model.Suggestions(entry.Suggestions).Best().Ref()
	}

	category, err := a.ensureApproved(ctx, ref, false)
	if err != nil {
		return model.Decision{}, err
	}

	txn, err := entry.transaction()
	if err != nil {
		return model.Decision{}, err
	}
	if err := a.learn(ctx, txn.Merchant, category.ID); err != nil {
		return model.Decision{}, err
	}

	return model.Decision{
		Index:       entry.Index,
		Transaction: txn,
		Suggestions: entry.Suggestions,
		Outcome:     model.Resolved(category.ID, ReviewedConfidence, model.MethodReviewAccepted),
	}, nil
}

func (a *Applier) approveProposal(ctx context.Context, entry ProposalEntry) ([]model.Decision, error) {
	ref := model.CategoryRef{Category: entry.Category, Subcategory: entry.Subcategory}

	category, err := a.ensureApproved(ctx, ref, true)
	if err != nil {
		return nil, err
	}

	record, err := a.tracker.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if record == nil {
		for _, ex := range entry.Examples {
			if _, err := a.tracker.Record(ctx, ref, ex.Amount, ex.Confidence); err != nil {
				return nil, err
			}
		}
		if len(entry.Examples) == 0 {
			if _, err := a.tracker.Record(ctx, ref, 0, entry.MaxConfidence); err != nil {
				return nil, err
			}
		}
	}
	if err := a.tracker.SetStatus(ctx, ref, model.SuggestionApproved); err != nil {
		return nil, err
	}

	decisions := make([]model.Decision, 0, len(entry.Examples))
	for _, ex := range entry.Examples {
		txn, err := ex.transaction()
		if err != nil {
			return nil, err
		}
		if err := a.learn(ctx, txn.Merchant, category.ID); err != nil {
			return nil, err
		}
		decisions = append(decisions, model.Decision{
			Index:       ex.Index,
			Transaction: txn,
			Outcome:     model.Resolved(category.ID, ReviewedConfidence, model.MethodReviewAccepted),
		})
	}
	return decisions, nil
}

// ensureApproved creates ref if needed and marks it user-approved.
func (a *Applier) ensureApproved(ctx context.Context, ref model.CategoryRef, systemGenerated bool) (*model.Category, error) {
	category, err := a.store.CreateCategory(ctx, ref, systemGenerated, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create category %s: %w", ref, err)
	}
	if category.Approved {
		return category, nil
	}

	if ap, ok := a.store.(approver); ok {
		if err := ap.ApproveCategory(ctx, category.ID); err != nil {
			return nil, fmt.Errorf("failed to approve category %s: %w", ref, err)
		}
		category.Approved = true
	}
	return category, nil
}

func (a *Applier) learn(ctx context.Context, merchantName string, categoryID int64) error {
	key := merchant.PatternKey(merchantName)
	if key == "" {
		return nil
	}
	confidence := ReviewedConfidence
	err := a.store.UpsertPattern(ctx, model.MerchantPattern{
		PatternKey: key,
		CategoryID: categoryID,
		Confidence: &confidence,
	})
	if err != nil {
		return fmt.Errorf("failed to learn pattern %q: %w", key, err)
	}
	return nil
}

func (e TransactionEntry) transaction() (model.Transaction, error) {
	date, err := parseDate(e.Date)
	if err != nil {
		return model.Transaction{}, err
	}
	return model.Transaction{
		ID:          e.TransactionID,
		Hash:        e.Hash,
		Date:        date,
		Merchant:    e.Merchant,
		Description: e.Description,
		AccountID:   e.Account,
		Amount:      e.Amount,
	}, nil
}

func (e ExampleEntry) transaction() (model.Transaction, error) {
	date, err := parseDate(e.Date)
	if err != nil {
		return model.Transaction{}, err
	}
	return model.ProposalExample{
		TransactionID: e.TransactionID,
		Hash:          e.Hash,
		Date:          date,
		Merchant:      e.Merchant,
		Description:   e.Description,
		AccountID:     e.Account,
		Amount:        e.Amount,
	}.Transaction(), nil
}
