package review

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/saffron/internal/merchant"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/service"
)

// ReasonBacklog marks entries carried over from an earlier run.
const ReasonBacklog = "left for review by an earlier run"

// BacklogSource is the store view ExportBacklog reads from.
type BacklogSource interface {
	service.BacklogStore
	SimilarHistory(ctx context.Context, patternKey string, limit int) ([]model.CategoryCount, error)
	ListCategorySuggestions(ctx context.Context, status model.SuggestionStatus) ([]model.CategorySuggestionRecord, error)
}

// ExportBacklog builds a document from stored state rather than a run:
// every persisted transaction still needing review and every pending
// category proposal. Proposal entries carry no examples.
func ExportBacklog(ctx context.Context, src BacklogSource, similarLimit int, now time.Time) (*Document, error) {
	txns, err := src.ReviewBacklog(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load review backlog: %w", err)
	}
	pending, err := src.ListCategorySuggestions(ctx, model.SuggestionPending)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending proposals: %w", err)
	}

	doc := &Document{
		GeneratedAt:  now.UTC(),
		Transactions: make([]TransactionEntry, 0, len(txns)),
		Proposals:    make([]ProposalEntry, 0, len(pending)),
	}

	for i, txn := range txns {
		key := merchant.PatternKey(txn.Merchant)
		similar, err := src.SimilarHistory(ctx, key, similarLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load similar history for %s: %w", key, err)
		}

		doc.Transactions = append(doc.Transactions, TransactionEntry{
			ID:             txn.ID,
			Index:          i,
			TransactionID:  txn.ID,
			Hash:           txn.Hash,
			Date:           formatDate(txn.Date),
			Merchant:       txn.Merchant,
			Description:    txn.Description,
			Account:        txn.AccountID,
			Amount:         txn.Amount,
			MerchantKey:    merchant.Normalize(txn.Merchant),
			PatternKey:     key,
			Reason:         ReasonBacklog,
			SimilarHistory: similar,
		})
	}

	for _, rec := range pending {
		doc.Proposals = append(doc.Proposals, ProposalEntry{
			ID:            rec.CategoryRef.String(),
			Category:      rec.Category,
			Subcategory:   rec.Subcategory,
			SupportCount:  rec.SupportCount,
			TotalAmount:   rec.TotalAmount.StringFixed(2),
			MaxConfidence: rec.MaxConfidence,
		})
	}

	return doc, nil
}
