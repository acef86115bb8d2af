package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Decision pairs an input transaction with its outcome.
type Decision struct {
	Transaction Transaction
	Suggestions Suggestions // Ranked candidates that informed the outcome, if any
	Outcome     Outcome
	Index       int
}

// TransactionReview is a review-queue entry for one unresolved transaction.
type TransactionReview struct {
	ID             string
	Reason         string
	MerchantKey    string
	PatternKey     string
	Transaction    Transaction
	Suggestions    Suggestions
	SimilarHistory []CategoryCount
	Index          int
}

// ProposalExample is a transaction supporting a category proposal.
type ProposalExample struct {
	Date          time.Time
	TransactionID string
	Hash          string
	AccountID     string
	Merchant      string
	Description   string
	Amount        float64
	Confidence    float64
	Index         int
}

// Transaction rebuilds the supporting transaction.
func (e ProposalExample) Transaction() Transaction {
	return Transaction{
		ID:          e.TransactionID,
		Hash:        e.Hash,
		Date:        e.Date,
		Merchant:    e.Merchant,
		Description: e.Description,
		AccountID:   e.AccountID,
		Amount:      e.Amount,
	}
}

// CategoryProposal aggregates this run's evidence for a pending new category.
type CategoryProposal struct {
	TotalAmount decimal.Decimal
	ID          string
	CategoryRef
	Examples      []ProposalExample
	SupportCount  int
	MaxConfidence float64
}

// RunStats summarizes a categorization run.
type RunStats struct {
	Total            int
	RulePattern      int
	RuleHistory      int
	LLMAuto          int
	LLMAutoNew       int
	NeedsReview      int
	CacheHits        int
	CacheMisses      int
	MerchantsSent    int
	CategoriesAdded  int
	ProposalsTouched int
}

// Result is everything a categorization run produced.
type Result struct {
	RunID                 string
	Decisions             []Decision
	TransactionReviews    []TransactionReview
	CategoryProposals     []CategoryProposal
	AutoCreatedCategories []CategoryRef
	Stats                 RunStats
}
