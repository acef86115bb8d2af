package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SuggestionStatus is the approval state of a proposed taxonomy entry.
type SuggestionStatus string

// Suggestion statuses. Status only advances away from pending.
const (
	SuggestionPending      SuggestionStatus = "pending"
	SuggestionAutoApproved SuggestionStatus = "auto-approved"
	SuggestionApproved     SuggestionStatus = "approved"
)

// ParseSuggestionStatus validates a status string.
func ParseSuggestionStatus(s string) (SuggestionStatus, error) {
	switch SuggestionStatus(s) {
	case SuggestionPending, SuggestionAutoApproved, SuggestionApproved:
		return SuggestionStatus(s), nil
	default:
		return "", fmt.Errorf("unknown suggestion status %q", s)
	}
}

// IsApproved reports whether the proposal has left the pending state.
func (s SuggestionStatus) IsApproved() bool {
	return s == SuggestionAutoApproved || s == SuggestionApproved
}

// CategorySuggestionRecord accumulates evidence for a proposed category.
type CategorySuggestionRecord struct {
	FirstSeen   time.Time
	LastSeen    time.Time
	TotalAmount decimal.Decimal
	Status      SuggestionStatus
	CategoryRef
	SupportCount  int
	MaxConfidence float64
}
