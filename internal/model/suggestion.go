package model

import "sort"

// Suggestion is one category candidate proposed by the advisory model.
type Suggestion struct {
	Category      string  `json:"category" yaml:"category"`
	Subcategory   string  `json:"subcategory" yaml:"subcategory"`
	Notes         string  `json:"notes,omitempty" yaml:"notes,omitempty"`
	Confidence    float64 `json:"confidence" yaml:"confidence"`
	IsNewCategory bool    `json:"is_new_category" yaml:"is_new_category"`
}

// Ref returns the suggested (category, subcategory) pair.
func (s Suggestion) Ref() CategoryRef {
	return CategoryRef{Category: s.Category, Subcategory: s.Subcategory}
}

// Suggestions is an ordered list of candidates.
type Suggestions []Suggestion

// Ranked returns a copy sorted by confidence, highest first. Ties keep input order.
func (s Suggestions) Ranked() Suggestions {
	ranked := make(Suggestions, len(s))
	copy(ranked, s)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})
	return ranked
}

// Best returns the highest-confidence suggestion, or nil if empty.
func (s Suggestions) Best() *Suggestion {
	if len(s) == 0 {
		return nil
	}
	ranked := s.Ranked()
	return &ranked[0]
}

// SuggestionResult is the advisory model's answer for one merchant.
type SuggestionResult struct {
	Metadata       map[string]any `json:"metadata,omitempty"`
	MerchantKey    string         `json:"merchant_normalized"`
	PatternKey     string         `json:"pattern_key,omitempty"`
	PatternDisplay string         `json:"pattern_display,omitempty"`
	Suggestions    Suggestions    `json:"suggestions"`
}

// RequestItem is a single transaction sent to the advisory model as context.
type RequestItem struct {
	Merchant    string  `json:"merchant"`
	Description string  `json:"original_description"`
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
}
