// Package model defines the core domain models used throughout the application.
package model

// Method tags how an outcome's category was decided.
type Method string

// Categorization methods. The zero value means no assignment happened.
const (
	MethodNone               Method = ""
	MethodRulePattern        Method = "rule:pattern"
	MethodRuleHistory        Method = "rule:history"
	MethodLLMAuto            Method = "llm:auto"
	MethodLLMAutoNewCategory Method = "llm:auto-new-category"
	MethodReviewAccepted     Method = "review:accepted"
)

// Outcome is the categorization decision for one transaction.
// NeedsReview is true exactly when CategoryID is nil; use Resolved and
// Unresolved to build values.
type Outcome struct {
	CategoryID  *int64
	Method      Method
	Confidence  float64
	NeedsReview bool
}

// Resolved builds an outcome that assigns categoryID.
func Resolved(categoryID int64, confidence float64, method Method) Outcome {
	id := categoryID
	return Outcome{
		CategoryID:  &id,
		Confidence:  clamp01(confidence),
		Method:      method,
		NeedsReview: false,
	}
}

// Unresolved builds an outcome with no category that needs human review.
func Unresolved() Outcome {
	return Outcome{NeedsReview: true}
}

// IsResolved reports whether a category was assigned.
func (o Outcome) IsResolved() bool {
	return o.CategoryID != nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
