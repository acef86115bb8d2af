package cli

import (
	"fmt"
	"strings"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/review"
)

func row(b *strings.Builder, label string, value any) {
	b.WriteString(LabelStyle.Render(label))
	fmt.Fprintf(b, "%v\n", value)
}

// RenderRunSummary renders the stats of a categorization run.
func RenderRunSummary(result model.Result) string {
	s := result.Stats

	var b strings.Builder
	row(&b, "Transactions", s.Total)
	row(&b, "Matched by pattern", s.RulePattern)
	row(&b, "Matched by history", s.RuleHistory)
	row(&b, "Assigned by model", s.LLMAuto)
	row(&b, "Assigned to new", s.LLMAutoNew)
	row(&b, "Needs review", s.NeedsReview)
	row(&b, "Cache hits/misses", fmt.Sprintf("%d/%d", s.CacheHits, s.CacheMisses))
	row(&b, "Merchants sent", s.MerchantsSent)
	row(&b, "Categories created", s.CategoriesAdded)
	row(&b, "Proposals updated", s.ProposalsTouched)

	for _, ref := range result.AutoCreatedCategories {
		b.WriteString(FormatSuccess("created " + ref.String()))
		b.WriteString("\n")
	}
	for _, p := range result.CategoryProposals {
		b.WriteString(FormatInfo(fmt.Sprintf("proposed %s (%d transactions, confidence %.2f)", p.CategoryRef.String(), p.SupportCount, p.MaxConfidence)))
		b.WriteString("\n")
	}

	return RenderBox("Categorization complete", strings.TrimRight(b.String(), "\n"))
}

// RenderApplySummary renders the outcome of applying a review document.
func RenderApplySummary(stats review.Stats) string {
	var b strings.Builder
	row(&b, "Accepted", stats.Accepted)
	row(&b, "Rejected", stats.Rejected)
	row(&b, "Proposals approved", stats.Approved)
	row(&b, "Undecided", stats.Undecided)
	return RenderBox("Review applied", strings.TrimRight(b.String(), "\n"))
}
