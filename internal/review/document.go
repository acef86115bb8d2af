// Package review turns a run's review queue into an editable YAML document
// and applies the decisions written into it.
package review

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/saffron/internal/model"
)

// Decisions a reviewer can write into a document.
const (
	DecisionAccept  = "accept"
	DecisionReject  = "reject"
	DecisionApprove = "approve"
)

const dateLayout = "2006-01-02"

// Document is the serialized review queue.
type Document struct {
	GeneratedAt  time.Time          `yaml:"generated_at"`
	RunID        string             `yaml:"run_id"`
	Transactions []TransactionEntry `yaml:"transactions" validate:"dive"`
	Proposals    []ProposalEntry    `yaml:"proposals" validate:"dive"`
}

// TransactionEntry is one unresolved transaction. Setting Decision to
// "accept" assigns Category/Subcategory when given, else the top suggestion.
type TransactionEntry struct {
	ID             string                `yaml:"id"`
	TransactionID  string                `yaml:"transaction_id,omitempty"`
	Hash           string                `yaml:"hash,omitempty"`
	Date           string                `yaml:"date"`
	Merchant       string                `yaml:"merchant" validate:"required"`
	Description    string                `yaml:"description,omitempty"`
	Account        string                `yaml:"account,omitempty"`
	MerchantKey    string                `yaml:"merchant_key"`
	PatternKey     string                `yaml:"pattern_key"`
	Reason         string                `yaml:"reason"`
	Decision       string                `yaml:"decision" validate:"omitempty,oneof=accept reject"`
	Category       string                `yaml:"category,omitempty" validate:"required_with=Subcategory"`
	Subcategory    string                `yaml:"subcategory,omitempty" validate:"required_with=Category"`
	Suggestions    []model.Suggestion    `yaml:"suggestions,omitempty"`
	SimilarHistory []model.CategoryCount `yaml:"similar_history,omitempty"`
	Amount         float64               `yaml:"amount"`
	Index          int                   `yaml:"index"`
}

// ProposalEntry is one pending new category.
type ProposalEntry struct {
	ID            string         `yaml:"id"`
	Category      string         `yaml:"category" validate:"required"`
	Subcategory   string         `yaml:"subcategory" validate:"required"`
	TotalAmount   string         `yaml:"total_amount"`
	Decision      string         `yaml:"decision" validate:"omitempty,oneof=approve reject"`
	Examples      []ExampleEntry `yaml:"examples"`
	SupportCount  int            `yaml:"support_count"`
	MaxConfidence float64        `yaml:"max_confidence"`
}

// ExampleEntry is a transaction supporting a proposal.
type ExampleEntry struct {
	TransactionID string  `yaml:"transaction_id,omitempty"`
	Hash          string  `yaml:"hash,omitempty"`
	Date          string  `yaml:"date"`
	Merchant      string  `yaml:"merchant"`
	Description   string  `yaml:"description,omitempty"`
	Account       string  `yaml:"account,omitempty"`
	Amount        float64 `yaml:"amount"`
	Confidence    float64 `yaml:"confidence"`
	Index         int     `yaml:"index"`
}

// Export builds an undecided document from a run result.
func Export(result *model.Result, now time.Time) *Document {
	doc := &Document{
		RunID:        result.RunID,
		GeneratedAt:  now.UTC(),
		Transactions: make([]TransactionEntry, 0, len(result.TransactionReviews)),
		Proposals:    make([]ProposalEntry, 0, len(result.CategoryProposals)),
	}

	for _, r := range result.TransactionReviews {
		doc.Transactions = append(doc.Transactions, TransactionEntry{
			ID:             r.ID,
			Index:          r.Index,
			TransactionID:  r.Transaction.ID,
			Hash:           r.Transaction.Hash,
			Date:           formatDate(r.Transaction.Date),
			Merchant:       r.Transaction.Merchant,
			Description:    r.Transaction.Description,
			Account:        r.Transaction.AccountID,
			Amount:         r.Transaction.Amount,
			MerchantKey:    r.MerchantKey,
			PatternKey:     r.PatternKey,
			Reason:         r.Reason,
			Suggestions:    r.Suggestions,
			SimilarHistory: r.SimilarHistory,
		})
	}

	for _, p := range result.CategoryProposals {
		entry := ProposalEntry{
			ID:            p.ID,
			Category:      p.Category,
			Subcategory:   p.Subcategory,
			SupportCount:  p.SupportCount,
			TotalAmount:   p.TotalAmount.StringFixed(2),
			MaxConfidence: p.MaxConfidence,
		}
		for _, ex := range p.Examples {
			entry.Examples = append(entry.Examples, ExampleEntry{
				Index:         ex.Index,
				TransactionID: ex.TransactionID,
				Hash:          ex.Hash,
				Date:          formatDate(ex.Date),
				Merchant:      ex.Merchant,
				Description:   ex.Description,
				Account:       ex.AccountID,
				Amount:        ex.Amount,
				Confidence:    ex.Confidence,
			})
		}
		doc.Proposals = append(doc.Proposals, entry)
	}

	return doc
}

// Write encodes doc as YAML.
func Write(w io.Writer, doc *Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode review document: %w", err)
	}
	return enc.Close()
}

// Read decodes a YAML document.
func Read(r io.Reader) (*Document, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode review document: %w", err)
	}
	return &doc, nil
}

// WriteFile writes doc to path, creating parent directories.
func WriteFile(path string, doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	f, err := os.Create(filepath.Clean(path)) // #nosec G304 -- user-supplied output path
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(f, doc); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadFile reads a document from path.
func ReadFile(path string) (*Document, error) {
	f, err := os.Open(filepath.Clean(path)) // #nosec G304 -- user-supplied input path
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
