package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Transaction represents a single imported financial transaction.
type Transaction struct {
	Date        time.Time
	ID          string
	Merchant    string // Raw merchant text as exported by the bank
	Description string
	AccountID   string
	Hash        string
	Amount      float64 // Signed; negative for debits
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%.2f:%s:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount,
		t.Merchant,
		t.Description,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
