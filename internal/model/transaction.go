// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Transaction represents a single financial transaction from any source.
type Transaction struct {
	Date       time.Time
	ValueDate  *time.Time
	ID         string
	Name       string // Raw merchant/counterparty text
	Purpose    string // Free-text purpose line
	Category   string // Known category, set only on labeled history
	Currency   string
	Amount     float64 // Signed: positive for income, negative for spending
	IsReviewed bool    // True once a human confirmed the category
}

// GenerateID creates a deterministic identity for idempotent storage.
// Two imports of the same transaction always produce the same ID.
func (t *Transaction) GenerateID() string {
	key := fmt.Sprintf("%s|%.2f|%s|%s",
		t.Date.Format("2006-01-02"),
		t.Amount,
		t.Name,
		t.Purpose)
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", hash)[:16]
}

// Identity returns the stored ID, deriving it on demand if unset.
func (t *Transaction) Identity() string {
	if t.ID != "" {
		return t.ID
	}
	return t.GenerateID()
}
