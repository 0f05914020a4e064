// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// Transaction represents a single financial transaction from any source.
type Transaction struct {
	Date        time.Time
	RawFields   map[string]any
	ID          string
	BatchID     string
	Merchant    string // Counterparty label as reported by the source
	Description string // Raw transaction description
	ParentID    string // Set when this transaction was spawned by a split
	Amount      float64
	IsChild     bool
}

// DeriveID computes the content-addressed identifier for a transaction.
// Identical source fields always produce the same id, which makes
// re-ingestion an upsert rather than a duplicate insert. Any field
// differing produces a different id; there is no fuzzy identity.
func DeriveID(date time.Time, description string, amount float64, counterparty string) string {
	data := fmt.Sprintf("%s|%s|%.2f|%s",
		date.Format("2006-01-02"),
		normalizeField(description),
		amount,
		normalizeField(counterparty))
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// GenerateID derives and assigns the transaction's identifier from its own fields.
func (t *Transaction) GenerateID() string {
	t.ID = DeriveID(t.Date, t.Description, t.Amount, t.Merchant)
	return t.ID
}

// normalizeField trims and collapses internal whitespace so cosmetic
// differences in the source file do not change identity.
func normalizeField(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
