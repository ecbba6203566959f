package model

import (
	"encoding/json"
	"time"
)

const (
	TransactionTypePurchase   = "purchase"
	TransactionTypeRedemption = "redemption"
	TransactionTypeAdjustment = "adjustment"
	TransactionTypeRefund     = "refund"
)

// CreditTransaction is one immutable entry in an account's ledger log.
// Amount is signed in credits; a negative amount is a debit. BalanceAfter is
// the account balance at the moment the entry committed, written in the same
// database transaction as the balance update.
type CreditTransaction struct {
	ID            int64                  `json:"-"`
	TransactionID string                 `json:"transaction_id"`
	AccountID     string                 `json:"account_id"`
	Amount        int64                  `json:"amount"`
	Type          string                 `json:"type"`
	Description   string                 `json:"description"`
	Reference     string                 `json:"reference"`
	BalanceAfter  int64                  `json:"balance_after"`
	CreatedAt     time.Time              `json:"created_at"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
}

func (t *CreditTransaction) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

// IsDebit reports whether this entry reduced the balance.
func (t *CreditTransaction) IsDebit() bool {
	return t.Amount < 0
}

// ValidTransactionType reports whether the given type is one of the four
// recorded ledger entry types.
func ValidTransactionType(t string) bool {
	switch t {
	case TransactionTypePurchase, TransactionTypeRedemption, TransactionTypeAdjustment, TransactionTypeRefund:
		return true
	}
	return false
}
