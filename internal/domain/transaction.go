package domain

import (
	"slices"
	"time"
)

// TransactionType is the direction of a ledger entry.
type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

// Transaction is an immutable ledger entry.
//
// IdempotencyKey groups the entries appended by one ledger operation: a fare
// transfer writes a debit and a credit under the same key. ReversesKey is set on
// refund entries and names the key of the transfer they reverse.
type Transaction struct {
	ID             string
	UserID         string
	Type           TransactionType
	Amount         int64
	RideID         string
	IdempotencyKey string
	ReversesKey    string
	Description    string
	CreatedAt      time.Time
}

// Signed returns the amount with its ledger sign: credits add, debits subtract.
func (t *Transaction) Signed() int64 {
	if t.Type == TransactionTypeDebit {
		return -t.Amount
	}
	return t.Amount
}

// Balance sums the signed amounts of txs.
func Balance(txs []*Transaction) int64 {
	var total int64
	for _, tx := range txs {
		total += tx.Signed()
	}
	return total
}

// Accounts returns the distinct user IDs that txs touch, sorted.
func Accounts(txs []*Transaction) []string {
	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.UserID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
