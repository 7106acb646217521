package repository

import (
	"context"

	"campusride/internal/domain"
)

// LedgerStore writes a ledger batch together with the wallet balance cached
// on every profile the batch touches. Both land or neither does.
type LedgerStore interface {
	// AppendAndRefresh appends txs with the rules of
	// TransactionRepository.AppendBatch and sets each affected profile's
	// wallet balance to the sum of its entries. Returns ErrDuplicate if the
	// batch key was already used and ErrNotFound if a profile is missing.
	AppendAndRefresh(ctx context.Context, txs []*domain.Transaction) error
}
