package memory

import (
	"context"
	"sync"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// LedgerStore pairs an in-memory ledger with the profiles whose balances it
// caches. Profiles are never deleted, so once every affected profile is found
// the balance writes cannot fail after the append.
type LedgerStore struct {
	mu       sync.Mutex
	txs      *TransactionRepository
	profiles *ProfileRepository
}

var _ repository.LedgerStore = (*LedgerStore)(nil)

// NewLedgerStore creates a LedgerStore over txs and profiles.
func NewLedgerStore(txs *TransactionRepository, profiles *ProfileRepository) *LedgerStore {
	return &LedgerStore{txs: txs, profiles: profiles}
}

func (s *LedgerStore) AppendAndRefresh(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := domain.Accounts(txs)
	for _, id := range accounts {
		if _, err := s.profiles.GetByID(ctx, id); err != nil {
			return err
		}
	}
	if err := s.txs.AppendBatch(ctx, txs); err != nil {
		return err
	}
	for _, id := range accounts {
		entries, _ := s.txs.GetByUserID(ctx, id)
		if err := s.profiles.UpdateWalletBalance(ctx, id, domain.Balance(entries)); err != nil {
			return err
		}
	}
	return nil
}
