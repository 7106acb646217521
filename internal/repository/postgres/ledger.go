package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// LedgerStore appends ledger batches and refreshes the cached balances of
// the affected profiles in one SQL transaction. Profile rows are locked in
// ID order first, so concurrent batches on one wallet serialize and each
// refresh sees every committed entry.
type LedgerStore struct {
	db *sql.DB
}

var _ repository.LedgerStore = (*LedgerStore)(nil)

// NewLedgerStore creates a new PostgreSQL ledger store.
func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// AppendAndRefresh appends txs and updates wallet_balance on their profiles.
func (s *LedgerStore) AppendAndRefresh(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	accounts := domain.Accounts(txs)
	for _, id := range accounts {
		var locked string
		err := sqlTx.QueryRowContext(ctx, `SELECT id FROM profiles WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock profile %s: %w", id, err)
		}
	}

	ledger := NewTransactionRepositoryWithTx(sqlTx)
	if err := ledger.AppendBatch(ctx, txs); err != nil {
		return err
	}

	profiles := NewProfileRepositoryWithTx(sqlTx)
	for _, id := range accounts {
		entries, err := ledger.GetByUserID(ctx, id)
		if err != nil {
			return fmt.Errorf("load ledger of %s: %w", id, err)
		}
		if err := profiles.UpdateWalletBalance(ctx, id, domain.Balance(entries)); err != nil {
			return fmt.Errorf("refresh balance of %s: %w", id, err)
		}
	}
	return sqlTx.Commit()
}
