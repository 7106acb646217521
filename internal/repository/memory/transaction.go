package memory

import (
	"context"
	"errors"
	"sync"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// TransactionRepository is an in-memory append-only ledger.
type TransactionRepository struct {
	mu     sync.RWMutex
	log    []*domain.Transaction
	byKey  map[string][]int
	byUser map[string][]int
	byRide map[string][]int

	// AppendError, when set, fails every AppendBatch without writing.
	AppendError error
}

var _ repository.TransactionRepository = (*TransactionRepository)(nil)

// NewTransactionRepository creates an empty ledger.
func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		byKey:  make(map[string][]int),
		byUser: make(map[string][]int),
		byRide: make(map[string][]int),
	}
}

func (r *TransactionRepository) AppendBatch(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.AppendError != nil {
		return r.AppendError
	}
	key := txs[0].IdempotencyKey
	for _, tx := range txs {
		if tx.IdempotencyKey != key {
			return errors.New("memory: batch mixes idempotency keys")
		}
	}
	if key != "" {
		if _, ok := r.byKey[key]; ok {
			return repository.ErrDuplicate
		}
	}
	for _, tx := range txs {
		stored := *tx
		idx := len(r.log)
		r.log = append(r.log, &stored)
		if key != "" {
			r.byKey[key] = append(r.byKey[key], idx)
		}
		r.byUser[tx.UserID] = append(r.byUser[tx.UserID], idx)
		if tx.RideID != "" {
			r.byRide[tx.RideID] = append(r.byRide[tx.RideID], idx)
		}
	}
	return nil
}

func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) ([]*domain.Transaction, error) {
	return r.collect(r.byKey, key), nil
}

func (r *TransactionRepository) GetByUserID(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	return r.collect(r.byUser, userID), nil
}

func (r *TransactionRepository) GetByRideID(ctx context.Context, rideID string) ([]*domain.Transaction, error) {
	return r.collect(r.byRide, rideID), nil
}

// Count returns the number of entries in the log.
func (r *TransactionRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.log)
}

func (r *TransactionRepository) collect(index map[string][]int, key string) []*domain.Transaction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	indexes := index[key]
	result := make([]*domain.Transaction, 0, len(indexes))
	for _, idx := range indexes {
		out := *r.log[idx]
		result = append(result, &out)
	}
	return result
}
