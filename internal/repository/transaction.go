package repository

import (
	"context"

	"campusride/internal/domain"
)

// TransactionRepository is the append-only ledger log.
type TransactionRepository interface {
	// AppendBatch appends all entries or none. Entries of one batch share an
	// idempotency key; returns ErrDuplicate if that key was already used.
	AppendBatch(ctx context.Context, txs []*domain.Transaction) error

	// GetByIdempotencyKey retrieves the entries appended under key.
	// Returns an empty slice if the key is unknown.
	GetByIdempotencyKey(ctx context.Context, key string) ([]*domain.Transaction, error)

	// GetByUserID retrieves a user's entries in append order.
	GetByUserID(ctx context.Context, userID string) ([]*domain.Transaction, error)

	// GetByRideID retrieves the entries that reference a ride.
	GetByRideID(ctx context.Context, rideID string) ([]*domain.Transaction, error)
}
