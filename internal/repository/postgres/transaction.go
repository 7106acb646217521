package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

const transactionColumns = `id, user_id, type, amount, ride_id, idempotency_key, reverses_key, description, created_at`

// TransactionRepository is a PostgreSQL implementation of repository.TransactionRepository.
// Each batch claims its idempotency key in ledger_batches before any entry is
// written, so a replayed batch fails as a whole.
type TransactionRepository struct {
	db *sql.DB
	q  Querier
}

var _ repository.TransactionRepository = (*TransactionRepository)(nil)

// NewTransactionRepository creates a new PostgreSQL transaction repository.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db, q: db}
}

// NewTransactionRepositoryWithTx creates a transaction repository that appends
// inside a caller-owned transaction.
func NewTransactionRepositoryWithTx(tx *sql.Tx) *TransactionRepository {
	return &TransactionRepository{q: tx}
}

// AppendBatch appends all entries or none.
func (r *TransactionRepository) AppendBatch(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	key := txs[0].IdempotencyKey
	for _, tx := range txs[1:] {
		if tx.IdempotencyKey != key {
			return fmt.Errorf("append batch: mixed idempotency keys %q and %q", key, tx.IdempotencyKey)
		}
	}

	if r.db == nil {
		return appendBatch(ctx, r.q, key, txs)
	}

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := appendBatch(ctx, sqlTx, key, txs); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func appendBatch(ctx context.Context, q Querier, key string, txs []*domain.Transaction) error {
	_, err := q.ExecContext(ctx, `INSERT INTO ledger_batches (idempotency_key) VALUES ($1)`, key)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	if err != nil {
		return err
	}

	query := `INSERT INTO transactions (` + transactionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, tx := range txs {
		_, err := q.ExecContext(ctx, query,
			tx.ID,
			tx.UserID,
			tx.Type,
			tx.Amount,
			nullString(tx.RideID),
			tx.IdempotencyKey,
			nullString(tx.ReversesKey),
			tx.Description,
			tx.CreatedAt,
		)
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// GetByIdempotencyKey retrieves the entries appended under key.
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) ([]*domain.Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = $1 ORDER BY seq`, key)
}

// GetByUserID retrieves a user's entries in append order.
func (r *TransactionRepository) GetByUserID(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 ORDER BY seq`, userID)
}

// GetByRideID retrieves the entries that reference a ride.
func (r *TransactionRepository) GetByRideID(ctx context.Context, rideID string) ([]*domain.Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE ride_id = $1 ORDER BY seq`, rideID)
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := []*domain.Transaction{}
	for rows.Next() {
		var tx domain.Transaction
		var rideID, reversesKey sql.NullString
		err := rows.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.Type,
			&tx.Amount,
			&rideID,
			&tx.IdempotencyKey,
			&reversesKey,
			&tx.Description,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		tx.RideID = rideID.String
		tx.ReversesKey = reversesKey.String
		txs = append(txs, &tx)
	}
	return txs, rows.Err()
}
