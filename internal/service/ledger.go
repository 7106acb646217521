package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"campusride/internal/domain"
	"campusride/internal/events"
	"campusride/internal/lock"
	"campusride/internal/logging"
	"campusride/internal/metrics"
	"campusride/internal/repository"
)

const (
	refundKeyPrefix = "refund:"
	walletLockTTL   = 5 * time.Second

	descriptionFare   = "Ride fare"
	descriptionRefund = "Refund for cancelled ride"
	descriptionTopUp  = "Wallet top-up"
)

// WalletLedger appends monetary transactions and derives balances from them.
// Every write locks the wallets it touches, so balance checks and appends on
// one account never interleave while unrelated accounts proceed in parallel.
type WalletLedger struct {
	txs       repository.TransactionRepository
	store     repository.LedgerStore
	profiles  repository.ProfileRepository
	locker    lock.Locker
	publisher events.Publisher
	logger    *zap.Logger
	backoff   Backoff
	now       func() time.Time
}

// NewWalletLedger creates a new WalletLedger.
func NewWalletLedger(
	txs repository.TransactionRepository,
	store repository.LedgerStore,
	profiles repository.ProfileRepository,
	locker lock.Locker,
	publisher events.Publisher,
	logger *zap.Logger,
	backoff Backoff,
) *WalletLedger {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &WalletLedger{
		txs:       txs,
		store:     store,
		profiles:  profiles,
		locker:    locker,
		publisher: publisher,
		logger:    logging.OrNop(logger),
		backoff:   backoff,
		now:       time.Now,
	}
}

// TransferFare moves amount from payer to payee as one debit/credit pair
// recorded under idempotencyKey. Repeating a key returns the entries written
// the first time and appends nothing.
func (l *WalletLedger) TransferFare(ctx context.Context, fromUserID, toUserID string, amount int64, rideID, idempotencyKey string) ([]*domain.Transaction, error) {
	const op = "transfer fare"

	if fromUserID == "" || toUserID == "" {
		return nil, validationError(op, "transaction", "payer and payee are required")
	}
	if fromUserID == toUserID {
		return nil, validationError(op, "transaction", "payer and payee must differ")
	}
	if amount <= 0 {
		return nil, validationError(op, "transaction", "amount must be greater than zero")
	}
	if idempotencyKey == "" {
		return nil, validationError(op, "transaction", "idempotency key is required")
	}

	if existing, err := l.replay(ctx, op, idempotencyKey, fromUserID, toUserID, amount); existing != nil || err != nil {
		return existing, err
	}

	for _, id := range []string{fromUserID, toUserID} {
		if _, err := l.profiles.GetByID(ctx, id); err != nil {
			return nil, wrapStore(op, "profile", id, err)
		}
	}

	var written []*domain.Transaction
	err := l.withWallets(ctx, op, func() error {
		// Re-check under the lock: a concurrent retry may have landed first.
		existing, err := l.replay(ctx, op, idempotencyKey, fromUserID, toUserID, amount)
		if existing != nil || err != nil {
			written = existing
			return err
		}

		balance, err := l.balance(ctx, fromUserID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if balance < amount {
			return newError(ErrInsufficientBalance, op, "profile", fromUserID,
				fmt.Sprintf("balance %d is less than fare %d", balance, amount))
		}

		pair := l.pair(fromUserID, toUserID, amount, rideID, idempotencyKey, "", descriptionFare)
		if err := l.store.AppendAndRefresh(ctx, pair); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				written, err = l.txs.GetByIdempotencyKey(ctx, idempotencyKey)
				return err
			}
			return fmt.Errorf("%s: append: %w", op, err)
		}
		written = pair
		return nil
	}, fromUserID, toUserID)
	if err != nil {
		metrics.LedgerTransfers.WithLabelValues("fare", "failed").Inc()
		return nil, err
	}

	metrics.LedgerTransfers.WithLabelValues("fare", "ok").Inc()
	metrics.LedgerAmount.Add(float64(amount))
	l.logger.Info("fare settled",
		zap.String("from_user_id", fromUserID),
		zap.String("to_user_id", toUserID),
		zap.Int64("amount", amount),
		zap.String("ride_id", rideID),
		zap.String("idempotency_key", idempotencyKey),
	)
	l.publish(ctx, events.New(events.FareSettled, idempotencyKey, map[string]any{
		"from_user_id": fromUserID,
		"to_user_id":   toUserID,
		"amount":       amount,
		"ride_id":      rideID,
	}))

	return written, nil
}

// replay returns the entries already recorded under key, or nil if none.
// A key reused for a different transfer is rejected.
func (l *WalletLedger) replay(ctx context.Context, op, key, fromUserID, toUserID string, amount int64) ([]*domain.Transaction, error) {
	existing, err := l.txs.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%s: lookup key %s: %w", op, key, err)
	}
	if len(existing) == 0 {
		return nil, nil
	}

	from, to, amt := pairParties(existing)
	if from != fromUserID || to != toUserID || amt != amount {
		return nil, newError(ErrValidation, op, "transaction", key, "idempotency key was already used for a different transfer")
	}
	return existing, nil
}

// Refund appends the inverse of the pair recorded under originalKey. It is
// idempotent: a second refund of the same key returns the first refund.
//
// A refund is a compensation and always lands, even if it takes the original
// payee below zero.
func (l *WalletLedger) Refund(ctx context.Context, originalKey string) ([]*domain.Transaction, error) {
	const op = "refund"

	if originalKey == "" {
		return nil, validationError(op, "transaction", "idempotency key is required")
	}

	original, err := l.txs.GetByIdempotencyKey(ctx, originalKey)
	if err != nil {
		return nil, fmt.Errorf("%s: lookup key %s: %w", op, originalKey, err)
	}
	if len(original) == 0 {
		return nil, notFound(op, "transaction", originalKey)
	}

	payer, payee, amount := pairParties(original)
	if payer == "" || payee == "" {
		return nil, newError(ErrValidation, op, "transaction", originalKey, "only fare transfers can be refunded")
	}

	refundKey := refundKeyPrefix + originalKey
	var written []*domain.Transaction
	err = l.withWallets(ctx, op, func() error {
		existing, err := l.txs.GetByIdempotencyKey(ctx, refundKey)
		if err != nil {
			return fmt.Errorf("%s: lookup key %s: %w", op, refundKey, err)
		}
		if len(existing) > 0 {
			written = existing
			return nil
		}

		balance, err := l.balance(ctx, payee)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if balance < amount {
			l.logger.Warn("refund overdraws payee",
				zap.String("user_id", payee),
				zap.Int64("balance", balance),
				zap.Int64("amount", amount),
			)
		}

		pair := l.pair(payee, payer, amount, original[0].RideID, refundKey, originalKey, descriptionRefund)
		if err := l.store.AppendAndRefresh(ctx, pair); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				written, err = l.txs.GetByIdempotencyKey(ctx, refundKey)
				return err
			}
			return fmt.Errorf("%s: append: %w", op, err)
		}
		written = pair
		return nil
	}, payer, payee)
	if err != nil {
		metrics.LedgerTransfers.WithLabelValues("refund", "failed").Inc()
		return nil, err
	}

	metrics.LedgerTransfers.WithLabelValues("refund", "ok").Inc()
	l.logger.Info("fare refunded",
		zap.String("idempotency_key", originalKey),
		zap.String("to_user_id", payer),
		zap.Int64("amount", amount),
	)
	l.publish(ctx, events.New(events.FareRefunded, originalKey, map[string]any{
		"to_user_id":   payer,
		"from_user_id": payee,
		"amount":       amount,
		"ride_id":      original[0].RideID,
	}))

	return written, nil
}

// TopUp credits a wallet. An empty idempotencyKey gets a generated one, so
// only callers that supply a key are protected against double credit.
func (l *WalletLedger) TopUp(ctx context.Context, userID string, amount int64, idempotencyKey string) (*domain.Transaction, error) {
	const op = "top up"

	if userID == "" {
		return nil, validationError(op, "transaction", "user id is required")
	}
	if amount <= 0 {
		return nil, validationError(op, "transaction", "amount must be greater than zero")
	}
	if _, err := l.profiles.GetByID(ctx, userID); err != nil {
		return nil, wrapStore(op, "profile", userID, err)
	}
	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}
	key := "topup:" + userID + ":" + idempotencyKey

	var written *domain.Transaction
	err := l.withWallets(ctx, op, func() error {
		existing, err := l.txs.GetByIdempotencyKey(ctx, key)
		if err != nil {
			return fmt.Errorf("%s: lookup key %s: %w", op, key, err)
		}
		if len(existing) > 0 {
			written = existing[0]
			return nil
		}

		tx := &domain.Transaction{
			ID:             uuid.New().String(),
			UserID:         userID,
			Type:           domain.TransactionTypeCredit,
			Amount:         amount,
			IdempotencyKey: key,
			Description:    descriptionTopUp,
			CreatedAt:      l.now(),
		}
		if err := l.store.AppendAndRefresh(ctx, []*domain.Transaction{tx}); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				existing, err := l.txs.GetByIdempotencyKey(ctx, key)
				if err == nil && len(existing) > 0 {
					written = existing[0]
				}
				return err
			}
			return fmt.Errorf("%s: append: %w", op, err)
		}
		written = tx
		return nil
	}, userID)
	if err != nil {
		metrics.LedgerTransfers.WithLabelValues("top_up", "failed").Inc()
		return nil, err
	}

	metrics.LedgerTransfers.WithLabelValues("top_up", "ok").Inc()
	l.publish(ctx, events.New(events.WalletToppedUp, userID, map[string]any{"amount": amount}))

	return written, nil
}

// Balance returns the authoritative balance of a user: the signed sum of
// their ledger entries.
func (l *WalletLedger) Balance(ctx context.Context, userID string) (int64, error) {
	if _, err := l.profiles.GetByID(ctx, userID); err != nil {
		return 0, wrapStore("balance", "profile", userID, err)
	}
	return l.balance(ctx, userID)
}

// Transactions returns a user's ledger entries in append order.
func (l *WalletLedger) Transactions(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	if _, err := l.profiles.GetByID(ctx, userID); err != nil {
		return nil, wrapStore("list transactions", "profile", userID, err)
	}
	return l.txs.GetByUserID(ctx, userID)
}

func (l *WalletLedger) balance(ctx context.Context, userID string) (int64, error) {
	txs, err := l.txs.GetByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load ledger of %s: %w", userID, err)
	}
	return domain.Balance(txs), nil
}

// withWallets runs fn while holding the wallet locks of every user,
// retrying with backoff while any of them is busy.
func (l *WalletLedger) withWallets(ctx context.Context, op string, fn func() error, userIDs ...string) error {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, lock.WalletPrefix+id)
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	return retryContention(ctx, l.backoff, func() error {
		ok, release, err := acquireAll(ctx, l.locker, walletLockTTL, keys...)
		if err != nil {
			return fmt.Errorf("%s: lock wallets: %w", op, err)
		}
		if !ok {
			return newError(ErrContention, op, "wallet", userIDs[0], "wallet is busy")
		}
		defer release()
		return fn()
	})
}

func (l *WalletLedger) pair(fromUserID, toUserID string, amount int64, rideID, key, reverses, description string) []*domain.Transaction {
	now := l.now()
	return []*domain.Transaction{
		{
			ID:             uuid.New().String(),
			UserID:         fromUserID,
			Type:           domain.TransactionTypeDebit,
			Amount:         amount,
			RideID:         rideID,
			IdempotencyKey: key,
			ReversesKey:    reverses,
			Description:    description,
			CreatedAt:      now,
		},
		{
			ID:             uuid.New().String(),
			UserID:         toUserID,
			Type:           domain.TransactionTypeCredit,
			Amount:         amount,
			RideID:         rideID,
			IdempotencyKey: key,
			ReversesKey:    reverses,
			Description:    description,
			CreatedAt:      now,
		},
	}
}

// pairParties extracts payer, payee and amount from a debit/credit pair.
func pairParties(txs []*domain.Transaction) (payer, payee string, amount int64) {
	for _, tx := range txs {
		switch tx.Type {
		case domain.TransactionTypeDebit:
			payer = tx.UserID
			amount = tx.Amount
		case domain.TransactionTypeCredit:
			payee = tx.UserID
		}
	}
	return payer, payee, amount
}

func (l *WalletLedger) publish(ctx context.Context, e events.Event) {
	if err := l.publisher.Publish(ctx, e); err != nil {
		l.logger.Warn("publish event", zap.String("type", string(e.Type)), zap.Error(err))
	}
}
