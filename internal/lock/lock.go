// Package lock provides short-lived exclusive sections keyed by entity.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker grants exclusive, expiring ownership of a key.
// Acquire never blocks: it returns ok=false when another owner holds the key.
// The token names this hold; Release is a no-op unless the token still owns
// the key, so a holder whose TTL ran out cannot free its successor's lock.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// Key prefixes for the sections the services guard.
const (
	RidePrefix   = "lock:ride:"
	WalletPrefix = "lock:wallet:"
	TrustPrefix  = "lock:trust:"
)

// LocalLocker is an in-process Locker. Holds expire after their TTL so a
// crashed owner cannot wedge a key forever.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]hold
	now   func() time.Time
}

type hold struct {
	token  string
	expiry time.Time
}

var _ Locker = (*LocalLocker)(nil)

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		locks: make(map[string]hold),
		now:   time.Now,
	}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, held := l.locks[key]; held && now.Before(h.expiry) {
		return "", false, nil
	}
	token := uuid.New().String()
	l.locks[key] = hold{token: token, expiry: now.Add(ttl)}
	return token, true, nil
}

func (l *LocalLocker) Release(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, held := l.locks[key]; held && h.token == token {
		delete(l.locks, key)
	}
	return nil
}

// Held reports whether key is currently locked.
func (l *LocalLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, held := l.locks[key]
	return held && l.now().Before(h.expiry)
}
