package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"campusride/internal/lock"
)

// Backoff bounds how often a contended section is retried.
type Backoff struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultBackoff is five attempts starting at 10ms.
var DefaultBackoff = Backoff{Attempts: 5, BaseDelay: 10 * time.Millisecond}

func (b Backoff) attempts() int {
	if b.Attempts < 1 {
		return 1
	}
	return b.Attempts
}

// delay returns the jittered wait before the given retry (1-based):
// uniformly random in [d/2, d) where d = base * 2^(retry-1).
func (b Backoff) delay(retry int) time.Duration {
	if b.BaseDelay <= 0 {
		return 0
	}
	d := b.BaseDelay << (retry - 1)
	half := d / 2
	return half + rand.N(d-half)
}

// retryContention runs fn until it returns something other than ErrContention
// or the attempts run out, sleeping between tries. The last error is returned.
func retryContention(ctx context.Context, b Backoff, fn func() error) error {
	var err error
	for attempt := 0; attempt < b.attempts(); attempt++ {
		if attempt > 0 {
			t := time.NewTimer(b.delay(attempt))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		err = fn()
		if !errors.Is(err, ErrContention) {
			return err
		}
	}
	return err
}

// acquireAll takes every key or none. Keys are locked in the order given;
// callers pass them sorted so two overlapping sets cannot starve each other.
func acquireAll(ctx context.Context, l lock.Locker, ttl time.Duration, keys ...string) (acquired bool, release func(), err error) {
	type heldKey struct{ key, token string }
	held := make([]heldKey, 0, len(keys))
	release = func() {
		// Release with a fresh context so a cancelled request still frees its keys.
		rctx := context.WithoutCancel(ctx)
		for i := len(held) - 1; i >= 0; i-- {
			_ = l.Release(rctx, held[i].key, held[i].token)
		}
	}

	for _, key := range keys {
		token, ok, err := l.Acquire(ctx, key, ttl)
		if err != nil || !ok {
			release()
			return false, func() {}, err
		}
		held = append(held, heldKey{key: key, token: token})
	}
	return true, release, nil
}
