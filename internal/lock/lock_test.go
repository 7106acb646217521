package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalLocker_SecondAcquireFails(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	_, ok, err := l.Acquire(ctx, RidePrefix+"r1", time.Second)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	_, ok, err = l.Acquire(ctx, RidePrefix+"r1", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second acquire to fail while held")
	}

	// Unrelated keys stay independent.
	_, ok, _ = l.Acquire(ctx, RidePrefix+"r2", time.Second)
	if !ok {
		t.Error("expected lock on another key to succeed")
	}
}

func TestLocalLocker_ReleaseAllowsReacquire(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	token, _, _ := l.Acquire(ctx, "k", time.Second)
	if err := l.Release(ctx, "k", token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if l.Held("k") {
		t.Error("expected key to be free after release")
	}
	if _, ok, _ := l.Acquire(ctx, "k", time.Second); !ok {
		t.Error("expected reacquire to succeed")
	}
}

func TestLocalLocker_ExpiredHoldIsReclaimed(t *testing.T) {
	l := NewLocalLocker()
	current := time.Now()
	l.now = func() time.Time { return current }
	ctx := context.Background()

	_, _, _ = l.Acquire(ctx, "k", 10*time.Millisecond)
	current = current.Add(20 * time.Millisecond)

	if _, ok, _ := l.Acquire(ctx, "k", time.Second); !ok {
		t.Error("expected expired hold to be reclaimed")
	}
}

func TestLocalLocker_StaleReleaseKeepsNewerHold(t *testing.T) {
	l := NewLocalLocker()
	current := time.Now()
	l.now = func() time.Time { return current }
	ctx := context.Background()

	first, ok, _ := l.Acquire(ctx, "k", 5*time.Millisecond)
	if !ok {
		t.Fatal("first acquire failed")
	}
	current = current.Add(10 * time.Millisecond)

	second, ok, _ := l.Acquire(ctx, "k", time.Minute)
	if !ok {
		t.Fatal("second acquire after expiry failed")
	}
	if first == second {
		t.Fatal("expected distinct tokens per hold")
	}

	// The first holder finishes late and releases with its stale token.
	if err := l.Release(ctx, "k", first); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := l.Acquire(ctx, "k", time.Minute); ok {
		t.Error("third acquire succeeded while the second hold is live")
	}

	if err := l.Release(ctx, "k", second); err != nil {
		t.Fatalf("release: %v", err)
	}
	if l.Held("k") {
		t.Error("expected key to be free after its owner released")
	}
}

func TestLocalLocker_CancelledContext(t *testing.T) {
	l := NewLocalLocker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := l.Acquire(ctx, "k", time.Second); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestLocalLocker_ExclusiveUnderConcurrency(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := l.Acquire(ctx, "k", time.Minute); ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly 1 winner, got %d", winners)
	}
}
