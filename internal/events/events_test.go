package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func TestBus_DeliversInOrder(t *testing.T) {
	bus := NewBus()
	var got []string

	bus.Subscribe(RideCancelled, func(ctx context.Context, e Event) error {
		got = append(got, "first")
		return nil
	})
	bus.Subscribe(RideCancelled, func(ctx context.Context, e Event) error {
		got = append(got, "second")
		return nil
	})
	bus.SubscribeAll(func(ctx context.Context, e Event) error {
		got = append(got, "all")
		return nil
	})
	bus.Subscribe(BookingRequested, func(ctx context.Context, e Event) error {
		t.Error("handler for another type should not run")
		return nil
	})

	if err := bus.Publish(context.Background(), New(RideCancelled, "ride-1", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"first", "second", "all"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
		}
	}
}

func TestBus_JoinsHandlerErrors(t *testing.T) {
	bus := NewBus()
	errA := errors.New("a failed")
	ran := false

	bus.Subscribe(RideCancelled, func(ctx context.Context, e Event) error { return errA })
	bus.Subscribe(RideCancelled, func(ctx context.Context, e Event) error {
		ran = true
		return nil
	})

	err := bus.Publish(context.Background(), New(RideCancelled, "ride-1", nil))
	if !errors.Is(err, errA) {
		t.Errorf("expected joined error to contain errA, got %v", err)
	}
	if !ran {
		t.Error("expected later handler to run after a failure")
	}
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaForwarder_WritesKeyedMessage(t *testing.T) {
	w := &fakeWriter{}
	f := &KafkaForwarder{writer: w, logger: zap.NewNop()}

	if err := f.Handle(context.Background(), New(FareSettled, "booking-1", map[string]any{"amount": 30})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "booking-1" {
		t.Errorf("expected key booking-1, got %s", w.msgs[0].Key)
	}
}

func TestKafkaForwarder_SwallowsWriteErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	f := &KafkaForwarder{writer: w, logger: zap.NewNop()}

	if err := f.Handle(context.Background(), New(FareSettled, "booking-1", nil)); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
