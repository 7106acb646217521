// Package events carries domain notifications between services.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type represents the type of domain event.
type Type string

const (
	RideCreated       Type = "RIDE_CREATED"
	RideStatusChanged Type = "RIDE_STATUS_CHANGED"
	RideCancelled     Type = "RIDE_CANCELLED"
	BookingRequested  Type = "BOOKING_REQUESTED"
	BookingResolved   Type = "BOOKING_RESOLVED"
	FareSettled       Type = "FARE_SETTLED"
	FareRefunded      Type = "FARE_REFUNDED"
	WalletToppedUp    Type = "WALLET_TOPPED_UP"
	RatingSubmitted   Type = "RATING_SUBMITTED"
)

// Event is a fact that already happened.
type Event struct {
	ID         string
	Type       Type
	Key        string // aggregate ID, used as the partition key downstream
	Data       map[string]any
	OccurredAt time.Time
}

// New builds an event stamped with a fresh ID and the current time.
func New(t Type, key string, data map[string]any) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		Key:        key,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

// Handler reacts to an event. A returned error is reported to the publisher.
type Handler func(ctx context.Context, e Event) error

// Publisher is the narrow contract services depend on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Bus delivers events synchronously to every subscriber of the type, in
// subscription order. Handlers registered with SubscribeAll see every event.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler
}

var _ Publisher = (*Bus)(nil)

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Type][]Handler)}
}

// Subscribe registers h for events of type t.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// SubscribeAll registers h for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish runs every matching handler and joins their errors. A failing
// handler does not stop the rest from running.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[e.Type])+len(b.all))
	hs = append(hs, b.handlers[e.Type]...)
	hs = append(hs, b.all...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range hs {
		if err := h(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard is a Publisher that drops everything.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, Event) error { return nil }
