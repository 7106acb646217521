package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// BookingRepository is an in-memory implementation of repository.BookingRepository.
type BookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*domain.Booking
	byRide   map[string][]string
}

var _ repository.BookingRepository = (*BookingRepository)(nil)

// NewBookingRepository creates an empty booking repository.
func NewBookingRepository() *BookingRepository {
	return &BookingRepository{
		bookings: make(map[string]*domain.Booking),
		byRide:   make(map[string][]string),
	}
}

func (r *BookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[booking.ID]; ok {
		return repository.ErrDuplicate
	}
	stored := *booking
	r.bookings[booking.ID] = &stored
	r.byRide[booking.RideID] = append(r.byRide[booking.RideID], booking.ID)
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	booking, ok := r.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *booking
	return &out, nil
}

func (r *BookingRepository) GetByRideID(ctx context.Context, rideID string) ([]*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byRide[rideID]
	result := make([]*domain.Booking, 0, len(ids))
	for _, id := range ids {
		out := *r.bookings[id]
		result = append(result, &out)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *BookingRepository) CompareAndSetStatus(ctx context.Context, id string, from, to domain.BookingStatus) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if booking.Status != from {
		return nil, repository.ErrConflict
	}
	next := *booking
	next.Status = to
	next.ResolvedAt = time.Now()
	r.bookings[id] = &next
	out := next
	return &out, nil
}
