// Package memory provides in-process implementations of the repository
// interfaces. Every read returns a copy so callers never share state with the store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// RideRepository is an in-memory implementation of repository.RideRepository.
type RideRepository struct {
	mu    sync.RWMutex
	rides map[string]*domain.Ride
}

var _ repository.RideRepository = (*RideRepository)(nil)

// NewRideRepository creates an empty ride repository.
func NewRideRepository() *RideRepository {
	return &RideRepository{rides: make(map[string]*domain.Ride)}
}

func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rides[ride.ID]; ok {
		return repository.ErrDuplicate
	}
	stored := *ride
	r.rides[ride.ID] = &stored
	return nil
}

func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ride, ok := r.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *ride
	return &out, nil
}

func (r *RideRepository) GetAll(ctx context.Context) ([]*domain.Ride, error) {
	return r.filter(func(*domain.Ride) bool { return true }), nil
}

func (r *RideRepository) GetByDriverID(ctx context.Context, driverID string) ([]*domain.Ride, error) {
	return r.filter(func(ride *domain.Ride) bool { return ride.DriverID == driverID }), nil
}

func (r *RideRepository) GetByStatus(ctx context.Context, status domain.RideStatus) ([]*domain.Ride, error) {
	return r.filter(func(ride *domain.Ride) bool { return ride.Status == status }), nil
}

func (r *RideRepository) CompareAndSetStatus(ctx context.Context, id string, from, to domain.RideStatus) (*domain.Ride, error) {
	return r.mutate(id, func(ride *domain.Ride) error {
		if ride.Status != from {
			return repository.ErrConflict
		}
		ride.Status = to
		return nil
	})
}

func (r *RideRepository) DecrementSeats(ctx context.Context, id string, n int) (*domain.Ride, error) {
	return r.mutate(id, func(ride *domain.Ride) error {
		if ride.SeatsAvailable < n {
			return repository.ErrConflict
		}
		ride.SeatsAvailable -= n
		return nil
	})
}

func (r *RideRepository) IncrementSeats(ctx context.Context, id string, n int) (*domain.Ride, error) {
	return r.mutate(id, func(ride *domain.Ride) error {
		if ride.SeatsAvailable+n > ride.SeatsTotal {
			return repository.ErrConflict
		}
		ride.SeatsAvailable += n
		return nil
	})
}

// mutate applies fn to the stored ride under the write lock and returns a copy
// of the result. The stored ride is left untouched when fn fails.
func (r *RideRepository) mutate(id string, fn func(*domain.Ride) error) (*domain.Ride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ride, ok := r.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	next := *ride
	if err := fn(&next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now()
	r.rides[id] = &next
	out := next
	return &out, nil
}

func (r *RideRepository) filter(keep func(*domain.Ride) bool) []*domain.Ride {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*domain.Ride, 0, len(r.rides))
	for _, ride := range r.rides {
		if keep(ride) {
			out := *ride
			result = append(result, &out)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DateTime.Equal(result[j].DateTime) {
			return result[i].ID < result[j].ID
		}
		return result[i].DateTime.Before(result[j].DateTime)
	})
	return result
}
