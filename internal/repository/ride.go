package repository

import (
	"context"

	"campusride/internal/domain"
)

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// GetAll retrieves all rides ordered by departure.
	GetAll(ctx context.Context) ([]*domain.Ride, error)

	// GetByDriverID retrieves the rides offered by a driver.
	GetByDriverID(ctx context.Context, driverID string) ([]*domain.Ride, error)

	// GetByStatus retrieves the rides in the given status.
	GetByStatus(ctx context.Context, status domain.RideStatus) ([]*domain.Ride, error)

	// CompareAndSetStatus moves a ride from one status to another.
	// Returns ErrConflict if the ride is not currently in from.
	CompareAndSetStatus(ctx context.Context, id string, from, to domain.RideStatus) (*domain.Ride, error)

	// DecrementSeats atomically subtracts n from seats_available.
	// Returns ErrConflict if fewer than n seats are available.
	DecrementSeats(ctx context.Context, id string, n int) (*domain.Ride, error)

	// IncrementSeats atomically adds n to seats_available.
	// Returns ErrConflict if the result would exceed seats_total.
	IncrementSeats(ctx context.Context, id string, n int) (*domain.Ride, error)
}
