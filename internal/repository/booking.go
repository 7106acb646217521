package repository

import (
	"context"

	"campusride/internal/domain"
)

// BookingRepository defines the persistence operations for bookings.
type BookingRepository interface {
	// Create persists a new booking.
	Create(ctx context.Context, booking *domain.Booking) error

	// GetByID retrieves a booking by ID.
	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// GetByRideID retrieves every booking on a ride.
	GetByRideID(ctx context.Context, rideID string) ([]*domain.Booking, error)

	// CompareAndSetStatus moves a booking from one status to another.
	// Returns ErrConflict if the booking is not currently in from.
	CompareAndSetStatus(ctx context.Context, id string, from, to domain.BookingStatus) (*domain.Booking, error)
}
