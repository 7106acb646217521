package postgres

import (
	"context"
	"database/sql"
	"errors"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

const bookingColumns = `id, ride_id, rider_id, seats_booked, status, created_at, resolved_at`

// BookingRepository is a PostgreSQL implementation of repository.BookingRepository.
type BookingRepository struct {
	q Querier
}

var _ repository.BookingRepository = (*BookingRepository)(nil)

// NewBookingRepository creates a new PostgreSQL booking repository.
func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{q: db}
}

// Create persists a new booking.
func (r *BookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	query := `INSERT INTO bookings (` + bookingColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	var resolvedAt sql.NullTime
	if !b.ResolvedAt.IsZero() {
		resolvedAt = sql.NullTime{Time: b.ResolvedAt, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query, b.ID, b.RideID, b.RiderID, b.SeatsBooked, b.Status, b.CreatedAt, resolvedAt)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetByID retrieves a booking by ID.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	b, err := scanBooking(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return b, err
}

// GetByRideID retrieves every booking on a ride in creation order.
func (r *BookingRepository) GetByRideID(ctx context.Context, rideID string) ([]*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ride_id = $1 ORDER BY created_at, id`

	rows, err := r.q.QueryContext(ctx, query, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// CompareAndSetStatus moves a booking from one status to another.
func (r *BookingRepository) CompareAndSetStatus(ctx context.Context, id string, from, to domain.BookingStatus) (*domain.Booking, error) {
	query := `
		UPDATE bookings SET status = $3, resolved_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + bookingColumns

	b, err := scanBooking(r.q.QueryRowContext(ctx, query, id, from, to))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, repository.ErrNotFound
	}
	return nil, repository.ErrConflict
}

func scanBooking(s scanner) (*domain.Booking, error) {
	var b domain.Booking
	var resolvedAt sql.NullTime
	if err := s.Scan(&b.ID, &b.RideID, &b.RiderID, &b.SeatsBooked, &b.Status, &b.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		b.ResolvedAt = resolvedAt.Time
	}
	return &b, nil
}
