package postgres

import (
	"context"
	"database/sql"
	"errors"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

const rideColumns = `id, driver_id, start_location, destination, date_time, seats_total, seats_available, female_only, vibe, status, created_at, updated_at`

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

var _ repository.RideRepository = (*RideRepository)(nil)

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `INSERT INTO rides (` + rideColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.DriverID,
		ride.Location.Start,
		ride.Location.Destination,
		ride.DateTime,
		ride.SeatsTotal,
		ride.SeatsAvailable,
		ride.FemaleOnly,
		ride.Vibe,
		ride.Status,
		ride.CreatedAt,
		ride.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`
	return scanRideRow(r.q.QueryRowContext(ctx, query, id))
}

// GetAll retrieves all rides ordered by departure.
func (r *RideRepository) GetAll(ctx context.Context) ([]*domain.Ride, error) {
	return r.list(ctx, `SELECT `+rideColumns+` FROM rides ORDER BY date_time, id`)
}

// GetByDriverID retrieves the rides offered by a driver.
func (r *RideRepository) GetByDriverID(ctx context.Context, driverID string) ([]*domain.Ride, error) {
	return r.list(ctx, `SELECT `+rideColumns+` FROM rides WHERE driver_id = $1 ORDER BY date_time, id`, driverID)
}

// GetByStatus retrieves the rides in a status.
func (r *RideRepository) GetByStatus(ctx context.Context, status domain.RideStatus) ([]*domain.Ride, error) {
	return r.list(ctx, `SELECT `+rideColumns+` FROM rides WHERE status = $1 ORDER BY date_time, id`, status)
}

// CompareAndSetStatus moves a ride from one status to another in a single
// conditional UPDATE.
func (r *RideRepository) CompareAndSetStatus(ctx context.Context, id string, from, to domain.RideStatus) (*domain.Ride, error) {
	query := `
		UPDATE rides SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + rideColumns
	return r.conditional(ctx, id, query, id, from, to)
}

// DecrementSeats takes n seats if at least n are free.
func (r *RideRepository) DecrementSeats(ctx context.Context, id string, n int) (*domain.Ride, error) {
	query := `
		UPDATE rides SET seats_available = seats_available - $2, updated_at = now()
		WHERE id = $1 AND seats_available >= $2
		RETURNING ` + rideColumns
	return r.conditional(ctx, id, query, id, n)
}

// IncrementSeats returns n seats unless that would exceed seats_total.
func (r *RideRepository) IncrementSeats(ctx context.Context, id string, n int) (*domain.Ride, error) {
	query := `
		UPDATE rides SET seats_available = seats_available + $2, updated_at = now()
		WHERE id = $1 AND seats_available + $2 <= seats_total
		RETURNING ` + rideColumns
	return r.conditional(ctx, id, query, id, n)
}

// conditional runs an UPDATE ... RETURNING. When no row matched it tells an
// unknown ride apart from a failed condition.
func (r *RideRepository) conditional(ctx context.Context, id, query string, args ...any) (*domain.Ride, error) {
	ride, err := scanRideRow(r.q.QueryRowContext(ctx, query, args...))
	if !errors.Is(err, repository.ErrNotFound) {
		return ride, err
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM rides WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, repository.ErrNotFound
	}
	return nil, repository.ErrConflict
}

func (r *RideRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Ride, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

func scanRideRow(row *sql.Row) (*domain.Ride, error) {
	ride, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return ride, err
}

func scanRide(s scanner) (*domain.Ride, error) {
	var ride domain.Ride
	err := s.Scan(
		&ride.ID,
		&ride.DriverID,
		&ride.Location.Start,
		&ride.Location.Destination,
		&ride.DateTime,
		&ride.SeatsTotal,
		&ride.SeatsAvailable,
		&ride.FemaleOnly,
		&ride.Vibe,
		&ride.Status,
		&ride.CreatedAt,
		&ride.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ride, nil
}
