package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"campusride/internal/domain"
	"campusride/internal/events"
	"campusride/internal/lock"
	"campusride/internal/logging"
	"campusride/internal/metrics"
	"campusride/internal/repository"
)

// DefaultSeatLockTTL bounds how long a crashed holder can keep a ride's seat section.
const DefaultSeatLockTTL = 5 * time.Second

// SeatReservation is the token returned by ReserveSeats. Releasing it gives
// the seats back to the ride.
type SeatReservation struct {
	RideID string
	Seats  int
}

// RideCatalog owns rides, their lifecycle and their seat counters.
type RideCatalog struct {
	rides       repository.RideRepository
	profiles    repository.ProfileRepository
	locker      lock.Locker
	publisher   events.Publisher
	logger      *zap.Logger
	seatLockTTL time.Duration
	now         func() time.Time
}

// NewRideCatalog creates a new RideCatalog.
func NewRideCatalog(
	rides repository.RideRepository,
	profiles repository.ProfileRepository,
	locker lock.Locker,
	publisher events.Publisher,
	logger *zap.Logger,
	seatLockTTL time.Duration,
) *RideCatalog {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if seatLockTTL <= 0 {
		seatLockTTL = DefaultSeatLockTTL
	}
	return &RideCatalog{
		rides:       rides,
		profiles:    profiles,
		locker:      locker,
		publisher:   publisher,
		logger:      logging.OrNop(logger),
		seatLockTTL: seatLockTTL,
		now:         time.Now,
	}
}

// CreateRideRequest contains the parameters for offering a ride.
type CreateRideRequest struct {
	DriverID   string
	Location   domain.Location
	DateTime   time.Time
	SeatsTotal int
	FemaleOnly bool
	Vibe       domain.Vibe
}

// CreateRide offers a new ride with every seat free.
func (c *RideCatalog) CreateRide(ctx context.Context, req CreateRideRequest) (*domain.Ride, error) {
	const op = "create ride"

	if err := c.validateCreateRequest(req); err != nil {
		return nil, err
	}

	driver, err := c.profiles.GetByID(ctx, req.DriverID)
	if err != nil {
		return nil, wrapStore(op, "profile", req.DriverID, err)
	}
	if driver.Role != domain.RoleDriver {
		return nil, newError(ErrForbidden, op, "profile", driver.ID, "only users in the driver role can offer rides")
	}

	now := c.now()
	ride := &domain.Ride{
		ID:       uuid.New().String(),
		DriverID: req.DriverID,
		Location: domain.Location{
			Start:       strings.TrimSpace(req.Location.Start),
			Destination: strings.TrimSpace(req.Location.Destination),
		},
		DateTime:       req.DateTime,
		SeatsTotal:     req.SeatsTotal,
		SeatsAvailable: req.SeatsTotal,
		FemaleOnly:     req.FemaleOnly,
		Vibe:           req.Vibe,
		Status:         domain.RideStatusScheduled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := c.rides.Create(ctx, ride); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c.logger.Info("ride created",
		zap.String("ride_id", ride.ID),
		zap.String("driver_id", ride.DriverID),
		zap.Int("seats", ride.SeatsTotal),
	)
	c.publish(ctx, events.New(events.RideCreated, ride.ID, map[string]any{
		"driver_id": ride.DriverID,
		"seats":     ride.SeatsTotal,
		"date_time": ride.DateTime,
	}))

	return ride, nil
}

func (c *RideCatalog) validateCreateRequest(req CreateRideRequest) error {
	const op = "create ride"

	if req.DriverID == "" {
		return validationError(op, "ride", "driver id is required")
	}
	if strings.TrimSpace(req.Location.Start) == "" || strings.TrimSpace(req.Location.Destination) == "" {
		return validationError(op, "ride", "start and destination are required")
	}
	if req.SeatsTotal <= 0 {
		return validationError(op, "ride", "seats total must be greater than zero")
	}
	if !req.DateTime.After(c.now()) {
		return validationError(op, "ride", "departure must be in the future")
	}
	if !req.Vibe.Valid() {
		return validationError(op, "ride", fmt.Sprintf("unknown vibe %q", req.Vibe))
	}
	return nil
}

// UpdateStatus moves a ride along its state machine. Moving to Cancelled
// settles every booking on the ride before returning; if settlement fails the
// ride stays Cancelled and the error is returned so the caller can re-drive it.
func (c *RideCatalog) UpdateStatus(ctx context.Context, rideID string, next domain.RideStatus) (*domain.Ride, error) {
	const op = "update ride status"

	if rideID == "" {
		return nil, validationError(op, "ride", "ride id is required")
	}
	if !next.Valid() {
		return nil, validationError(op, "ride", fmt.Sprintf("unknown status %q", next))
	}

	// Status only moves forward, so a conflicting writer can beat us at most
	// once per state and this loop ends.
	for {
		ride, err := c.rides.GetByID(ctx, rideID)
		if err != nil {
			return nil, wrapStore(op, "ride", rideID, err)
		}
		if !ride.Status.CanTransitionTo(next) {
			return nil, newError(ErrInvalidTransition, op, "ride", rideID,
				fmt.Sprintf("%s -> %s is not allowed", ride.Status, next))
		}

		updated, err := c.rides.CompareAndSetStatus(ctx, rideID, ride.Status, next)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, wrapStore(op, "ride", rideID, err)
		}

		metrics.RideTransitions.WithLabelValues(string(next)).Inc()
		c.logger.Info("ride status changed",
			zap.String("ride_id", rideID),
			zap.String("from", string(ride.Status)),
			zap.String("to", string(next)),
		)

		c.publish(ctx, events.New(events.RideStatusChanged, rideID, map[string]any{
			"from": string(ride.Status),
			"to":   string(next),
		}))

		if next == domain.RideStatusCancelled {
			// Subscribers settle the ride's bookings; their failures are ours.
			err := c.publisher.Publish(ctx, events.New(events.RideCancelled, rideID, map[string]any{
				"driver_id": updated.DriverID,
			}))
			if err != nil {
				c.logger.Error("settle cancelled ride", zap.String("ride_id", rideID), zap.Error(err))
				return updated, fmt.Errorf("%s: settle bookings of ride %s: %w", op, rideID, err)
			}
			if settled, err := c.rides.GetByID(ctx, rideID); err == nil {
				updated = settled
			}
		}
		return updated, nil
	}
}

// ReserveSeats takes n seats from the ride inside its seat section. It does
// not wait for a busy section: it fails with ErrContention and the caller
// decides whether to retry.
func (c *RideCatalog) ReserveSeats(ctx context.Context, rideID string, n int) (SeatReservation, error) {
	const op = "reserve seats"

	if n < 1 {
		return SeatReservation{}, validationError(op, "ride", "at least one seat must be requested")
	}

	release, err := c.enterSeatSection(ctx, op, rideID)
	if err != nil {
		return SeatReservation{}, err
	}
	defer release()

	ride, err := c.rides.GetByID(ctx, rideID)
	if err != nil {
		return SeatReservation{}, wrapStore(op, "ride", rideID, err)
	}
	if ride.Status != domain.RideStatusScheduled {
		return SeatReservation{}, newError(ErrInvalidTransition, op, "ride", rideID,
			fmt.Sprintf("ride is %s and no longer takes bookings", ride.Status))
	}

	if _, err := c.rides.DecrementSeats(ctx, rideID, n); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return SeatReservation{}, newError(ErrInsufficientSeats, op, "ride", rideID,
				fmt.Sprintf("requested %d seats, %d available", n, ride.SeatsAvailable))
		}
		return SeatReservation{}, wrapStore(op, "ride", rideID, err)
	}

	return SeatReservation{RideID: rideID, Seats: n}, nil
}

// ReleaseSeats gives a reservation's seats back to its ride.
func (c *RideCatalog) ReleaseSeats(ctx context.Context, r SeatReservation) error {
	const op = "release seats"

	if r.Seats < 1 {
		return validationError(op, "ride", "at least one seat must be released")
	}

	release, err := c.enterSeatSection(ctx, op, r.RideID)
	if err != nil {
		return err
	}
	defer release()

	if _, err := c.rides.IncrementSeats(ctx, r.RideID, r.Seats); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			c.logger.DPanic("seat release exceeds ride capacity",
				zap.String("ride_id", r.RideID),
				zap.Int("seats", r.Seats),
			)
			return newError(ErrConsistency, op, "ride", r.RideID,
				fmt.Sprintf("releasing %d seats would exceed seats total", r.Seats))
		}
		return wrapStore(op, "ride", r.RideID, err)
	}
	return nil
}

func (c *RideCatalog) enterSeatSection(ctx context.Context, op, rideID string) (func(), error) {
	if rideID == "" {
		return nil, validationError(op, "ride", "ride id is required")
	}

	key := lock.RidePrefix + rideID
	token, ok, err := c.locker.Acquire(ctx, key, c.seatLockTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: lock ride %s: %w", op, rideID, err)
	}
	if !ok {
		metrics.SeatContention.Inc()
		return nil, newError(ErrContention, op, "ride", rideID, "seat section is busy")
	}

	return func() {
		if err := c.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			c.logger.Warn("release seat lock", zap.String("ride_id", rideID), zap.Error(err))
		}
	}, nil
}

// GetRide retrieves a ride by ID.
func (c *RideCatalog) GetRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, validationError("get ride", "ride", "ride id is required")
	}
	ride, err := c.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, wrapStore("get ride", "ride", rideID, err)
	}
	return ride, nil
}

// ListByDriver returns the rides a driver offers.
func (c *RideCatalog) ListByDriver(ctx context.Context, driverID string) ([]*domain.Ride, error) {
	if driverID == "" {
		return nil, validationError("list rides", "ride", "driver id is required")
	}
	return c.rides.GetByDriverID(ctx, driverID)
}

// ListByStatus returns the rides in a status.
func (c *RideCatalog) ListByStatus(ctx context.Context, status domain.RideStatus) ([]*domain.Ride, error) {
	if !status.Valid() {
		return nil, validationError("list rides", "ride", fmt.Sprintf("unknown status %q", status))
	}
	return c.rides.GetByStatus(ctx, status)
}

// ListAll returns every ride ordered by departure.
func (c *RideCatalog) ListAll(ctx context.Context) ([]*domain.Ride, error) {
	return c.rides.GetAll(ctx)
}

// publish delivers informational events; subscriber failures are logged only.
func (c *RideCatalog) publish(ctx context.Context, e events.Event) {
	if err := c.publisher.Publish(ctx, e); err != nil {
		c.logger.Warn("publish event", zap.String("type", string(e.Type)), zap.Error(err))
	}
}
