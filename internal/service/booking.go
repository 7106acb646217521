package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"campusride/internal/domain"
	"campusride/internal/events"
	"campusride/internal/logging"
	"campusride/internal/metrics"
	"campusride/internal/repository"
)

// DefaultFarePerSeat is the fare charged per booked seat.
const DefaultFarePerSeat int64 = 15

// SeatInventory is the part of the ride catalog bookings depend on.
type SeatInventory interface {
	GetRide(ctx context.Context, rideID string) (*domain.Ride, error)
	ReserveSeats(ctx context.Context, rideID string, n int) (SeatReservation, error)
	ReleaseSeats(ctx context.Context, r SeatReservation) error
}

// FareLedger is the part of the wallet ledger bookings depend on.
type FareLedger interface {
	TransferFare(ctx context.Context, fromUserID, toUserID string, amount int64, rideID, idempotencyKey string) ([]*domain.Transaction, error)
	Refund(ctx context.Context, originalKey string) ([]*domain.Transaction, error)
}

// Ensure the concrete services satisfy the contracts.
var (
	_ SeatInventory = (*RideCatalog)(nil)
	_ FareLedger    = (*WalletLedger)(nil)
)

// BookingCoordinator orchestrates seat reservations and fare settlement.
// It holds no lock of its own: it sequences calls into the catalog and the
// ledger and compensates when a later step loses a race.
type BookingCoordinator struct {
	bookings    repository.BookingRepository
	profiles    repository.ProfileRepository
	seats       SeatInventory
	ledger      FareLedger
	publisher   events.Publisher
	logger      *zap.Logger
	farePerSeat int64
	backoff     Backoff
	now         func() time.Time
}

// NewBookingCoordinator creates a new BookingCoordinator.
func NewBookingCoordinator(
	bookings repository.BookingRepository,
	profiles repository.ProfileRepository,
	seats SeatInventory,
	ledger FareLedger,
	publisher events.Publisher,
	logger *zap.Logger,
	farePerSeat int64,
	backoff Backoff,
) *BookingCoordinator {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if farePerSeat <= 0 {
		farePerSeat = DefaultFarePerSeat
	}
	return &BookingCoordinator{
		bookings:    bookings,
		profiles:    profiles,
		seats:       seats,
		ledger:      ledger,
		publisher:   publisher,
		logger:      logging.OrNop(logger),
		farePerSeat: farePerSeat,
		backoff:     backoff,
		now:         time.Now,
	}
}

// Fare returns the amount charged for the given number of seats.
func (c *BookingCoordinator) Fare(seats int) int64 {
	return int64(seats) * c.farePerSeat
}

// RequestBooking reserves seats on a ride and records a Pending booking.
// A busy seat section is retried with backoff; once the attempts are spent
// the request fails with ErrContention.
func (c *BookingCoordinator) RequestBooking(ctx context.Context, rideID, riderID string, seats int) (*domain.Booking, error) {
	const op = "request booking"

	if rideID == "" || riderID == "" {
		return nil, validationError(op, "booking", "ride id and rider id are required")
	}
	if seats < 1 {
		return nil, validationError(op, "booking", "at least one seat must be requested")
	}

	ride, err := c.seats.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	rider, err := c.profiles.GetByID(ctx, riderID)
	if err != nil {
		return nil, wrapStore(op, "profile", riderID, err)
	}
	if ride.DriverID == riderID {
		return nil, validationError(op, "booking", "drivers cannot book their own ride")
	}
	if ride.FemaleOnly && rider.Gender != domain.GenderFemale {
		metrics.BookingOutcomes.WithLabelValues("gender_restricted").Inc()
		return nil, newError(ErrGenderRestriction, op, "ride", rideID, "only female riders can book this ride")
	}

	var reservation SeatReservation
	err = retryContention(ctx, c.backoff, func() error {
		var err error
		reservation, err = c.seats.ReserveSeats(ctx, rideID, seats)
		return err
	})
	switch {
	case errors.Is(err, ErrContention):
		metrics.BookingOutcomes.WithLabelValues("contention").Inc()
		c.logger.Warn("seat reservation contended", zap.String("ride_id", rideID), zap.String("rider_id", riderID))
		return nil, newError(ErrContention, op, "ride", rideID,
			fmt.Sprintf("seat section stayed busy for %d attempts", c.backoff.attempts()))
	case errors.Is(err, ErrInsufficientSeats):
		metrics.BookingOutcomes.WithLabelValues("insufficient_seats").Inc()
		return nil, err
	case err != nil:
		return nil, err
	}

	booking := &domain.Booking{
		ID:          uuid.New().String(),
		RideID:      rideID,
		RiderID:     riderID,
		SeatsBooked: seats,
		Status:      domain.BookingStatusPending,
		CreatedAt:   c.now(),
	}
	if err := c.bookings.Create(ctx, booking); err != nil {
		if relErr := c.releaseSeats(ctx, reservation); relErr != nil {
			c.logger.Error("release seats after failed booking",
				zap.String("ride_id", rideID),
				zap.Int("seats", seats),
				zap.Error(relErr),
			)
			return nil, fmt.Errorf("%s: %w", op, errors.Join(err, relErr))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// A cancellation that settled the ride before this booking existed would
	// have missed it.
	if current, err := c.seats.GetRide(ctx, rideID); err == nil && current.Status == domain.RideStatusCancelled {
		if err := c.settleBooking(ctx, booking.ID); err != nil {
			return nil, err
		}
		return nil, newError(ErrInvalidTransition, op, "ride", rideID, "ride was cancelled while the booking was placed")
	}

	metrics.BookingOutcomes.WithLabelValues("requested").Inc()
	c.logger.Info("booking requested",
		zap.String("booking_id", booking.ID),
		zap.String("ride_id", rideID),
		zap.String("rider_id", riderID),
		zap.Int("seats", seats),
	)
	c.publish(ctx, events.New(events.BookingRequested, booking.ID, map[string]any{
		"ride_id":  rideID,
		"rider_id": riderID,
		"seats":    seats,
	}))

	return booking, nil
}

// ResolveBooking applies the driver's decision to a Pending booking.
//
// Approval settles the fare first and marks the booking Approved only once
// the ledger accepted it. If settlement fails the booking stays Pending and
// keeps its seats. Rejection returns the seats to the ride.
func (c *BookingCoordinator) ResolveBooking(ctx context.Context, bookingID string, decision domain.BookingStatus) (*domain.Booking, error) {
	const op = "resolve booking"

	if bookingID == "" {
		return nil, validationError(op, "booking", "booking id is required")
	}
	if !decision.Valid() {
		return nil, validationError(op, "booking", fmt.Sprintf("unknown status %q", decision))
	}

	booking, err := c.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, wrapStore(op, "booking", bookingID, err)
	}
	if !booking.Status.CanTransitionTo(decision) {
		return nil, newError(ErrInvalidTransition, op, "booking", bookingID,
			fmt.Sprintf("%s -> %s is not allowed", booking.Status, decision))
	}

	var resolved *domain.Booking
	if decision == domain.BookingStatusApproved {
		resolved, err = c.approve(ctx, booking)
	} else {
		resolved, err = c.reject(ctx, booking)
	}
	if err != nil {
		return nil, err
	}

	c.logger.Info("booking resolved",
		zap.String("booking_id", bookingID),
		zap.String("ride_id", booking.RideID),
		zap.String("status", string(resolved.Status)),
	)
	c.publish(ctx, events.New(events.BookingResolved, bookingID, map[string]any{
		"ride_id":  resolved.RideID,
		"rider_id": resolved.RiderID,
		"status":   string(resolved.Status),
	}))
	return resolved, nil
}

func (c *BookingCoordinator) approve(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	const op = "approve booking"

	ride, err := c.seats.GetRide(ctx, booking.RideID)
	if err != nil {
		return nil, err
	}
	if ride.Status == domain.RideStatusCancelled {
		return nil, newError(ErrInvalidTransition, op, "ride", ride.ID, "ride is cancelled")
	}

	fare := c.Fare(booking.SeatsBooked)
	if _, err := c.ledger.TransferFare(ctx, booking.RiderID, ride.DriverID, fare, ride.ID, booking.ID); err != nil {
		metrics.BookingOutcomes.WithLabelValues("approval_failed").Inc()
		c.logger.Warn("fare settlement failed, booking stays pending",
			zap.String("booking_id", booking.ID),
			zap.Int64("fare", fare),
			zap.Error(err),
		)
		return nil, err
	}

	approved, err := c.bookings.CompareAndSetStatus(ctx, booking.ID, domain.BookingStatusPending, domain.BookingStatusApproved)
	if errors.Is(err, repository.ErrConflict) {
		// Rejected or cancelled while the fare was moving: give the money back.
		if _, refundErr := c.ledger.Refund(ctx, booking.ID); refundErr != nil {
			c.logger.Error("refund after lost approval race", zap.String("booking_id", booking.ID), zap.Error(refundErr))
			return nil, fmt.Errorf("%s %s: %w", op, booking.ID, refundErr)
		}
		return nil, newError(ErrInvalidTransition, op, "booking", booking.ID, "booking was resolved concurrently")
	}
	if err != nil {
		// The fare is recorded under the booking ID; a retry replays it.
		return nil, wrapStore(op, "booking", booking.ID, err)
	}

	// The ride may have been cancelled between the check above and the
	// status change; the cascade then needs to see this booking again.
	if current, err := c.seats.GetRide(ctx, booking.RideID); err == nil && current.Status == domain.RideStatusCancelled {
		if err := c.settleBooking(ctx, booking.ID); err != nil {
			return nil, err
		}
		return nil, newError(ErrInvalidTransition, op, "ride", booking.RideID, "ride was cancelled during approval")
	}

	metrics.BookingOutcomes.WithLabelValues("approved").Inc()
	return approved, nil
}

func (c *BookingCoordinator) reject(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	const op = "reject booking"

	rejected, err := c.bookings.CompareAndSetStatus(ctx, booking.ID, domain.BookingStatusPending, domain.BookingStatusRejected)
	if errors.Is(err, repository.ErrConflict) {
		return nil, newError(ErrInvalidTransition, op, "booking", booking.ID, "booking was resolved concurrently")
	}
	if err != nil {
		return nil, wrapStore(op, "booking", booking.ID, err)
	}

	// An approval that moved the fare but lost the status race leaves a transfer behind.
	if err := c.refundIfSettled(ctx, booking.ID); err != nil {
		return nil, err
	}
	if err := c.releaseSeats(ctx, SeatReservation{RideID: booking.RideID, Seats: booking.SeatsBooked}); err != nil {
		c.logger.Error("seats not released for rejected booking",
			zap.String("booking_id", booking.ID),
			zap.String("ride_id", booking.RideID),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.BookingOutcomes.WithLabelValues("rejected").Inc()
	return rejected, nil
}

// HandleRideCancelled is the events.Handler for RideCancelled.
func (c *BookingCoordinator) HandleRideCancelled(ctx context.Context, e events.Event) error {
	return c.SettleCancelledRide(ctx, e.Key)
}

// SettleCancelledRide rejects every Pending booking on a cancelled ride and
// refunds every Approved one. It is safe to run again after a partial
// failure: settled bookings are skipped and refunds are idempotent.
func (c *BookingCoordinator) SettleCancelledRide(ctx context.Context, rideID string) error {
	const op = "settle cancelled ride"

	ride, err := c.seats.GetRide(ctx, rideID)
	if err != nil {
		return err
	}
	if ride.Status != domain.RideStatusCancelled {
		return newError(ErrInvalidTransition, op, "ride", rideID, fmt.Sprintf("ride is %s, not cancelled", ride.Status))
	}

	bookings, err := c.bookings.GetByRideID(ctx, rideID)
	if err != nil {
		return wrapStore(op, "ride", rideID, err)
	}

	var errs []error
	settled := 0
	for _, b := range bookings {
		if b.Status == domain.BookingStatusRejected {
			continue
		}
		if err := c.settleBooking(ctx, b.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		settled++
	}

	c.logger.Info("cancelled ride settled",
		zap.String("ride_id", rideID),
		zap.Int("bookings", settled),
		zap.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}

// settleBooking drives one booking of a cancelled ride to Rejected.
func (c *BookingCoordinator) settleBooking(ctx context.Context, bookingID string) error {
	const op = "settle booking"

	for {
		b, err := c.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return wrapStore(op, "booking", bookingID, err)
		}

		switch b.Status {
		case domain.BookingStatusRejected:
			return nil

		case domain.BookingStatusPending:
			_, err := c.bookings.CompareAndSetStatus(ctx, b.ID, domain.BookingStatusPending, domain.BookingStatusRejected)
			if errors.Is(err, repository.ErrConflict) {
				continue
			}
			if err != nil {
				return wrapStore(op, "booking", b.ID, err)
			}
			if err := c.refundIfSettled(ctx, b.ID); err != nil {
				return err
			}

		case domain.BookingStatusApproved:
			if _, err := c.ledger.Refund(ctx, b.ID); err != nil {
				if errors.Is(err, ErrNotFound) {
					c.logger.DPanic("approved booking has no fare on the ledger", zap.String("booking_id", b.ID))
					return newError(ErrConsistency, op, "booking", b.ID, "approved booking has no fare on the ledger")
				}
				return err
			}
			_, err := c.bookings.CompareAndSetStatus(ctx, b.ID, domain.BookingStatusApproved, domain.BookingStatusRejected)
			if errors.Is(err, repository.ErrConflict) {
				continue
			}
			if err != nil {
				return wrapStore(op, "booking", b.ID, err)
			}

		default:
			return newError(ErrConsistency, op, "booking", b.ID, fmt.Sprintf("unknown status %q", b.Status))
		}

		// Only the writer that moved the booking to Rejected returns its seats.
		if err := c.releaseSeats(ctx, SeatReservation{RideID: b.RideID, Seats: b.SeatsBooked}); err != nil {
			c.logger.Error("seats not released for settled booking",
				zap.String("booking_id", b.ID),
				zap.String("ride_id", b.RideID),
				zap.Error(err),
			)
			return err
		}
		metrics.BookingOutcomes.WithLabelValues("cancelled_by_ride").Inc()
		return nil
	}
}

// refundIfSettled reverses the booking's fare if one was ever recorded.
func (c *BookingCoordinator) refundIfSettled(ctx context.Context, bookingID string) error {
	if _, err := c.ledger.Refund(ctx, bookingID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func (c *BookingCoordinator) releaseSeats(ctx context.Context, r SeatReservation) error {
	return retryContention(ctx, c.backoff, func() error {
		return c.seats.ReleaseSeats(ctx, r)
	})
}

// GetBooking retrieves a booking by ID.
func (c *BookingCoordinator) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	b, err := c.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, wrapStore("get booking", "booking", bookingID, err)
	}
	return b, nil
}

// ListByRide returns every booking on a ride.
func (c *BookingCoordinator) ListByRide(ctx context.Context, rideID string) ([]*domain.Booking, error) {
	if _, err := c.seats.GetRide(ctx, rideID); err != nil {
		return nil, err
	}
	return c.bookings.GetByRideID(ctx, rideID)
}

func (c *BookingCoordinator) publish(ctx context.Context, e events.Event) {
	if err := c.publisher.Publish(ctx, e); err != nil {
		c.logger.Warn("publish event", zap.String("type", string(e.Type)), zap.Error(err))
	}
}
