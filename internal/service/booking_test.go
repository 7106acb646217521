package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"campusride/internal/domain"
	"campusride/internal/repository"
	"campusride/internal/repository/memory"
)

func TestScenarioA_ApproveThenOverbook(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	driver := env.driver(t)
	rider := env.rider(t, domain.GenderMale)
	env.fund(t, rider.ID, 100)
	ride := env.ride(t, driver.ID, 2, false)

	booking, err := env.coord.RequestBooking(ctx, ride.ID, rider.ID, 1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if booking.Status != domain.BookingStatusPending {
		t.Fatalf("expected pending, got %s", booking.Status)
	}

	approved, err := env.coord.ResolveBooking(ctx, booking.ID, domain.BookingStatusApproved)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.BookingStatusApproved {
		t.Errorf("expected approved, got %s", approved.Status)
	}
	if got := env.seatsAvailable(t, ride.ID); got != 1 {
		t.Errorf("expected 1 seat left, got %d", got)
	}

	other := env.rider(t, domain.GenderFemale)
	_, err = env.coord.RequestBooking(ctx, ride.ID, other.ID, 2)
	expectKind(t, err, ErrInsufficientSeats)

	bookings, _ := env.coord.ListByRide(ctx, ride.ID)
	if len(bookings) != 1 {
		t.Errorf("failed request created a booking: %d bookings", len(bookings))
	}
}

func TestScenarioB_GenderRestriction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := env.ride(t, env.driver(t).ID, 3, true)

	for _, g := range []domain.Gender{domain.GenderMale, domain.GenderOther} {
		rider := env.rider(t, g)
		_, err := env.coord.RequestBooking(ctx, ride.ID, rider.ID, 1)
		expectKind(t, err, ErrGenderRestriction)
	}
	if got := env.seatsAvailable(t, ride.ID); got != 3 {
		t.Errorf("restricted request reserved seats: %d left", got)
	}

	female := env.rider(t, domain.GenderFemale)
	if _, err := env.coord.RequestBooking(ctx, ride.ID, female.ID, 1); err != nil {
		t.Errorf("female rider rejected: %v", err)
	}
}

func TestScenarioD_CancelRejectsPendingBookings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := env.ride(t, env.driver(t).ID, 3, false)

	b1, err := env.coord.RequestBooking(ctx, ride.ID, env.rider(t, domain.GenderMale).ID, 1)
	if err != nil {
		t.Fatalf("request 1: %v", err)
	}
	b2, err := env.coord.RequestBooking(ctx, ride.ID, env.rider(t, domain.GenderFemale).ID, 2)
	if err != nil {
		t.Fatalf("request 2: %v", err)
	}
	if got := env.seatsAvailable(t, ride.ID); got != 0 {
		t.Fatalf("expected 0 seats before cancel, got %d", got)
	}

	if _, err := env.catalog.UpdateStatus(ctx, ride.ID, domain.RideStatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	for _, id := range []string{b1.ID, b2.ID} {
		b, _ := env.coord.GetBooking(ctx, id)
		if b.Status != domain.BookingStatusRejected {
			t.Errorf("booking %s: expected rejected, got %s", id, b.Status)
		}
	}
	if got := env.seatsAvailable(t, ride.ID); got != 3 {
		t.Errorf("expected all 3 seats released, got %d", got)
	}
	if txs, _ := env.txs.GetByRideID(ctx, ride.ID); len(txs) != 0 {
		t.Errorf("expected no ledger entries for the ride, got %d", len(txs))
	}
}

func TestScenarioE_UnknownRide(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rider := env.rider(t, domain.GenderFemale)

	_, err := env.coord.RequestBooking(ctx, "no-such-ride", rider.ID, 1)
	expectKind(t, err, ErrNotFound)

	if bookings, _ := env.bookings.GetByRideID(ctx, "no-such-ride"); len(bookings) != 0 {
		t.Errorf("expected no bookings, got %d", len(bookings))
	}
	if env.txs.Count() != 0 {
		t.Errorf("expected empty ledger, got %d entries", env.txs.Count())
	}
}

func TestRequestBooking_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	driver := env.driver(t)
	ride := env.ride(t, driver.ID, 2, false)
	rider := env.rider(t, domain.GenderMale)

	_, err := env.coord.RequestBooking(ctx, ride.ID, rider.ID, 0)
	expectKind(t, err, ErrValidation)

	_, err = env.coord.RequestBooking(ctx, ride.ID, driver.ID, 1)
	expectKind(t, err, ErrValidation)

	_, err = env.coord.RequestBooking(ctx, ride.ID, "ghost", 1)
	expectKind(t, err, ErrNotFound)
}

func TestRequestBooking_ConcurrentRequestsNeverOvercommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := env.ride(t, env.driver(t).ID, 3, false)
	coord := NewBookingCoordinator(env.bookings, env.profiles, env.catalog, env.ledger, env.bus, nil,
		DefaultFarePerSeat, Backoff{Attempts: 10, BaseDelay: time.Millisecond})

	const riders = 12
	ids := make([]string, riders)
	for i := range ids {
		ids[i] = env.rider(t, domain.GenderFemale).ID
	}

	var (
		wg                            sync.WaitGroup
		mu                            sync.Mutex
		booked, insufficient, contend int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(riderID string) {
			defer wg.Done()
			_, err := coord.RequestBooking(ctx, ride.ID, riderID, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				booked++
			case errors.Is(err, ErrInsufficientSeats):
				insufficient++
			case errors.Is(err, ErrContention):
				contend++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	if booked < 1 || booked > 3 {
		t.Fatalf("expected 1 to 3 bookings on 3 seats, got %d", booked)
	}
	if booked+insufficient+contend != riders {
		t.Fatalf("outcomes booked=%d insufficient=%d contention=%d do not cover %d riders", booked, insufficient, contend, riders)
	}
	// Every request that got through the seat section either took a seat or
	// found none left.
	if contend == 0 && (booked != 3 || insufficient != riders-3) {
		t.Errorf("expected 3 bookings and %d insufficient-seat failures, got %d and %d", riders-3, booked, insufficient)
	}
	if insufficient > 0 && booked != 3 {
		t.Errorf("insufficient seats reported with %d of 3 seats booked", booked)
	}
	if got := env.seatsAvailable(t, ride.ID); got != 3-booked {
		t.Errorf("expected %d seats left, got %d", 3-booked, got)
	}
	bookings, _ := coord.ListByRide(ctx, ride.ID)
	if len(bookings) != booked {
		t.Errorf("expected %d bookings, got %d", booked, len(bookings))
	}
}

func TestRequestBooking_ContentionExhausted(t *testing.T) {
	locker := &busyLocker{}
	env := newTestEnvWith(t, locker, nil)
	ctx := context.Background()
	ride := env.ride(t, env.driver(t).ID, 2, false)
	rider := env.rider(t, domain.GenderMale)

	_, err := env.coord.RequestBooking(ctx, ride.ID, rider.ID, 1)
	expectKind(t, err, ErrContention)

	if got := locker.attempts.Load(); got != int64(testBackoff.Attempts) {
		t.Errorf("expected %d lock attempts, got %d", testBackoff.Attempts, got)
	}
	if got := env.seatsAvailable(t, ride.ID); got != 2 {
		t.Errorf("expected seats untouched, got %d", got)
	}
}

func TestResolveBooking_LedgerFailureKeepsPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := env.ride(t, env.driver(t).ID, 2, false)
	rider := env.rider(t, domain.GenderMale)
	env.fund(t, rider.ID, 10) // fare for 2 seats is 30

	booking, err := env.coord.RequestBooking(ctx, ride.ID, rider.ID, 2)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	_, err = env.coord.ResolveBooking(ctx, booking.ID, domain.BookingStatusApproved)
	expectKind(t, err, ErrInsufficientBalance)

	b, _ := env.coord.GetBooking(ctx, booking.ID)
	if b.Status != domain.BookingStatusPending {
		t.Errorf("expected pending after failed approval, got %s", b.Status)
	}
	if got := env.seatsAvailable(t, ride.ID); got != 0 {
		t.Errorf("expected reservation kept, got %d seats free", got)
	}
	if txs, _ := env.txs.GetByRideID(ctx, ride.ID); len(txs) != 0 {
		t.Errorf("expected no fare entries, got %d", len(txs))
	}

	// Retry once funded.
	env.fund(t, rider.ID, 20)
	if _, err := env.coord.ResolveBooking(ctx, booking.ID, domain.BookingStatusApproved); err != nil {
		t.Fatalf("approve after top up: %v", err)
	}
	if got := env.balance(t, rider.ID); got != 0 {
		t.Errorf("expected rider balance 0, got %d", got)
	}
}

func TestResolveBooking_RejectReleasesSeats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := env.ride(t, env.driver(t).ID, 2, false)
	booking, err := env.coord.RequestBooking(ctx, ride.ID, env.rider(t, domain.GenderMale).ID, 2)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	rejected, err := env.coord.ResolveBooking(ctx, booking.ID, domain.BookingStatusRejected)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.BookingStatusRejected {
		t.Errorf("expected rejected, got %s", rejected.Status)
	}
	if got := env.seatsAvailable(t, ride.ID); got != 2 {
		t.Errorf("expected seats released, got %d", got)
	}
	if env.txs.Count() != 0 {
		t.Errorf("reject wrote %d ledger entries", env.txs.Count())
	}
}

func TestResolveBooking_TerminalStatesAreFinal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := env.ride(t, env.driver(t).ID, 2, false)
	rider := env.rider(t, domain.GenderMale)
	env.fund(t, rider.ID, 100)

	approved, _ := env.coord.RequestBooking(ctx, ride.ID, rider.ID, 1)
	if _, err := env.coord.ResolveBooking(ctx, approved.ID, domain.BookingStatusApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	rejected, _ := env.coord.RequestBooking(ctx, ride.ID, rider.ID, 1)
	if _, err := env.coord.ResolveBooking(ctx, rejected.ID, domain.BookingStatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}

	for _, id := range []string{approved.ID, rejected.ID} {
		for _, next := range []domain.BookingStatus{domain.BookingStatusApproved, domain.BookingStatusRejected, domain.BookingStatusPending} {
			_, err := env.coord.ResolveBooking(ctx, id, next)
			expectKind(t, err, ErrInvalidTransition)
		}
	}

	_, err := env.coord.ResolveBooking(ctx, "missing", domain.BookingStatusApproved)
	expectKind(t, err, ErrNotFound)
	_, err = env.coord.ResolveBooking(ctx, approved.ID, "maybe")
	expectKind(t, err, ErrValidation)

	if got := env.balance(t, rider.ID); got != 100-DefaultFarePerSeat {
		t.Errorf("expected one fare charged, balance %d", got)
	}
}

func TestCancelRide_RefundRestoresBalances(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	driver := env.driver(t)
	rider := env.rider(t, domain.GenderFemale)
	env.fund(t, rider.ID, 100)
	ride := env.ride(t, driver.ID, 3, false)

	booking, _ := env.coord.RequestBooking(ctx, ride.ID, rider.ID, 2)
	if _, err := env.coord.ResolveBooking(ctx, booking.ID, domain.BookingStatusApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := env.balance(t, rider.ID); got != 70 {
		t.Fatalf("expected rider 70 after fare, got %d", got)
	}
	if got := env.balance(t, driver.ID); got != 30 {
		t.Fatalf("expected driver 30 after fare, got %d", got)
	}

	if _, err := env.catalog.UpdateStatus(ctx, ride.ID, domain.RideStatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if got := env.balance(t, rider.ID); got != 100 {
		t.Errorf("expected rider restored to 100, got %d", got)
	}
	if got := env.balance(t, driver.ID); got != 0 {
		t.Errorf("expected driver restored to 0, got %d", got)
	}
	b, _ := env.coord.GetBooking(ctx, booking.ID)
	if b.Status != domain.BookingStatusRejected {
		t.Errorf("expected rejected after cancel, got %s", b.Status)
	}
	if got := env.seatsAvailable(t, ride.ID); got != 3 {
		t.Errorf("expected seats released, got %d", got)
	}

	txs, _ := env.txs.GetByRideID(ctx, ride.ID)
	var refunds int
	for _, tx := range txs {
		if tx.ReversesKey == booking.ID {
			refunds++
			if tx.Amount != 30 {
				t.Errorf("expected refund amount 30, got %d", tx.Amount)
			}
		}
	}
	if refunds != 2 {
		t.Errorf("expected one refund pair, got %d entries", refunds)
	}

	// Re-driving the settlement changes nothing.
	if err := env.coord.SettleCancelledRide(ctx, ride.ID); err != nil {
		t.Fatalf("re-drive: %v", err)
	}
	if after, _ := env.txs.GetByRideID(ctx, ride.ID); len(after) != len(txs) {
		t.Errorf("re-drive appended entries: %d -> %d", len(txs), len(after))
	}
}

func TestSettleCancelledRide_RequiresCancelledRide(t *testing.T) {
	env := newTestEnv(t)
	ride := env.ride(t, env.driver(t).ID, 1, false)

	err := env.coord.SettleCancelledRide(context.Background(), ride.ID)
	expectKind(t, err, ErrInvalidTransition)
}

func TestRequestBooking_CancelledRide(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := env.ride(t, env.driver(t).ID, 2, false)
	if _, err := env.catalog.UpdateStatus(ctx, ride.ID, domain.RideStatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err := env.coord.RequestBooking(ctx, ride.ID, env.rider(t, domain.GenderMale).ID, 1)
	expectKind(t, err, ErrInvalidTransition)
}

// racingBookings makes every Pending -> Approved update lose to a concurrent
// rejection.
type racingBookings struct {
	*memory.BookingRepository
}

func (r racingBookings) CompareAndSetStatus(ctx context.Context, id string, from, to domain.BookingStatus) (*domain.Booking, error) {
	if from == domain.BookingStatusPending && to == domain.BookingStatusApproved {
		if _, err := r.BookingRepository.CompareAndSetStatus(ctx, id, from, domain.BookingStatusRejected); err != nil {
			return nil, err
		}
		return nil, repository.ErrConflict
	}
	return r.BookingRepository.CompareAndSetStatus(ctx, id, from, to)
}

func TestResolveBooking_LostApprovalRaceIsRefunded(t *testing.T) {
	store := racingBookings{memory.NewBookingRepository()}
	env := newTestEnvWith(t, nil, store)
	ctx := context.Background()
	driver := env.driver(t)
	rider := env.rider(t, domain.GenderMale)
	env.fund(t, rider.ID, 50)
	ride := env.ride(t, driver.ID, 2, false)

	booking, err := env.coord.RequestBooking(ctx, ride.ID, rider.ID, 1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	_, err = env.coord.ResolveBooking(ctx, booking.ID, domain.BookingStatusApproved)
	expectKind(t, err, ErrInvalidTransition)

	if got := env.balance(t, rider.ID); got != 50 {
		t.Errorf("expected rider refunded to 50, got %d", got)
	}
	if got := env.balance(t, driver.ID); got != 0 {
		t.Errorf("expected driver back to 0, got %d", got)
	}
}
