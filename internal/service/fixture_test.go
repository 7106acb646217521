package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"campusride/internal/domain"
	"campusride/internal/events"
	"campusride/internal/lock"
	"campusride/internal/repository"
	"campusride/internal/repository/memory"
)

var testBackoff = Backoff{Attempts: 5, BaseDelay: time.Millisecond}

// testEnv wires every service over in-memory stores, the way cmd/server does
// with STORE_DRIVER=memory.
type testEnv struct {
	rides    *memory.RideRepository
	bookings *memory.BookingRepository
	txs      *memory.TransactionRepository
	ratings  *memory.RatingRepository
	profiles *memory.ProfileRepository
	locker   *lock.LocalLocker
	bus      *events.Bus

	profileSvc *ProfileService
	catalog    *RideCatalog
	ledger     *WalletLedger
	coord      *BookingCoordinator
	trust      *TrustScoreAggregator

	seq atomic.Int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil, nil)
}

// newTestEnvWith lets a test swap the locker or booking store.
func newTestEnvWith(t *testing.T, locker lock.Locker, bookings repository.BookingRepository) *testEnv {
	t.Helper()

	e := &testEnv{
		rides:    memory.NewRideRepository(),
		bookings: memory.NewBookingRepository(),
		txs:      memory.NewTransactionRepository(),
		ratings:  memory.NewRatingRepository(),
		profiles: memory.NewProfileRepository(),
		locker:   lock.NewLocalLocker(),
		bus:      events.NewBus(),
	}
	if locker == nil {
		locker = e.locker
	}
	var bookingRepo repository.BookingRepository = e.bookings
	if bookings != nil {
		bookingRepo = bookings
	}

	e.profileSvc = NewProfileService(e.profiles, nil)
	e.catalog = NewRideCatalog(e.rides, e.profiles, locker, e.bus, nil, time.Second)
	e.ledger = NewWalletLedger(e.txs, memory.NewLedgerStore(e.txs, e.profiles), e.profiles, e.locker, e.bus, nil, testBackoff)
	e.coord = NewBookingCoordinator(bookingRepo, e.profiles, e.catalog, e.ledger, e.bus, nil, DefaultFarePerSeat, testBackoff)
	e.trust = NewTrustScoreAggregator(e.ratings, e.profiles, e.rides, nil, e.locker, e.bus, nil, testBackoff)

	e.bus.Subscribe(events.RideCancelled, e.coord.HandleRideCancelled)
	return e
}

func (e *testEnv) profile(t *testing.T, role domain.Role, gender domain.Gender) *domain.Profile {
	t.Helper()
	n := e.seq.Add(1)
	p, err := e.profileSvc.CreateProfile(context.Background(), CreateProfileRequest{
		Name:   fmt.Sprintf("user %d", n),
		Email:  fmt.Sprintf("user%d@campus.edu", n),
		Gender: gender,
		Role:   role,
	})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return p
}

func (e *testEnv) driver(t *testing.T) *domain.Profile {
	return e.profile(t, domain.RoleDriver, domain.GenderMale)
}

func (e *testEnv) rider(t *testing.T, gender domain.Gender) *domain.Profile {
	return e.profile(t, domain.RoleRider, gender)
}

func (e *testEnv) ride(t *testing.T, driverID string, seats int, femaleOnly bool) *domain.Ride {
	t.Helper()
	r, err := e.catalog.CreateRide(context.Background(), CreateRideRequest{
		DriverID:   driverID,
		Location:   domain.Location{Start: "North Hostel", Destination: "IIT Campus"},
		DateTime:   time.Now().Add(2 * time.Hour),
		SeatsTotal: seats,
		FemaleOnly: femaleOnly,
		Vibe:       domain.VibeMusic,
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return r
}

func (e *testEnv) fund(t *testing.T, userID string, amount int64) {
	t.Helper()
	if _, err := e.ledger.TopUp(context.Background(), userID, amount, ""); err != nil {
		t.Fatalf("top up: %v", err)
	}
}

func (e *testEnv) seatsAvailable(t *testing.T, rideID string) int {
	t.Helper()
	r, err := e.rides.GetByID(context.Background(), rideID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	return r.SeatsAvailable
}

func (e *testEnv) balance(t *testing.T, userID string) int64 {
	t.Helper()
	b, err := e.ledger.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b
}

func expectKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}

// busyLocker never grants a lock.
type busyLocker struct {
	attempts atomic.Int64
}

func (l *busyLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.attempts.Add(1)
	return "", false, nil
}

func (l *busyLocker) Release(ctx context.Context, key, token string) error { return nil }
