package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campusride/internal/auth"
	"campusride/internal/events"
	"campusride/internal/lock"
	"campusride/internal/middleware"
	"campusride/internal/repository/memory"
	"campusride/internal/service"
)

// testServer serves the v1 routes over in-memory stores.
type testServer struct {
	router *gin.Engine
	seq    atomic.Int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	profiles := memory.NewProfileRepository()
	rides := memory.NewRideRepository()
	locker := lock.NewLocalLocker()
	bus := events.NewBus()
	backoff := service.Backoff{Attempts: 3, BaseDelay: time.Millisecond}

	profileSvc := service.NewProfileService(profiles, nil)
	catalog := service.NewRideCatalog(rides, profiles, locker, bus, nil, time.Second)
	txs := memory.NewTransactionRepository()
	ledger := service.NewWalletLedger(txs, memory.NewLedgerStore(txs, profiles), profiles, locker, bus, nil, backoff)
	coord := service.NewBookingCoordinator(memory.NewBookingRepository(), profiles, catalog, ledger, bus, nil, service.DefaultFarePerSeat, backoff)
	trust := service.NewTrustScoreAggregator(memory.NewRatingRepository(), profiles, rides, nil, locker, bus, nil, backoff)
	match := service.NewMatchEngine(service.DefaultCampus, service.DefaultMinLead, service.DefaultMaxLead)
	bus.Subscribe(events.RideCancelled, coord.HandleRideCancelled)

	issuer, err := auth.NewIssuer("handler-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}

	profileH := NewProfileHandler(profileSvc, issuer)
	rideH := NewRideHandler(catalog, coord, trust, match)
	bookingH := NewBookingHandler(coord, catalog)
	walletH := NewWalletHandler(ledger)
	ratingH := NewRatingHandler(trust)

	r := gin.New()
	v1 := r.Group("/v1")
	v1.POST("/profiles", profileH.Create)
	v1.GET("/profiles", profileH.GetAll)
	v1.GET("/profiles/:id", profileH.Get)
	v1.GET("/rides", rideH.GetAll)
	v1.GET("/rides/search", rideH.Search)
	v1.GET("/rides/:id", rideH.GetRide)
	v1.GET("/rides/:id/bookings", bookingH.ListByRide)
	v1.GET("/bookings/:id", bookingH.Get)
	v1.GET("/users/:id/ratings", ratingH.ListForUser)
	v1.GET("/users/:id/trust-score", ratingH.TrustScore)
	v1.POST("/timetable/suggestions", rideH.Suggest)

	me := v1.Group("", middleware.Authenticate(issuer, zap.NewNop()))
	me.PATCH("/profiles/me/role", profileH.SetRole)
	me.PUT("/profiles/me/wallet-balance", profileH.UpdateWalletBalance)
	me.POST("/rides", rideH.CreateRide)
	me.PATCH("/rides/:id/status", rideH.UpdateStatus)
	me.POST("/rides/:id/settle", rideH.Settle)
	me.POST("/rides/:id/bookings", bookingH.Request)
	me.PATCH("/bookings/:id/status", bookingH.UpdateStatus)
	me.POST("/wallet/top-up", walletH.TopUp)
	me.GET("/users/:id/transactions", walletH.Transactions)
	me.GET("/users/:id/balance", walletH.Balance)
	me.POST("/ratings", ratingH.Submit)

	return &testServer{router: r}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// user is a signed-up profile and its bearer token.
type user struct {
	ID    string
	Token string
}

func (s *testServer) signUp(t *testing.T, role, gender string) user {
	t.Helper()
	n := s.seq.Add(1)
	w := s.do(t, http.MethodPost, "/v1/profiles", "", CreateProfileRequest{
		Name:   fmt.Sprintf("student %d", n),
		Email:  fmt.Sprintf("student%d@campus.edu", n),
		Gender: gender,
		Role:   role,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("sign up: status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp CreateProfileResponse
	decode(t, w, &resp)
	return user{ID: resp.Profile.ID, Token: resp.Token}
}

func (s *testServer) offerRide(t *testing.T, driver user, seats int, femaleOnly bool) RideResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/rides", driver.Token, CreateRideRequest{
		Location:   LocationBody{Start: "North Hostel", Destination: "IIT Campus"},
		DateTime:   time.Now().Add(3 * time.Hour),
		SeatsTotal: seats,
		FemaleOnly: femaleOnly,
		Vibe:       "music",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("offer ride: status = %d, body = %s", w.Code, w.Body.String())
	}
	var ride RideResponse
	decode(t, w, &ride)
	return ride
}

func (s *testServer) topUp(t *testing.T, u user, amount int64) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/wallet/top-up", u.Token, TopUpRequest{Amount: amount})
	if w.Code != http.StatusCreated {
		t.Fatalf("top up: status = %d, body = %s", w.Code, w.Body.String())
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, code int, kind string) ErrorResponse {
	t.Helper()
	if w.Code != code {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, code, w.Body.String())
	}
	var resp ErrorResponse
	decode(t, w, &resp)
	if resp.Kind != kind {
		t.Fatalf("kind = %q, want %q (body %s)", resp.Kind, kind, w.Body.String())
	}
	return resp
}
