package handler

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"campusride/internal/domain"
	"campusride/internal/middleware"
	"campusride/internal/service"
)

// RideHandler handles HTTP requests for rides, ride search and timetable
// suggestions.
type RideHandler struct {
	catalog  *service.RideCatalog
	bookings *service.BookingCoordinator
	trust    *service.TrustScoreAggregator
	match    *service.MatchEngine
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(
	catalog *service.RideCatalog,
	bookings *service.BookingCoordinator,
	trust *service.TrustScoreAggregator,
	match *service.MatchEngine,
) *RideHandler {
	return &RideHandler{
		catalog:  catalog,
		bookings: bookings,
		trust:    trust,
		match:    match,
	}
}

// LocationBody is the route of a ride on the wire.
type LocationBody struct {
	Start       string `json:"start"`
	Destination string `json:"destination"`
}

// CreateRideRequest is the HTTP request body for offering a ride.
type CreateRideRequest struct {
	Location   LocationBody `json:"location"`
	DateTime   time.Time    `json:"date_time"`
	SeatsTotal int          `json:"seats_total"`
	FemaleOnly bool         `json:"female_only"`
	Vibe       string       `json:"vibe"`
}

// UpdateRideStatusRequest is the HTTP request body for a ride transition.
type UpdateRideStatusRequest struct {
	Status string `json:"status"`
}

// RideResponse is the HTTP response for ride data.
type RideResponse struct {
	ID             string       `json:"id"`
	DriverID       string       `json:"driver_id"`
	Location       LocationBody `json:"location"`
	DateTime       time.Time    `json:"date_time"`
	SeatsTotal     int          `json:"seats_total"`
	SeatsAvailable int          `json:"seats_available"`
	FemaleOnly     bool         `json:"female_only"`
	Vibe           string       `json:"vibe"`
	Status         string       `json:"status"`
	DriverTrust    *float64     `json:"driver_trust,omitempty"`
}

func toRideResponse(r *domain.Ride) RideResponse {
	return RideResponse{
		ID:             r.ID,
		DriverID:       r.DriverID,
		Location:       LocationBody{Start: r.Location.Start, Destination: r.Location.Destination},
		DateTime:       r.DateTime,
		SeatsTotal:     r.SeatsTotal,
		SeatsAvailable: r.SeatsAvailable,
		FemaleOnly:     r.FemaleOnly,
		Vibe:           string(r.Vibe),
		Status:         string(r.Status),
	}
}

func toRideResponses(rides []*domain.Ride) []RideResponse {
	response := make([]RideResponse, 0, len(rides))
	for _, r := range rides {
		response = append(response, toRideResponse(r))
	}
	return response
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalidBody("create ride", err))
		return
	}

	ride, err := h.catalog.CreateRide(c.Request.Context(), service.CreateRideRequest{
		DriverID:   middleware.CallerID(c),
		Location:   domain.Location{Start: req.Location.Start, Destination: req.Location.Destination},
		DateTime:   req.DateTime,
		SeatsTotal: req.SeatsTotal,
		FemaleOnly: req.FemaleOnly,
		Vibe:       domain.Vibe(req.Vibe),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toRideResponse(ride))
}

// GetAll handles GET /v1/rides?status=&driver_id=
func (h *RideHandler) GetAll(c *gin.Context) {
	ctx := c.Request.Context()

	status, driverID := domain.RideStatus(c.Query("status")), c.Query("driver_id")
	if status != "" && !status.Valid() {
		respondError(c, invalidQuery("list rides", "ride", fmt.Sprintf("unknown status %q", status)))
		return
	}

	var (
		rides []*domain.Ride
		err   error
	)
	switch {
	case driverID != "":
		rides, err = h.catalog.ListByDriver(ctx, driverID)
		if err == nil && status != "" {
			rides = slices.DeleteFunc(rides, func(r *domain.Ride) bool { return r.Status != status })
		}
	case status != "":
		rides, err = h.catalog.ListByStatus(ctx, status)
	default:
		rides, err = h.catalog.ListAll(ctx)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponses(rides))
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	ride, err := h.catalog.GetRide(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// Search handles GET /v1/rides/search?q=&start=&destination=&female_only=&vibe=&status=
func (h *RideHandler) Search(c *gin.Context) {
	ctx := c.Request.Context()

	vibe, err := service.ParseVibeFilter(c.Query("vibe"))
	if err != nil {
		respondError(c, err)
		return
	}
	femaleOnly, _ := strconv.ParseBool(c.DefaultQuery("female_only", "false"))
	filters := service.SearchFilters{
		Query:       c.Query("q"),
		Start:       c.Query("start"),
		Destination: c.Query("destination"),
		FemaleOnly:  femaleOnly,
		Vibe:        vibe,
		Status:      domain.RideStatus(c.Query("status")),
	}
	if filters.Status != "" && !filters.Status.Valid() {
		respondError(c, &service.Error{Kind: service.ErrValidation, Op: "search rides", Entity: "ride", Rule: "unknown status " + strconv.Quote(c.Query("status"))})
		return
	}

	rides, err := h.catalog.ListAll(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	trust, err := h.trust.TrustScores(ctx, driverIDs(rides))
	if err != nil {
		respondError(c, err)
		return
	}

	response := []RideResponse{}
	for r := range h.match.Search(rides, filters, trust) {
		resp := toRideResponse(r)
		score := trust[r.DriverID]
		resp.DriverTrust = &score
		response = append(response, resp)
	}
	respondJSON(c, http.StatusOK, response)
}

// UpdateStatus handles PATCH /v1/rides/:id/status
func (h *RideHandler) UpdateStatus(c *gin.Context) {
	const op = "update ride status"
	ctx := c.Request.Context()
	rideID := c.Param("id")

	var req UpdateRideStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalidBody(op, err))
		return
	}
	if err := h.requireDriver(c, op, rideID); err != nil {
		respondError(c, err)
		return
	}

	ride, err := h.catalog.UpdateStatus(ctx, rideID, domain.RideStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// Settle handles POST /v1/rides/:id/settle. It re-runs the cancellation
// cascade of a cancelled ride and is safe to repeat.
func (h *RideHandler) Settle(c *gin.Context) {
	const op = "settle cancelled ride"
	rideID := c.Param("id")

	if err := h.requireDriver(c, op, rideID); err != nil {
		respondError(c, err)
		return
	}
	if err := h.bookings.SettleCancelledRide(c.Request.Context(), rideID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RideHandler) requireDriver(c *gin.Context, op, rideID string) error {
	ride, err := h.catalog.GetRide(c.Request.Context(), rideID)
	if err != nil {
		return err
	}
	if ride.DriverID != middleware.CallerID(c) {
		return forbidden(op, "ride", rideID, "only the driver may change this ride")
	}
	return nil
}

func driverIDs(rides []*domain.Ride) []string {
	ids := make([]string, 0, len(rides))
	for _, r := range rides {
		ids = append(ids, r.DriverID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
