package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campusride/internal/domain"
	"campusride/internal/middleware"
	"campusride/internal/service"
)

// BookingHandler handles HTTP requests for bookings.
type BookingHandler struct {
	coordinator *service.BookingCoordinator
	catalog     *service.RideCatalog
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(coordinator *service.BookingCoordinator, catalog *service.RideCatalog) *BookingHandler {
	return &BookingHandler{coordinator: coordinator, catalog: catalog}
}

// RequestBookingRequest is the HTTP request body for booking seats.
type RequestBookingRequest struct {
	Seats int `json:"seats"`
}

// UpdateBookingStatusRequest is the HTTP request body for a driver decision.
type UpdateBookingStatusRequest struct {
	Status string `json:"status"`
}

// BookingResponse is the HTTP response for booking data.
type BookingResponse struct {
	ID          string     `json:"id"`
	RideID      string     `json:"ride_id"`
	RiderID     string     `json:"rider_id"`
	SeatsBooked int        `json:"seats_booked"`
	Fare        int64      `json:"fare"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

func (h *BookingHandler) toResponse(b *domain.Booking) BookingResponse {
	resp := BookingResponse{
		ID:          b.ID,
		RideID:      b.RideID,
		RiderID:     b.RiderID,
		SeatsBooked: b.SeatsBooked,
		Fare:        h.coordinator.Fare(b.SeatsBooked),
		Status:      string(b.Status),
		CreatedAt:   b.CreatedAt,
	}
	if !b.ResolvedAt.IsZero() {
		resolved := b.ResolvedAt
		resp.ResolvedAt = &resolved
	}
	return resp
}

// Request handles POST /v1/rides/:id/bookings
func (h *BookingHandler) Request(c *gin.Context) {
	var req RequestBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalidBody("request booking", err))
		return
	}

	booking, err := h.coordinator.RequestBooking(c.Request.Context(), c.Param("id"), middleware.CallerID(c), req.Seats)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, h.toResponse(booking))
}

// ListByRide handles GET /v1/rides/:id/bookings
func (h *BookingHandler) ListByRide(c *gin.Context) {
	bookings, err := h.coordinator.ListByRide(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		response = append(response, h.toResponse(b))
	}
	respondJSON(c, http.StatusOK, response)
}

// Get handles GET /v1/bookings/:id
func (h *BookingHandler) Get(c *gin.Context) {
	booking, err := h.coordinator.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, h.toResponse(booking))
}

// UpdateStatus handles PATCH /v1/bookings/:id/status. Only the ride's driver
// decides.
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	const op = "update booking status"
	ctx := c.Request.Context()
	bookingID := c.Param("id")

	var req UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalidBody(op, err))
		return
	}

	booking, err := h.coordinator.GetBooking(ctx, bookingID)
	if err != nil {
		respondError(c, err)
		return
	}
	ride, err := h.catalog.GetRide(ctx, booking.RideID)
	if err != nil {
		respondError(c, err)
		return
	}
	if ride.DriverID != middleware.CallerID(c) {
		respondError(c, forbidden(op, "booking", bookingID, "only the ride's driver may decide"))
		return
	}

	booking, err = h.coordinator.ResolveBooking(ctx, bookingID, domain.BookingStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, h.toResponse(booking))
}
