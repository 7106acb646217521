package domain

import "time"

// BookingStatus represents the approval state of a booking.
type BookingStatus string

const (
	BookingStatusPending  BookingStatus = "pending"
	BookingStatusApproved BookingStatus = "approved"
	BookingStatusRejected BookingStatus = "rejected"
)

// bookingTransitions holds the transitions a caller may request.
// Approved -> Rejected is reserved for ride cancellation, which refunds the fare.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending: {BookingStatusApproved, BookingStatusRejected},
}

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusApproved, BookingStatusRejected:
		return true
	}
	return false
}

// CanTransitionTo reports whether a caller may move a booking from s to next.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Booking is a rider's request to occupy seats on a ride.
type Booking struct {
	ID          string
	RideID      string
	RiderID     string
	SeatsBooked int
	Status      BookingStatus
	CreatedAt   time.Time
	ResolvedAt  time.Time
}
