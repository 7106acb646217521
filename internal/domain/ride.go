package domain

import "time"

// RideStatus represents the lifecycle state of a ride.
type RideStatus string

const (
	RideStatusScheduled RideStatus = "scheduled"
	RideStatusActive    RideStatus = "active"
	RideStatusCompleted RideStatus = "completed"
	RideStatusCancelled RideStatus = "cancelled"
)

// rideTransitions is the ride state machine. Completed and Cancelled are terminal.
var rideTransitions = map[RideStatus][]RideStatus{
	RideStatusScheduled: {RideStatusActive, RideStatusCancelled},
	RideStatusActive:    {RideStatusCompleted, RideStatusCancelled},
}

// Valid reports whether s is a known ride status.
func (s RideStatus) Valid() bool {
	switch s {
	case RideStatusScheduled, RideStatusActive, RideStatusCompleted, RideStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s RideStatus) Terminal() bool {
	return len(rideTransitions[s]) == 0
}

// CanTransitionTo reports whether the ride state machine allows s -> next.
func (s RideStatus) CanTransitionTo(next RideStatus) bool {
	for _, allowed := range rideTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Vibe is the atmosphere a driver declares for a ride.
type Vibe string

const (
	VibeSilent     Vibe = "silent"
	VibeMusic      Vibe = "music"
	VibeNetworking Vibe = "networking"
)

// Valid reports whether v is a known vibe.
func (v Vibe) Valid() bool {
	switch v {
	case VibeSilent, VibeMusic, VibeNetworking:
		return true
	}
	return false
}

// Location is the route of a ride.
type Location struct {
	Start       string
	Destination string
}

// Ride represents a driver-offered trip with a fixed seat capacity.
type Ride struct {
	ID             string
	DriverID       string
	Location       Location
	DateTime       time.Time
	SeatsTotal     int
	SeatsAvailable int
	FemaleOnly     bool
	Vibe           Vibe
	Status         RideStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SeatsReserved returns the number of seats currently held by bookings.
func (r *Ride) SeatsReserved() int {
	return r.SeatsTotal - r.SeatsAvailable
}
