package domain

import "time"

const (
	MinStars = 1
	MaxStars = 5
)

// Rating is an immutable peer review left after a ride.
type Rating struct {
	ID         string
	FromUserID string
	ToUserID   string
	RideID     string
	Stars      int
	ReviewText string
	CreatedAt  time.Time
}

// RatingKey identifies the single rating allowed per (from, to, ride).
type RatingKey struct {
	FromUserID string
	ToUserID   string
	RideID     string
}

// Key returns the uniqueness key of r.
func (r *Rating) Key() RatingKey {
	return RatingKey{FromUserID: r.FromUserID, ToUserID: r.ToUserID, RideID: r.RideID}
}
