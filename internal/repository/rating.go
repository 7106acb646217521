package repository

import (
	"context"

	"campusride/internal/domain"
)

// RatingRepository defines the persistence operations for ratings.
type RatingRepository interface {
	// Create persists a rating. Returns ErrDuplicate if a rating with the
	// same (from, to, ride) already exists.
	Create(ctx context.Context, rating *domain.Rating) error

	// GetByToUserID retrieves the ratings a user has received.
	GetByToUserID(ctx context.Context, userID string) ([]*domain.Rating, error)
}
