package repository

import (
	"context"

	"campusride/internal/domain"
)

// ProfileRepository defines the persistence operations for profiles.
type ProfileRepository interface {
	// Create adds a new profile. Returns ErrDuplicate if the email is taken.
	Create(ctx context.Context, profile *domain.Profile) error

	// GetByID retrieves a profile by ID.
	GetByID(ctx context.Context, id string) (*domain.Profile, error)

	// GetAll retrieves all profiles.
	GetAll(ctx context.Context) ([]*domain.Profile, error)

	// UpdateRole switches the role a user acts in.
	UpdateRole(ctx context.Context, id string, role domain.Role) error

	// UpdateTrustScore refreshes the cached trust score.
	UpdateTrustScore(ctx context.Context, id string, score float64) error

	// UpdateWalletBalance refreshes the cached balance recomputed from the ledger.
	UpdateWalletBalance(ctx context.Context, id string, balance int64) error
}
