package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"campusride/internal/domain"
	"campusride/internal/logging"
	"campusride/internal/repository"
)

// RuleWalletBalanceDerived is the rule reported when a client tries to set a
// balance directly.
const RuleWalletBalanceDerived = "wallet_balance_is_derived"

// ProfileService manages user profiles.
type ProfileService struct {
	profiles repository.ProfileRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewProfileService creates a new ProfileService.
func NewProfileService(profiles repository.ProfileRepository, logger *zap.Logger) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

// CreateProfileRequest contains the parameters for signing up.
type CreateProfileRequest struct {
	Name    string
	Email   string
	Gender  domain.Gender
	Role    domain.Role // defaults to rider
	Vehicle *domain.Vehicle
}

// CreateProfile registers a user with a zero balance and no trust score.
func (s *ProfileService) CreateProfile(ctx context.Context, req CreateProfileRequest) (*domain.Profile, error) {
	const op = "create profile"

	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" {
		return nil, validationError(op, "profile", "name is required")
	}
	if at := strings.IndexByte(email, '@'); at < 1 || at == len(email)-1 {
		return nil, validationError(op, "profile", "email must look like user@host")
	}
	if !req.Gender.Valid() {
		return nil, validationError(op, "profile", fmt.Sprintf("unknown gender %q", req.Gender))
	}
	role := req.Role
	if role == "" {
		role = domain.RoleRider
	}
	if !role.Valid() {
		return nil, validationError(op, "profile", fmt.Sprintf("unknown role %q", req.Role))
	}

	var vehicle *domain.Vehicle
	if req.Vehicle != nil && (req.Vehicle.Model != "" || req.Vehicle.LicensePlate != "") {
		vehicle = &domain.Vehicle{
			Model:        strings.TrimSpace(req.Vehicle.Model),
			LicensePlate: strings.ToUpper(strings.TrimSpace(req.Vehicle.LicensePlate)),
		}
	}

	profile := &domain.Profile{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		Gender:    req.Gender,
		Role:      role,
		Vehicle:   vehicle,
		CreatedAt: s.now(),
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, validationError(op, "profile", "email is already registered")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("profile created", zap.String("user_id", profile.ID), zap.String("role", string(role)))
	return profile, nil
}

// GetProfile retrieves a profile by ID.
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	if userID == "" {
		return nil, validationError("get profile", "profile", "user id is required")
	}
	p, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, wrapStore("get profile", "profile", userID, err)
	}
	return p, nil
}

// ListProfiles returns every profile.
func (s *ProfileService) ListProfiles(ctx context.Context) ([]*domain.Profile, error) {
	return s.profiles.GetAll(ctx)
}

// SetRole switches the mode a user acts in.
func (s *ProfileService) SetRole(ctx context.Context, userID string, role domain.Role) (*domain.Profile, error) {
	const op = "set role"

	if !role.Valid() {
		return nil, validationError(op, "profile", fmt.Sprintf("unknown role %q", role))
	}
	if err := s.profiles.UpdateRole(ctx, userID, role); err != nil {
		return nil, wrapStore(op, "profile", userID, err)
	}
	return s.GetProfile(ctx, userID)
}

// UpdateWalletBalance always fails: a balance is derived from the ledger and
// cannot be written. It never touches the ledger.
func (s *ProfileService) UpdateWalletBalance(ctx context.Context, userID string, newBalance int64) error {
	const op = "update wallet balance"

	if _, err := s.profiles.GetByID(ctx, userID); err != nil {
		return wrapStore(op, "profile", userID, err)
	}
	s.logger.Info("rejected direct balance write",
		zap.String("user_id", userID),
		zap.Int64("requested_balance", newBalance),
	)
	return newError(ErrValidation, op, "profile", userID, RuleWalletBalanceDerived)
}
