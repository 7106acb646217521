package service

import (
	"context"
	"errors"
	"testing"

	"campusride/internal/domain"
)

func TestCreateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.profileSvc.CreateProfile(ctx, CreateProfileRequest{
		Name:    " Asha ",
		Email:   "Asha@Campus.edu",
		Gender:  domain.GenderFemale,
		Vehicle: &domain.Vehicle{Model: "Swift", LicensePlate: "ka01 ab 1234"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Role != domain.RoleRider {
		t.Errorf("expected default role rider, got %s", p.Role)
	}
	if p.Name != "Asha" || p.Email != "asha@campus.edu" {
		t.Errorf("expected trimmed name and lowercased email, got %q %q", p.Name, p.Email)
	}
	if p.Vehicle == nil || p.Vehicle.LicensePlate != "KA01 AB 1234" {
		t.Errorf("unexpected vehicle %+v", p.Vehicle)
	}
	if p.TrustScore != 0 || p.WalletBalance != 0 {
		t.Errorf("expected zero derived values, got %v/%d", p.TrustScore, p.WalletBalance)
	}

	_, err = env.profileSvc.CreateProfile(ctx, CreateProfileRequest{Name: "Other", Email: "asha@campus.edu", Gender: domain.GenderMale})
	expectKind(t, err, ErrValidation)

	all, _ := env.profileSvc.ListProfiles(ctx)
	if len(all) != 1 {
		t.Errorf("expected 1 profile, got %d", len(all))
	}
}

func TestCreateProfile_Validation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		req  CreateProfileRequest
	}{
		{"missing name", CreateProfileRequest{Email: "a@b.c", Gender: domain.GenderMale}},
		{"bad email", CreateProfileRequest{Name: "A", Email: "nobody", Gender: domain.GenderMale}},
		{"email without host", CreateProfileRequest{Name: "A", Email: "a@", Gender: domain.GenderMale}},
		{"unknown gender", CreateProfileRequest{Name: "A", Email: "a@b.c", Gender: "x"}},
		{"unknown role", CreateProfileRequest{Name: "A", Email: "a@b.c", Gender: domain.GenderMale, Role: "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.profileSvc.CreateProfile(context.Background(), tt.req)
			expectKind(t, err, ErrValidation)
		})
	}
}

func TestSetRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.rider(t, domain.GenderFemale)

	p, err := env.profileSvc.SetRole(ctx, user.ID, domain.RoleDriver)
	if err != nil {
		t.Fatalf("set role: %v", err)
	}
	if p.Role != domain.RoleDriver {
		t.Errorf("expected driver, got %s", p.Role)
	}

	// A former rider can now offer rides.
	env.ride(t, user.ID, 2, true)

	_, err = env.profileSvc.SetRole(ctx, user.ID, "pilot")
	expectKind(t, err, ErrValidation)
	_, err = env.profileSvc.SetRole(ctx, "ghost", domain.RoleRider)
	expectKind(t, err, ErrNotFound)
}

func TestUpdateWalletBalance_IsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.rider(t, domain.GenderMale)
	env.fund(t, user.ID, 20)

	err := env.profileSvc.UpdateWalletBalance(ctx, user.ID, 1000)
	expectKind(t, err, ErrValidation)

	var svcErr *Error
	if !errors.As(err, &svcErr) || svcErr.Rule != RuleWalletBalanceDerived {
		t.Errorf("expected rule %s, got %v", RuleWalletBalanceDerived, err)
	}
	if env.txs.Count() != 1 {
		t.Errorf("expected the ledger untouched, got %d entries", env.txs.Count())
	}
	p, _ := env.profileSvc.GetProfile(ctx, user.ID)
	if p.WalletBalance != 20 {
		t.Errorf("expected cached balance 20, got %d", p.WalletBalance)
	}
}

func TestErrorCarriesContext(t *testing.T) {
	err := newError(ErrInsufficientSeats, "reserve seats", "ride", "r-1", "requested 2 seats, 1 available")

	if !errors.Is(err, ErrInsufficientSeats) {
		t.Error("expected errors.Is to match the kind")
	}
	if KindOf(err) != ErrInsufficientSeats || KindName(KindOf(err)) != "InsufficientSeats" {
		t.Errorf("unexpected kind %v", KindOf(err))
	}
	want := "reserve seats: insufficient seats (ride r-1): requested 2 seats, 1 available"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}

	if KindOf(errors.New("boom")) != nil {
		t.Error("expected unclassified error to have no kind")
	}
}
