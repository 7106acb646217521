package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campusride/internal/auth"
	"campusride/internal/domain"
	"campusride/internal/middleware"
	"campusride/internal/service"
)

// ProfileHandler handles HTTP requests for profiles.
type ProfileHandler struct {
	profiles *service.ProfileService
	issuer   *auth.Issuer
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(profiles *service.ProfileService, issuer *auth.Issuer) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, issuer: issuer}
}

// VehicleBody describes a driver's car on the wire.
type VehicleBody struct {
	Model        string `json:"model"`
	LicensePlate string `json:"license_plate"`
}

// CreateProfileRequest is the HTTP request body for signing up.
type CreateProfileRequest struct {
	Name    string       `json:"name"`
	Email   string       `json:"email"`
	Gender  string       `json:"gender"`
	Role    string       `json:"role,omitempty"`
	Vehicle *VehicleBody `json:"vehicle,omitempty"`
}

// SetRoleRequest is the HTTP request body for switching role.
type SetRoleRequest struct {
	Role string `json:"role"`
}

// UpdateWalletBalanceRequest is the HTTP request body of the balance write.
type UpdateWalletBalanceRequest struct {
	Balance int64 `json:"balance"`
}

// ProfileResponse is the HTTP response for profile data.
type ProfileResponse struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Email         string       `json:"email"`
	Gender        string       `json:"gender"`
	Role          string       `json:"role"`
	TrustScore    float64      `json:"trust_score"`
	WalletBalance int64        `json:"wallet_balance"`
	Vehicle       *VehicleBody `json:"vehicle,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// CreateProfileResponse carries the new profile and its bearer token.
type CreateProfileResponse struct {
	Profile ProfileResponse `json:"profile"`
	Token   string          `json:"token"`
}

func toProfileResponse(p *domain.Profile) ProfileResponse {
	resp := ProfileResponse{
		ID:            p.ID,
		Name:          p.Name,
		Email:         p.Email,
		Gender:        string(p.Gender),
		Role:          string(p.Role),
		TrustScore:    p.TrustScore,
		WalletBalance: p.WalletBalance,
		CreatedAt:     p.CreatedAt,
	}
	if p.Vehicle != nil {
		resp.Vehicle = &VehicleBody{Model: p.Vehicle.Model, LicensePlate: p.Vehicle.LicensePlate}
	}
	return resp
}

// Create handles POST /v1/profiles
func (h *ProfileHandler) Create(c *gin.Context) {
	var req CreateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalidBody("create profile", err))
		return
	}

	in := service.CreateProfileRequest{
		Name:   req.Name,
		Email:  req.Email,
		Gender: domain.Gender(req.Gender),
		Role:   domain.Role(req.Role),
	}
	if req.Vehicle != nil {
		in.Vehicle = &domain.Vehicle{Model: req.Vehicle.Model, LicensePlate: req.Vehicle.LicensePlate}
	}

	profile, err := h.profiles.CreateProfile(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.issuer.Issue(profile.ID, string(profile.Role))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, CreateProfileResponse{Profile: toProfileResponse(profile), Token: token})
}

// GetAll handles GET /v1/profiles
func (h *ProfileHandler) GetAll(c *gin.Context) {
	profiles, err := h.profiles.ListProfiles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]ProfileResponse, 0, len(profiles))
	for _, p := range profiles {
		response = append(response, toProfileResponse(p))
	}
	respondJSON(c, http.StatusOK, response)
}

// Get handles GET /v1/profiles/:id
func (h *ProfileHandler) Get(c *gin.Context) {
	profile, err := h.profiles.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toProfileResponse(profile))
}

// SetRole handles PATCH /v1/profiles/me/role
func (h *ProfileHandler) SetRole(c *gin.Context) {
	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalidBody("set role", err))
		return
	}

	profile, err := h.profiles.SetRole(c.Request.Context(), middleware.CallerID(c), domain.Role(req.Role))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toProfileResponse(profile))
}

// UpdateWalletBalance handles PUT /v1/profiles/me/wallet-balance. The write
// is always refused; balances only move through the ledger.
func (h *ProfileHandler) UpdateWalletBalance(c *gin.Context) {
	var req UpdateWalletBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalidBody("update wallet balance", err))
		return
	}

	if err := h.profiles.UpdateWalletBalance(c.Request.Context(), middleware.CallerID(c), req.Balance); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
