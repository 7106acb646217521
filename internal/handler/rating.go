package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campusride/internal/middleware"
	"campusride/internal/service"
)

// RatingHandler handles HTTP requests for ratings and trust scores.
type RatingHandler struct {
	trust *service.TrustScoreAggregator
}

// NewRatingHandler creates a new RatingHandler.
func NewRatingHandler(trust *service.TrustScoreAggregator) *RatingHandler {
	return &RatingHandler{trust: trust}
}

// SubmitRatingRequest is the HTTP request body for rating a ride partner.
type SubmitRatingRequest struct {
	ToUserID   string `json:"to_user_id"`
	RideID     string `json:"ride_id"`
	Stars      int    `json:"stars"`
	ReviewText string `json:"review_text,omitempty"`
}

// RatingResponse is the HTTP response for a rating.
type RatingResponse struct {
	ID         string    `json:"id"`
	FromUserID string    `json:"from_user_id"`
	ToUserID   string    `json:"to_user_id"`
	RideID     string    `json:"ride_id"`
	Stars      int       `json:"stars"`
	ReviewText string    `json:"review_text,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TrustScoreResponse is the HTTP response for a trust score.
type TrustScoreResponse struct {
	UserID     string  `json:"user_id"`
	TrustScore float64 `json:"trust_score"`
}

// Submit handles POST /v1/ratings
func (h *RatingHandler) Submit(c *gin.Context) {
	var req SubmitRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalidBody("submit rating", err))
		return
	}

	rating, err := h.trust.SubmitRating(c.Request.Context(), service.SubmitRatingRequest{
		FromUserID: middleware.CallerID(c),
		ToUserID:   req.ToUserID,
		RideID:     req.RideID,
		Stars:      req.Stars,
		ReviewText: req.ReviewText,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, RatingResponse{
		ID:         rating.ID,
		FromUserID: rating.FromUserID,
		ToUserID:   rating.ToUserID,
		RideID:     rating.RideID,
		Stars:      rating.Stars,
		ReviewText: rating.ReviewText,
		CreatedAt:  rating.CreatedAt,
	})
}

// ListForUser handles GET /v1/users/:id/ratings
func (h *RatingHandler) ListForUser(c *gin.Context) {
	ratings, err := h.trust.RatingsFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]RatingResponse, 0, len(ratings))
	for _, r := range ratings {
		response = append(response, RatingResponse{
			ID:         r.ID,
			FromUserID: r.FromUserID,
			ToUserID:   r.ToUserID,
			RideID:     r.RideID,
			Stars:      r.Stars,
			ReviewText: r.ReviewText,
			CreatedAt:  r.CreatedAt,
		})
	}
	respondJSON(c, http.StatusOK, response)
}

// TrustScore handles GET /v1/users/:id/trust-score
func (h *RatingHandler) TrustScore(c *gin.Context) {
	userID := c.Param("id")
	score, err := h.trust.TrustScore(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, TrustScoreResponse{UserID: userID, TrustScore: score})
}
