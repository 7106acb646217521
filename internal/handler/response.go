package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"campusride/internal/middleware"
	"campusride/internal/service"
)

// contentionRetryAfter is the Retry-After hint, in seconds, sent with 503s
// caused by seat or wallet contention.
const contentionRetryAfter = "1"

// ErrorResponse represents an error response. Kind names the failure class;
// Rule, Entity and ID say which rule failed on what.
type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Rule   string `json:"rule,omitempty"`
	Entity string `json:"entity,omitempty"`
	ID     string `json:"id,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	kind := service.KindOf(err)
	code := mapErrorToHTTPStatus(kind)
	resp := ErrorResponse{Error: err.Error(), Kind: service.KindName(kind)}

	var se *service.Error
	if errors.As(err, &se) {
		resp.Rule = se.Rule
		resp.Entity = se.Entity
		resp.ID = se.ID
	}
	if code >= http.StatusInternalServerError && kind != service.ErrContention {
		resp.Error = "internal error"
	}
	if kind == service.ErrContention {
		c.Header("Retry-After", contentionRetryAfter)
	}

	c.JSON(code, resp)
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service error kinds to HTTP status codes.
func mapErrorToHTTPStatus(kind error) int {
	switch kind {
	case service.ErrNotFound:
		return http.StatusNotFound
	case service.ErrValidation:
		return http.StatusBadRequest
	case service.ErrGenderRestriction, service.ErrForbidden:
		return http.StatusForbidden
	case service.ErrInvalidTransition, service.ErrInsufficientSeats, service.ErrDuplicateRating:
		return http.StatusConflict
	case service.ErrInsufficientBalance:
		return http.StatusPaymentRequired
	case service.ErrContention:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// invalidBody reports a request body that could not be decoded.
func invalidBody(op string, err error) error {
	return &service.Error{Kind: service.ErrValidation, Op: op, Rule: "invalid request body", Err: err}
}

// invalidQuery reports a query parameter the endpoint cannot use.
func invalidQuery(op, entity, rule string) error {
	return &service.Error{Kind: service.ErrValidation, Op: op, Entity: entity, Rule: rule}
}

// forbidden reports a caller acting on an entity it does not own.
func forbidden(op, entity, id, rule string) error {
	return &service.Error{Kind: service.ErrForbidden, Op: op, Entity: entity, ID: id, Rule: rule}
}

// requireSelf fails unless the caller is userID.
func requireSelf(c *gin.Context, op, userID string) error {
	if middleware.CallerID(c) != userID {
		return forbidden(op, "profile", userID, "only the account owner may do this")
	}
	return nil
}
