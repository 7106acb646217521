package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campusride/internal/domain"
	"campusride/internal/middleware"
	"campusride/internal/service"
)

// WalletHandler handles HTTP requests for wallets and the ledger.
type WalletHandler struct {
	ledger *service.WalletLedger
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledger *service.WalletLedger) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

// TopUpRequest is the HTTP request body for adding credits.
type TopUpRequest struct {
	Amount int64 `json:"amount"`
}

// TransactionResponse is the HTTP response for a ledger entry.
type TransactionResponse struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Type           string    `json:"type"`
	Amount         int64     `json:"amount"`
	RideID         string    `json:"ride_id,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	ReversesKey    string    `json:"reverses_key,omitempty"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
}

// BalanceResponse is the HTTP response for a derived balance.
type BalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

func toTransactionResponse(tx *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:             tx.ID,
		UserID:         tx.UserID,
		Type:           string(tx.Type),
		Amount:         tx.Amount,
		RideID:         tx.RideID,
		IdempotencyKey: tx.IdempotencyKey,
		ReversesKey:    tx.ReversesKey,
		Description:    tx.Description,
		CreatedAt:      tx.CreatedAt,
	}
}

// TopUp handles POST /v1/wallet/top-up. The Idempotency-Key header protects
// against double credit.
func (h *WalletHandler) TopUp(c *gin.Context) {
	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalidBody("top up", err))
		return
	}

	tx, err := h.ledger.TopUp(c.Request.Context(), middleware.CallerID(c), req.Amount, c.GetHeader(middleware.IdempotencyHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, toTransactionResponse(tx))
}

// Transactions handles GET /v1/users/:id/transactions
func (h *WalletHandler) Transactions(c *gin.Context) {
	userID := c.Param("id")
	if err := requireSelf(c, "list transactions", userID); err != nil {
		respondError(c, err)
		return
	}

	txs, err := h.ledger.Transactions(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		response = append(response, toTransactionResponse(tx))
	}
	respondJSON(c, http.StatusOK, response)
}

// Balance handles GET /v1/users/:id/balance
func (h *WalletHandler) Balance(c *gin.Context) {
	userID := c.Param("id")
	if err := requireSelf(c, "balance", userID); err != nil {
		respondError(c, err)
		return
	}

	balance, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, BalanceResponse{UserID: userID, Balance: balance})
}
