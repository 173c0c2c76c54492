package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/centledger/centledger/internal/ledger/posting"
	"github.com/centledger/centledger/internal/transport/middleware"
	"github.com/centledger/centledger/pkg/logger"
)

// IdempotencyKeyHeader carries the client-chosen key that makes a posting
// safe to retry.
const IdempotencyKeyHeader = "x-idempotency-key"

// TransactionHandler handles the write path and the read endpoints over the
// transaction log.
type TransactionHandler struct {
	postings *posting.Service
	log      *logger.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(postings *posting.Service, log *logger.Logger) *TransactionHandler {
	return &TransactionHandler{postings: postings, log: log}
}

// CreateTransactionRequest represents the posting request body
type CreateTransactionRequest struct {
	Amount int64        `json:"amount"`
	Type   posting.Type `json:"type"`
}

// insufficientBalanceDetails is the details payload of a rejected debit
type insufficientBalanceDetails struct {
	CurrentBalance  int64 `json:"current_balance"`
	RequestedAmount int64 `json:"requested_amount"`
	Shortage        int64 `json:"shortage"`
}

// Create handles POST /transactions. Both a fresh commit and an idempotent
// replay answer 200 with the receipt.
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}

	receipt, _, err := h.postings.Post(r.Context(), posting.Request{
		UserID:         userID,
		Type:           req.Type,
		Amount:         req.Amount,
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		h.respondPostingError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, receipt)
}

// List handles GET /transactions with an optional type filter
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	var typeFilter *posting.Type
	if raw := r.URL.Query().Get("type"); raw != "" {
		tf := posting.Type(raw)
		typeFilter = &tf
	}

	txns, err := h.postings.ListTransactions(r.Context(), userID, typeFilter)
	if err != nil {
		if errors.Is(err, posting.ErrInvalidType) {
			respondError(w, http.StatusBadRequest, "INVALID_TYPE", "type must be CREDIT or DEBIT")
			return
		}
		h.log.WithError(err).Error("failed to list transactions")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list transactions")
		return
	}

	if txns == nil {
		txns = []*posting.Transaction{}
	}
	respondJSON(w, http.StatusOK, txns)
}

// BalanceResponse represents the balance endpoint body
type BalanceResponse struct {
	Amount int64 `json:"amount"`
}

// GetBalance handles GET /balance
func (h *TransactionHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	amount, err := h.postings.GetBalance(r.Context(), userID)
	if err != nil {
		h.log.WithError(err).Error("failed to read balance")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to read balance")
		return
	}

	respondJSON(w, http.StatusOK, BalanceResponse{Amount: amount})
}

func (h *TransactionHandler) respondPostingError(w http.ResponseWriter, err error) {
	var insufficient *posting.InsufficientBalanceError
	switch {
	case errors.Is(err, posting.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be a positive integer")
	case errors.Is(err, posting.ErrInvalidType):
		respondError(w, http.StatusBadRequest, "INVALID_TYPE", "type must be CREDIT or DEBIT")
	case errors.As(err, &insufficient):
		respondErrorDetails(w, http.StatusBadRequest, "INSUFFICIENT_BALANCE", "debit would overdraw the account",
			insufficientBalanceDetails{
				CurrentBalance:  insufficient.CurrentBalance,
				RequestedAmount: insufficient.RequestedAmount,
				Shortage:        insufficient.Shortage(),
			})
	case errors.Is(err, posting.ErrRetriesExhausted):
		h.log.WithError(err).Error("posting retries exhausted")
		respondError(w, http.StatusInternalServerError, "WRITE_CONFLICT", "write conflict persisted, please retry")
	default:
		h.log.WithError(err).Error("posting failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
