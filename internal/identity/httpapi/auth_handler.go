package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/centledger/centledger/internal/auth/token"
	"github.com/centledger/centledger/internal/identity/user"
	"github.com/centledger/centledger/pkg/logger"
)

// AuthHandler handles login and the service-to-service token validation
// endpoint.
type AuthHandler struct {
	users  *user.Service
	tokens *token.ExternalService
	log    *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(users *user.Service, tokens *token.ExternalService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, log: log}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the authenticated user and a fresh bearer token
type LoginResponse struct {
	User        user.View `json:"user"`
	AccessToken string    `json:"access_token"`
}

// Login handles POST /auth
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}

	u, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
			return
		}
		h.log.WithError(err).Error("login failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to login")
		return
	}

	accessToken, err := h.tokens.Mint(u.ID, u.Email)
	if err != nil {
		h.log.WithError(err).Error("failed to mint access token")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to generate token")
		return
	}

	respondJSON(w, http.StatusOK, LoginResponse{
		User:        u.View(),
		AccessToken: accessToken,
	})
}

// ValidateRequest represents the token validation request body
type ValidateRequest struct {
	UserToken string `json:"user_token"`
}

// ValidateResponse reports the verdict on a user token. UserID and Email are
// present only when the token is valid.
type ValidateResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
}

// ValidateUserJWT handles POST /auth/validate-user-jwt. The route is mounted
// behind the internal-bearer middleware: only other services ever reach it.
// An invalid user token is a negative verdict, not a transport error.
func (h *AuthHandler) ValidateUserJWT(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}

	userID, email, err := h.tokens.Validate(req.UserToken)
	if err != nil {
		respondJSON(w, http.StatusOK, ValidateResponse{Valid: false})
		return
	}

	respondJSON(w, http.StatusOK, ValidateResponse{
		Valid:  true,
		UserID: userID.String(),
		Email:  email,
	})
}
