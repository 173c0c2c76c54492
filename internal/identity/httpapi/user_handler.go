package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/centledger/centledger/internal/identity/user"
	"github.com/centledger/centledger/internal/transport/middleware"
	"github.com/centledger/centledger/pkg/logger"
)

// UserHandler handles user registration and account management
type UserHandler struct {
	users *user.Service
	log   *logger.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(users *user.Service, log *logger.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

// UpdateRequest represents a partial self-update. Absent fields stay as-is.
type UpdateRequest struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Password  *string `json:"password"`
}

// Register handles POST /users
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}

	u, err := h.users.Register(r.Context(), user.RegisterInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	})
	if err != nil {
		h.respondUserError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, u.View())
}

// List handles GET /users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.log.WithError(err).Error("failed to list users")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list users")
		return
	}

	views := make([]user.View, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}

	respondJSON(w, http.StatusOK, views)
}

// Get handles GET /users/{id}. Item endpoints are self-access only.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, targetID, ok := h.principalAndTarget(w, r)
	if !ok {
		return
	}
	if principal != targetID {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "cannot access another user's account")
		return
	}

	u, err := h.users.GetByID(r.Context(), targetID)
	if err != nil {
		h.respondUserError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, u.View())
}

// Update handles PATCH /users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, targetID, ok := h.principalAndTarget(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}

	u, err := h.users.Update(r.Context(), principal, targetID, user.UpdateInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	})
	if err != nil {
		h.respondUserError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, u.View())
}

// Delete handles DELETE /users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, targetID, ok := h.principalAndTarget(w, r)
	if !ok {
		return
	}

	if err := h.users.Delete(r.Context(), principal, targetID); err != nil {
		h.respondUserError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) principalAndTarget(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	principal, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return uuid.Nil, uuid.Nil, false
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_USER_ID", "user id must be a UUID")
		return uuid.Nil, uuid.Nil, false
	}

	return principal, targetID, true
}

func (h *UserHandler) respondUserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, user.ErrEmailConflict):
		respondError(w, http.StatusConflict, "EMAIL_CONFLICT", "user with this email already exists")
	case errors.Is(err, user.ErrInvalidEmail):
		respondError(w, http.StatusBadRequest, "INVALID_EMAIL", "invalid email address")
	case errors.Is(err, user.ErrNameTooShort):
		respondError(w, http.StatusBadRequest, "INVALID_NAME", "first and last name must be at least 2 characters")
	case errors.Is(err, user.ErrPasswordTooShort):
		respondError(w, http.StatusBadRequest, "INVALID_PASSWORD", "password must be at least 6 characters")
	case errors.Is(err, user.ErrForbidden):
		respondError(w, http.StatusForbidden, "FORBIDDEN", "cannot access another user's account")
	case errors.Is(err, user.ErrNotFound):
		respondError(w, http.StatusNotFound, "USER_NOT_FOUND", "user not found")
	default:
		h.log.WithError(err).Error("user operation failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
