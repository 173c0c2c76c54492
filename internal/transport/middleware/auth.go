package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/centledger/centledger/internal/auth/token"
	"github.com/centledger/centledger/pkg/logger"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// UserIDKey is the context key for the authenticated user's ID
	UserIDKey ContextKey = "user_id"
	// UserEmailKey is the context key for the authenticated user's email
	UserEmailKey ContextKey = "user_email"
)

// UserValidator resolves a bearer token to the user it belongs to. The
// identity service validates locally against its signing secret; the ledger
// service delegates over the network to the identity service.
type UserValidator interface {
	ValidateUserToken(ctx context.Context, tokenString string) (uuid.UUID, string, error)
}

// Auth returns a middleware that authenticates end-user bearer tokens and
// places the principal into the request context. Every failure, including a
// validator that cannot be reached, yields 401.
func Auth(v UserValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or malformed authorization header")
				return
			}

			userID, email, err := v.ValidateUserToken(r.Context(), tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			ctx = context.WithValue(ctx, UserEmailKey, email)
			ctx = context.WithValue(ctx, logger.UserIDKey, userID.String())

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InternalAuth returns a middleware that admits only requests carrying a
// valid service-to-service token. It protects endpoints that must never be
// reachable with an end-user credential.
func InternalAuth(svc *token.InternalService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or malformed authorization header")
				return
			}

			if err := svc.Validate(tokenString); err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid internal token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserID extracts the authenticated user's ID from the request context
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

// GetUserEmail extracts the authenticated user's email from the request context
func GetUserEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(UserEmailKey).(string)
	return email, ok
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
