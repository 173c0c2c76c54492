package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrMissingClaims = errors.New("token is missing required claims")
)

// ExternalClaims is the payload of end-user tokens. The user ID travels in
// the registered Subject claim.
type ExternalClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ExternalService mints and validates end-user bearer tokens.
type ExternalService struct {
	secret []byte
	ttl    time.Duration
}

// NewExternalService creates an external token service
func NewExternalService(secret string, ttl time.Duration) *ExternalService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ExternalService{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Mint signs a new token for the given user
func (s *ExternalService) Mint(userID uuid.UUID, email string) (string, error) {
	now := time.Now()
	claims := &ExternalClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Validate parses the token and returns the user ID it was minted for.
// Tokens missing sub or email are rejected even when the signature is valid.
func (s *ExternalService) Validate(tokenString string) (uuid.UUID, string, error) {
	claims := &ExternalClaims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		// Reject anything other than HMAC to prevent algorithm confusion
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !t.Valid {
		return uuid.Nil, "", ErrInvalidToken
	}

	if claims.Subject == "" || claims.Email == "" {
		return uuid.Nil, "", ErrMissingClaims
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", ErrMissingClaims
	}

	return userID, claims.Email, nil
}
