package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// InternalTTL is the validity window of service-to-service tokens. They are
// minted per request, so a minute covers any realistic network round trip.
const InternalTTL = time.Minute

// InternalClaims is the payload of service-to-service tokens. The internal
// flag distinguishes them from end-user tokens even if the secrets were ever
// to collide.
type InternalClaims struct {
	Internal bool `json:"internal"`
	jwt.RegisteredClaims
}

// InternalService mints and validates the short-lived tokens one service
// presents to another. It is keyed on a secret separate from end-user tokens.
type InternalService struct {
	secret []byte
}

// NewInternalService creates an internal token service
func NewInternalService(secret string) *InternalService {
	return &InternalService{secret: []byte(secret)}
}

// Mint signs a new internal token valid for InternalTTL
func (s *InternalService) Mint() (string, error) {
	now := time.Now()
	claims := &InternalClaims{
		Internal: true,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(InternalTTL)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign internal token: %w", err)
	}

	return signed, nil
}

// Validate checks signature, expiry and the internal flag
func (s *InternalService) Validate(tokenString string) error {
	claims := &InternalClaims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !t.Valid {
		return ErrInvalidToken
	}

	if !claims.Internal {
		return ErrMissingClaims
	}

	return nil
}
