package identityclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/centledger/centledger/internal/auth/token"
	"github.com/centledger/centledger/pkg/logger"
)

// ErrUnauthorized covers every validation failure: a bad user token, a
// rejected internal credential, and any network or decoding problem on the
// way. Callers must not grant access on ambiguity.
var ErrUnauthorized = errors.New("user token rejected by identity service")

const validatePath = "/api/v1/auth/validate-user-jwt"

// Client calls the identity service to validate end-user tokens. The ledger
// never holds the external signing secret; the identity service's answer is
// authoritative.
type Client struct {
	baseURL  string
	internal *token.InternalService
	http     *http.Client
	log      *logger.Logger
}

// New creates an identity client
func New(baseURL string, internal *token.InternalService, log *logger.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		internal: internal,
		http:     &http.Client{Timeout: 5 * time.Second},
		log:      log.WithField("component", "identity_client"),
	}
}

type validateRequest struct {
	UserToken string `json:"user_token"`
}

type validateResponse struct {
	Valid  bool      `json:"valid"`
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

// ValidateUserToken asks the identity service whether userToken is valid and
// returns the user it belongs to. The request itself is authenticated with a
// freshly minted internal token.
func (c *Client) ValidateUserToken(ctx context.Context, userToken string) (uuid.UUID, string, error) {
	internalToken, err := c.internal.Mint()
	if err != nil {
		c.log.WithError(err).Error("failed to mint internal token")
		return uuid.Nil, "", ErrUnauthorized
	}

	body, err := json.Marshal(validateRequest{UserToken: userToken})
	if err != nil {
		return uuid.Nil, "", ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+validatePath, bytes.NewReader(body))
	if err != nil {
		return uuid.Nil, "", ErrUnauthorized
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+internalToken)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithError(err).Warn("identity service unreachable")
		return uuid.Nil, "", ErrUnauthorized
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return uuid.Nil, "", fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	}

	var out validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.log.WithError(err).Warn("malformed response from identity service")
		return uuid.Nil, "", ErrUnauthorized
	}
	if !out.Valid || out.UserID == uuid.Nil {
		return uuid.Nil, "", ErrUnauthorized
	}

	return out.UserID, out.Email, nil
}
