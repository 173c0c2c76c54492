package identityclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centledger/centledger/internal/auth/token"
	"github.com/centledger/centledger/pkg/logger"
)

const testSecret = "internal-test-secret"

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	internal := token.NewInternalService(testSecret)
	return New(srv.URL, internal, logger.New("test", io.Discard)), srv
}

func TestValidateUserToken_Success(t *testing.T) {
	wantID := uuid.New()
	internal := token.NewInternalService(testSecret)

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/auth/validate-user-jwt", r.URL.Path)

		// Carries a valid internal bearer token
		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		require.NoError(t, internal.Validate(bearer))

		var body struct {
			UserToken string `json:"user_token"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user-token-abc", body.UserToken)

		json.NewEncoder(w).Encode(map[string]any{
			"valid":   true,
			"user_id": wantID,
			"email":   "alice@example.com",
		})
	})

	gotID, email, err := client.ValidateUserToken(context.Background(), "user-token-abc")
	require.NoError(t, err)
	assert.Equal(t, wantID, gotID)
	assert.Equal(t, "alice@example.com", email)
}

func TestValidateUserToken_RejectedByIdentity(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, _, err := client.ValidateUserToken(context.Background(), "expired-token")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestValidateUserToken_IdentityUnreachable(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, _, err := client.ValidateUserToken(context.Background(), "any")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestValidateUserToken_MalformedResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, _, err := client.ValidateUserToken(context.Background(), "any")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestValidateUserToken_MissingUserID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"valid":true,"email":"alice@example.com"}`))
	})

	_, _, err := client.ValidateUserToken(context.Background(), "any")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestValidateUserToken_NotValid(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"valid":false}`))
	})

	_, _, err := client.ValidateUserToken(context.Background(), "any")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
