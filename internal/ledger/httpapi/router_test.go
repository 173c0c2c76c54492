package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centledger/centledger/internal/ledger/posting"
	"github.com/centledger/centledger/pkg/logger"
)

// fakeRepo is an in-memory posting repository good enough for handler tests:
// it applies postings sequentially without any concurrency control.
type fakeRepo struct {
	balances  map[uuid.UUID]int64
	log       []*posting.Transaction
	finalized map[string][]byte
	lastKey   string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		balances:  make(map[uuid.UUID]int64),
		finalized: make(map[string][]byte),
	}
}

func (r *fakeRepo) ExecutePosting(ctx context.Context, req posting.Request) (*posting.Receipt, error) {
	r.lastKey = req.IdempotencyKey

	if req.IdempotencyKey != "" {
		if cached, ok := r.finalized[req.IdempotencyKey]; ok {
			return nil, &posting.DuplicateError{Response: cached}
		}
	}

	balance := r.balances[req.UserID]
	newBalance := balance + req.Amount
	if req.Type == posting.TypeDebit {
		newBalance = balance - req.Amount
	}
	if newBalance < 0 {
		return nil, &posting.InsufficientBalanceError{
			CurrentBalance:  balance,
			RequestedAmount: req.Amount,
		}
	}

	r.balances[req.UserID] = newBalance
	txn := &posting.Transaction{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Type:      req.Type,
		Amount:    req.Amount,
		CreatedAt: time.Now(),
	}
	r.log = append(r.log, txn)

	receipt := &posting.Receipt{ID: txn.ID, UserID: txn.UserID, Amount: txn.Amount, Type: txn.Type}
	if req.IdempotencyKey != "" {
		encoded, _ := json.Marshal(receipt)
		r.finalized[req.IdempotencyKey] = encoded
	}
	return receipt, nil
}

func (r *fakeRepo) ListTransactions(ctx context.Context, userID uuid.UUID, typeFilter *posting.Type) ([]*posting.Transaction, error) {
	var out []*posting.Transaction
	for i := len(r.log) - 1; i >= 0; i-- {
		txn := r.log[i]
		if txn.UserID != userID {
			continue
		}
		if typeFilter != nil && txn.Type != *typeFilter {
			continue
		}
		out = append(out, txn)
	}
	return out, nil
}

func (r *fakeRepo) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return r.balances[userID], nil
}

func (r *fakeRepo) DeleteExpiredIdempotencyKeys(ctx context.Context) (int64, error) {
	return 0, nil
}

// staticValidator admits exactly one bearer token
type staticValidator struct {
	token  string
	userID uuid.UUID
}

func (v staticValidator) ValidateUserToken(ctx context.Context, tokenString string) (uuid.UUID, string, error) {
	if tokenString != v.token {
		return uuid.Nil, "", context.DeadlineExceeded
	}
	return v.userID, "alice@example.com", nil
}

type testEnv struct {
	router http.Handler
	repo   *fakeRepo
	userID uuid.UUID
	bearer string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logger.New("test", io.Discard)
	repo := newFakeRepo()
	svc := posting.NewService(repo, nil, log, 10)

	userID := uuid.New()
	bearer := "valid-user-token"

	router := NewRouter(Config{
		Logger:             log,
		AllowedOrigins:     []string{"*"},
		TransactionHandler: NewTransactionHandler(svc, log),
		UserValidator:      staticValidator{token: bearer, userID: userID},
	})

	return &testEnv{router: router, repo: repo, userID: userID, bearer: bearer}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.bearer)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestTransactions_RequireBearer(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/transactions"},
		{http.MethodGet, "/api/v1/transactions"},
		{http.MethodGet, "/api/v1/balance"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}

	// A token the identity service rejects is just as unauthorized
	req := httptest.NewRequest(http.MethodGet, "/api/v1/balance", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateTransaction_Success(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/transactions",
		map[string]any{"amount": 50000, "type": "CREDIT"}, nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var receipt posting.Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.Equal(t, env.userID, receipt.UserID)
	assert.Equal(t, int64(50000), receipt.Amount)
	assert.Equal(t, posting.TypeCredit, receipt.Type)
	assert.NotEqual(t, uuid.Nil, receipt.ID)
}

func TestCreateTransaction_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
		code string
	}{
		{"zero amount", map[string]any{"amount": 0, "type": "CREDIT"}, "INVALID_AMOUNT"},
		{"negative amount", map[string]any{"amount": -5, "type": "DEBIT"}, "INVALID_AMOUNT"},
		{"unknown type", map[string]any{"amount": 100, "type": "TRANSFER"}, "INVALID_TYPE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/transactions", tt.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewBufferString("{not json"))
		req.Header.Set("Authorization", "Bearer "+env.bearer)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_BODY")
	})
}

func TestCreateTransaction_InsufficientBalanceDetails(t *testing.T) {
	env := newTestEnv(t)
	env.repo.balances[env.userID] = 100

	rec := env.do(t, http.MethodPost, "/api/v1/transactions",
		map[string]any{"amount": 500, "type": "DEBIT"}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error   string `json:"error"`
		Details struct {
			CurrentBalance  int64 `json:"current_balance"`
			RequestedAmount int64 `json:"requested_amount"`
			Shortage        int64 `json:"shortage"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INSUFFICIENT_BALANCE", resp.Error)
	assert.Equal(t, int64(100), resp.Details.CurrentBalance)
	assert.Equal(t, int64(500), resp.Details.RequestedAmount)
	assert.Equal(t, int64(400), resp.Details.Shortage)
}

func TestCreateTransaction_IdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	headers := map[string]string{IdempotencyKeyHeader: "retry-key-1"}
	body := map[string]any{"amount": 1000, "type": "CREDIT"}

	first := env.do(t, http.MethodPost, "/api/v1/transactions", body, headers)
	require.Equal(t, http.StatusOK, first.Code)

	second := env.do(t, http.MethodPost, "/api/v1/transactions", body, headers)
	require.Equal(t, http.StatusOK, second.Code)

	var a, b posting.Receipt
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.ID, b.ID, "replay must return the original receipt")

	// Only one write reached the log
	balance, err := env.repo.GetBalance(context.Background(), env.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func TestListTransactions_OrderAndFilter(t *testing.T) {
	env := newTestEnv(t)

	for _, p := range []map[string]any{
		{"amount": 100, "type": "CREDIT"},
		{"amount": 30, "type": "DEBIT"},
		{"amount": 200, "type": "CREDIT"},
	} {
		rec := env.do(t, http.MethodPost, "/api/v1/transactions", p, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/transactions", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var all []posting.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 3)
	assert.Equal(t, int64(200), all[0].Amount, "newest first")

	rec = env.do(t, http.MethodGet, "/api/v1/transactions?type=DEBIT", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var debits []posting.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &debits))
	require.Len(t, debits, 1)
	assert.Equal(t, posting.TypeDebit, debits[0].Type)

	rec = env.do(t, http.MethodGet, "/api/v1/transactions?type=BOGUS", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBalance(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/balance", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(0), resp.Amount, "fresh user starts at zero")

	env.do(t, http.MethodPost, "/api/v1/transactions", map[string]any{"amount": 750, "type": "CREDIT"}, nil)

	rec = env.do(t, http.MethodGet, "/api/v1/balance", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(750), resp.Amount)
}
