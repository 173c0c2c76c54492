package posting

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence boundary for the ledger.
//
// ExecutePosting runs one attempt of the full write protocol inside a single
// serializable database transaction and classifies failures:
//   - *DuplicateError: a finalized idempotency record exists for the key
//   - *InsufficientBalanceError: the debit would overdraw the account
//   - ErrSerialization: the attempt lost a concurrency race and is safe to
//     retry in full
//   - anything else: not retryable
type Repository interface {
	ExecutePosting(ctx context.Context, req Request) (*Receipt, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, typeFilter *Type) ([]*Transaction, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteExpiredIdempotencyKeys(ctx context.Context) (int64, error)
}

// ReplayCache is an optional fast path for finalized idempotent responses.
// Implementations must only ever hold finalized envelopes; correctness never
// depends on the cache being populated or reachable.
type ReplayCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, response []byte) error
}
