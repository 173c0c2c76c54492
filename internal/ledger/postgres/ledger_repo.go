package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/centledger/centledger/internal/ledger/posting"
)

// LedgerRepository implements the posting repository using PostgreSQL.
//
// Every write runs under Serializable isolation: the balance read and the
// log/snapshot writes of concurrent postings against the same user cannot
// commit unless they form a serial schedule, so lost updates and double
// spends surface as SQLSTATE 40001 and are retried by the service layer.
type LedgerRepository struct {
	pool             *pgxpool.Pool
	statementTimeout time.Duration
	lockTimeout      time.Duration
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(pool *pgxpool.Pool, statementTimeout, lockTimeout time.Duration) *LedgerRepository {
	if statementTimeout <= 0 {
		statementTimeout = 10 * time.Second
	}
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &LedgerRepository{
		pool:             pool,
		statementTimeout: statementTimeout,
		lockTimeout:      lockTimeout,
	}
}

// ExecutePosting runs one attempt of the write protocol inside a single
// serializable transaction:
//
//	probe/reserve idempotency key → read snapshot → validate balance →
//	append to log → upsert snapshot → finalize idempotency → commit
func (r *LedgerRepository) ExecutePosting(ctx context.Context, req posting.Request) (*posting.Receipt, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	// SET LOCAL does not accept bind parameters
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", r.statementTimeout.Milliseconds())); err != nil {
		return nil, classify(err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", r.lockTimeout.Milliseconds())); err != nil {
		return nil, classify(err)
	}

	if req.IdempotencyKey != "" {
		cached, err := r.reserveIdempotencyKey(ctx, tx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return nil, &posting.DuplicateError{Response: cached}
		}
	}

	balance, err := r.readSnapshotBalance(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}

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

	txn := posting.Transaction{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Type:      req.Type,
		Amount:    req.Amount,
		CreatedAt: time.Now(),
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		txn.IdempotencyKey = &key
	}

	if err := r.appendTransaction(ctx, tx, &txn); err != nil {
		return nil, err
	}

	if err := r.upsertSnapshot(ctx, tx, req.UserID, newBalance); err != nil {
		return nil, err
	}

	receipt := &posting.Receipt{
		ID:     txn.ID,
		UserID: txn.UserID,
		Amount: txn.Amount,
		Type:   txn.Type,
	}

	if req.IdempotencyKey != "" {
		if err := r.finalizeIdempotencyKey(ctx, tx, req.IdempotencyKey, receipt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify(err)
	}

	return receipt, nil
}

// reserveIdempotencyKey implements the probe-then-reserve step. It returns
// the cached response when a finalized, unexpired record exists, nil after a
// fresh reservation, and a retryable error when it loses a race.
func (r *LedgerRepository) reserveIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) ([]byte, error) {
	var response string
	var expiresAt time.Time

	err := tx.QueryRow(ctx,
		`SELECT response, expires_at FROM idempotency_keys WHERE key = $1`, key,
	).Scan(&response, &expiresAt)

	now := time.Now()
	switch {
	case err == nil && expiresAt.After(now) && response != posting.PendingSentinel:
		return []byte(response), nil

	case err == nil && expiresAt.After(now):
		// A committed __PENDING__ row means another writer holds the key.
		// The reservation commits atomically with finalization, so on a
		// later attempt this record is either finalized or gone.
		return nil, fmt.Errorf("%w: idempotency key %q is pending", posting.ErrSerialization, key)

	case err == nil:
		// Expired record: reclaim the key within this transaction
		if _, err := tx.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key); err != nil {
			return nil, classify(err)
		}

	case !errors.Is(err, pgx.ErrNoRows):
		return nil, classify(err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO idempotency_keys (id, key, response, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), key, posting.PendingSentinel, now, now.Add(posting.PendingRetention),
	)
	if err != nil {
		// A concurrent reservation wins the unique index; the whole
		// transaction is doomed and safe to retry.
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: lost idempotency reservation for %q", posting.ErrSerialization, key)
		}
		return nil, classify(err)
	}

	return nil, nil
}

// readSnapshotBalance reads the account balance, treating a missing row as
// zero. No explicit row lock: serializable certification covers the
// read-modify-write.
func (r *LedgerRepository) readSnapshotBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE user_id = $1`, userID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, classify(err)
	}
	return balance, nil
}

func (r *LedgerRepository) appendTransaction(ctx context.Context, tx pgx.Tx, txn *posting.Transaction) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, type, amount, idempotency_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		txn.ID, txn.UserID, string(txn.Type), txn.Amount, txn.IdempotencyKey, txn.CreatedAt,
	)
	if err != nil {
		return classify(err)
	}
	return nil
}

// upsertSnapshot creates or advances the account row in a single statement.
// A single statement is essential: two first-time writers for a brand-new
// user must collide on the user_id unique index instead of both inserting.
func (r *LedgerRepository) upsertSnapshot(ctx context.Context, tx pgx.Tx, userID uuid.UUID, newBalance int64) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO accounts (id, user_id, balance, version, created_at, updated_at)
		 VALUES ($1, $2, $3, 1, now(), now())
		 ON CONFLICT (user_id) DO UPDATE
		 SET balance = EXCLUDED.balance,
		     version = accounts.version + 1,
		     updated_at = now()`,
		uuid.New(), userID, newBalance,
	)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (r *LedgerRepository) finalizeIdempotencyKey(ctx context.Context, tx pgx.Tx, key string, receipt *posting.Receipt) error {
	encoded, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE idempotency_keys SET response = $2, expires_at = $3 WHERE key = $1`,
		key, string(encoded), time.Now().Add(posting.FinalizedRetention),
	)
	if err != nil {
		return classify(err)
	}
	return nil
}

// ListTransactions returns the user's transactions, newest first
func (r *LedgerRepository) ListTransactions(ctx context.Context, userID uuid.UUID, typeFilter *posting.Type) ([]*posting.Transaction, error) {
	query := `
		SELECT id, user_id, type, amount, idempotency_key, created_at
		FROM transactions
		WHERE user_id = $1
	`
	args := []any{userID}

	if typeFilter != nil {
		query += ` AND type = $2`
		args = append(args, string(*typeFilter))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []*posting.Transaction
	for rows.Next() {
		var txn posting.Transaction
		if err := rows.Scan(&txn.ID, &txn.UserID, &txn.Type, &txn.Amount, &txn.IdempotencyKey, &txn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, &txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txns, nil
}

// GetBalance reads the snapshot, falling back to summing the log when no
// snapshot exists yet. The fallback is the invariant-enforcing formula and
// yields zero for a brand-new user.
func (r *LedgerRepository) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE user_id = $1`, userID,
	).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(CASE WHEN type = 'CREDIT' THEN amount ELSE -amount END), 0)
		 FROM transactions WHERE user_id = $1`, userID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to compute balance from log: %w", err)
	}
	return balance, nil
}

// DeleteExpiredIdempotencyKeys reclaims expired records, pending or
// finalized, and returns the deleted count.
func (r *LedgerRepository) DeleteExpiredIdempotencyKeys(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

// classify maps database aborts that are safe to retry in full onto
// posting.ErrSerialization and wraps everything else.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return fmt.Errorf("%w: %s", posting.ErrSerialization, pgErr.Code)
		}
	}
	return fmt.Errorf("database error: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
