package posting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/centledger/centledger/pkg/logger"
)

const (
	defaultMaxAttempts = 10
	baseBackoff        = 100 * time.Millisecond
	maxJitter          = 50 * time.Millisecond
)

var (
	postingRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_posting_retries_total",
		Help: "Write attempts retried after a serialization conflict",
	})
	postingExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_posting_retries_exhausted_total",
		Help: "Postings that failed after the full retry budget",
	})
	idempotentReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_idempotent_replays_total",
		Help: "Postings answered from a finalized idempotency record",
	})
)

// Service drives the transactional write protocol: it owns the retry loop
// around single-attempt executions and the idempotency replay fast path.
type Service struct {
	repo        Repository
	cache       ReplayCache
	log         *logger.Logger
	maxAttempts int

	// sleep is swapped out in tests to avoid real backoff delays
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates a posting service. cache may be nil.
func NewService(repo Repository, cache ReplayCache, log *logger.Logger, maxAttempts int) *Service {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Service{
		repo:        repo,
		cache:       cache,
		log:         log,
		maxAttempts: maxAttempts,
		sleep:       sleepCtx,
	}
}

// Post executes a posting. The returned bool reports whether the response is
// a replay of an earlier committed write for the same idempotency key.
//
// Terminal failures (invalid amount, insufficient balance) surface
// immediately; serialization conflicts retry the whole database transaction
// with exponential backoff and jitter until the attempt budget runs out.
func (s *Service) Post(ctx context.Context, req Request) (*Receipt, bool, error) {
	if req.Amount <= 0 {
		return nil, false, ErrInvalidAmount
	}
	if !req.Type.Valid() {
		return nil, false, ErrInvalidType
	}

	// Replay fast path: only finalized envelopes are ever cached, so a hit
	// is always safe to return without touching the database.
	if req.IdempotencyKey != "" && s.cache != nil {
		if cached, ok, err := s.cache.Get(ctx, req.IdempotencyKey); err != nil {
			s.log.WithError(err).Warn("replay cache read failed, falling through to database")
		} else if ok {
			receipt, err := decodeReceipt(cached)
			if err == nil {
				idempotentReplays.Inc()
				return receipt, true, nil
			}
			s.log.WithError(err).Warn("discarding malformed cached replay envelope")
		}
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		receipt, err := s.repo.ExecutePosting(ctx, req)
		if err == nil {
			s.cacheReceipt(ctx, req.IdempotencyKey, receipt)
			return receipt, false, nil
		}

		var dup *DuplicateError
		if errors.As(err, &dup) {
			receipt, derr := decodeReceipt(dup.Response)
			if derr != nil {
				return nil, false, fmt.Errorf("failed to decode idempotency record: %w", derr)
			}
			idempotentReplays.Inc()
			s.cacheReceipt(ctx, req.IdempotencyKey, receipt)
			return receipt, true, nil
		}

		if !errors.Is(err, ErrSerialization) {
			return nil, false, err
		}

		postingRetries.Inc()
		if attempt == s.maxAttempts {
			break
		}

		backoff := backoffFor(attempt)
		s.log.Debug("retrying posting after serialization conflict",
			"attempt", attempt,
			"backoff_ms", backoff.Milliseconds(),
			"user_id", req.UserID,
		)
		if err := s.sleep(ctx, backoff); err != nil {
			return nil, false, err
		}
	}

	postingExhausted.Inc()
	return nil, false, fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, s.maxAttempts)
}

// ListTransactions returns the user's log, newest first, optionally filtered
// by type.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, typeFilter *Type) ([]*Transaction, error) {
	if typeFilter != nil && !typeFilter.Valid() {
		return nil, ErrInvalidType
	}
	return s.repo.ListTransactions(ctx, userID, typeFilter)
}

// GetBalance returns the user's current balance in cents
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.GetBalance(ctx, userID)
}

// SweepIdempotencyKeys deletes expired idempotency records and returns the
// number of rows reclaimed.
func (s *Service) SweepIdempotencyKeys(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredIdempotencyKeys(ctx)
}

// RunSweeper reclaims expired idempotency records on the given interval
// until the context is cancelled. It never runs on the write hot path.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.SweepIdempotencyKeys(ctx)
			if err != nil {
				s.log.WithError(err).Error("idempotency sweep failed")
				continue
			}
			if deleted > 0 {
				s.log.Info("idempotency sweep completed", "deleted", deleted)
			}
		}
	}
}

func (s *Service) cacheReceipt(ctx context.Context, key string, receipt *Receipt) {
	if key == "" || s.cache == nil {
		return
	}
	encoded, err := json.Marshal(receipt)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, encoded); err != nil {
		s.log.WithError(err).Warn("replay cache write failed")
	}
}

func decodeReceipt(data []byte) (*Receipt, error) {
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// backoffFor computes 2^(attempt-1) * 100ms plus up to 50ms of jitter
func backoffFor(attempt int) time.Duration {
	d := baseBackoff << (attempt - 1)
	return d + time.Duration(rand.Int63n(int64(maxJitter)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
