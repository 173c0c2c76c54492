package posting

import (
	"time"

	"github.com/google/uuid"
)

// Type is the direction of a posting
type Type string

const (
	TypeCredit Type = "CREDIT"
	TypeDebit  Type = "DEBIT"
)

// Valid reports whether t is a known posting type
func (t Type) Valid() bool {
	return t == TypeCredit || t == TypeDebit
}

// Transaction is one immutable row of the append-only log. Amounts are
// positive integer cents; the direction lives in Type.
type Transaction struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	Type           Type      `json:"type"`
	Amount         int64     `json:"amount"`
	IdempotencyKey *string   `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Receipt is the response envelope for a committed posting. It is what gets
// serialized into the idempotency record and replayed on retries.
type Receipt struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	Amount int64     `json:"amount"`
	Type   Type      `json:"type"`
}

// Request is a single posting to execute against a user's account
type Request struct {
	UserID         uuid.UUID
	Type           Type
	Amount         int64
	IdempotencyKey string
}

// PendingSentinel marks an idempotency record reserved by an in-flight
// transaction that has not finalized yet.
const PendingSentinel = "__PENDING__"

const (
	// PendingRetention bounds how long a reservation can linger if the
	// owning process dies mid-transaction before the sweeper reclaims it.
	PendingRetention = 90 * 24 * time.Hour
	// FinalizedRetention is how long a completed response stays replayable.
	FinalizedRetention = 24 * time.Hour
)
