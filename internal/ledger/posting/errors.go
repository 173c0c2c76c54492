package posting

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount    = errors.New("amount must be a positive integer")
	ErrInvalidType      = errors.New("type must be CREDIT or DEBIT")
	ErrSerialization    = errors.New("serialization conflict")
	ErrRetriesExhausted = errors.New("write retries exhausted")
)

// InsufficientBalanceError aborts a debit that would take the balance below
// zero. It carries the figures the client needs to see.
type InsufficientBalanceError struct {
	CurrentBalance  int64
	RequestedAmount int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d, want %d", e.CurrentBalance, e.RequestedAmount)
}

// Shortage is the amount missing to cover the debit
func (e *InsufficientBalanceError) Shortage() int64 {
	return e.RequestedAmount - e.CurrentBalance
}

// DuplicateError signals that a finalized idempotency record already exists
// for the submitted key. It is not an error to the client: the retry loop
// converts it into a replay of the cached response.
type DuplicateError struct {
	Response []byte
}

func (e *DuplicateError) Error() string {
	return "idempotency key already finalized"
}
