package ledger

import "errors"

// Ledger errors.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrUnpricedOperation   = errors.New("no price configured for operation")
)
