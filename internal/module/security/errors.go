package security

import "errors"

// Admission-gate errors. All of them short-circuit before any ledger
// operation runs.
var (
	ErrValidationFailed = errors.New("prompt validation failed")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrBlocked          = errors.New("account temporarily blocked")
)
