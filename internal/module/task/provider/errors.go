package provider

import "errors"

// Provider errors.
var (
	// ErrRejected means the provider refused the request (4xx).
	ErrRejected = errors.New("provider rejected request")
	// ErrUnavailable means the provider could not be reached, answered
	// 5xx, or its circuit breaker is open.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrMalformedPayload means an inbound payload could not be parsed
	// into a canonical update.
	ErrMalformedPayload = errors.New("malformed provider payload")
	// ErrUnknownProvider means no adapter is registered for the name.
	ErrUnknownProvider = errors.New("unknown provider")
)
