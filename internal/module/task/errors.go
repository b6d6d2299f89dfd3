package task

import "errors"

// Task errors.
var (
	ErrTaskNotFound = errors.New("task not found")
	// ErrAlreadyTerminal means a status update targeted a task that
	// already reached a terminal state; callers treat it as an
	// idempotent no-op.
	ErrAlreadyTerminal = errors.New("task already terminal")
	// ErrPollTimeout means the polling budget was exhausted before the
	// provider reported a terminal status. The task stays processing;
	// a late webhook may still complete it.
	ErrPollTimeout = errors.New("poll attempts exhausted")
)
