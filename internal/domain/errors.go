package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRemoteUnavailable matches failures where a remote platform could not
	// be reached within the retry budget.
	ErrRemoteUnavailable = errors.New("remote platform unavailable")
	// ErrRunTimeout matches polling budgets exhausted before a terminal status.
	ErrRunTimeout = errors.New("run did not reach a terminal status in time")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest is returned when caller input fails validation.
	ErrInvalidRequest = errors.New("invalid request")
)

// ConfigError reports missing required configuration. It is never retryable.
type ConfigError struct {
	Keys []string
}

func (e *ConfigError) Error() string {
	return "missing required configuration: " + strings.Join(e.Keys, ", ")
}

// TransientError is a remote failure worth retrying (network, 5xx, throttling).
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: transient failure [%d]: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a remote failure that retrying cannot fix (4xx, malformed body).
type PermanentError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *PermanentError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: permanent failure [%d]: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: permanent failure: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// RetryExhaustedError carries the last transient failure once every attempt
// has been spent.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// Is makes every exhausted retry match ErrRemoteUnavailable.
func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRemoteUnavailable
}

// RunTimeoutError reports a run still non-terminal after the polling budget.
type RunTimeoutError struct {
	ThreadID   string
	RunID      string
	Attempts   int
	LastStatus RunStatus
}

func (e *RunTimeoutError) Error() string {
	return fmt.Sprintf("run %s on thread %s still %q after %d polls", e.RunID, e.ThreadID, e.LastStatus, e.Attempts)
}

// Is makes every run timeout match ErrRunTimeout.
func (e *RunTimeoutError) Is(target error) bool {
	return target == ErrRunTimeout
}

// IsTransient reports whether err, or anything it wraps, is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
