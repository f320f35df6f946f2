package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")

	// ErrNotConfigured marks a datastore or collaborator that was never
	// configured. Callers treat it as a soft condition and render empty data.
	ErrNotConfigured = errors.New("not configured")

	// ErrNotReady is returned before any network call when the wallet
	// identity or the program client is missing.
	ErrNotReady = errors.New("not ready")

	// ErrPersistFailed means the on-chain market exists but its record could
	// not be written. It needs manual reconciliation.
	ErrPersistFailed = errors.New("market record not persisted")
)

// StepError reports that a named on-chain operation returned success=false
// (or failed outright). Status is the status the run was frozen at.
type StepError struct {
	Status CreationStatus
	Op     string
	Err    error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return e.Op + " failed"
}

func (e *StepError) Unwrap() error { return e.Err }
