// Package apperr defines the error taxonomy shared by the pipeline, the
// credential lifecycle and the dispatcher. Transports map these to status
// codes; nothing in the core retries on any of them.
package apperr

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record is missing or does not belong to the caller.
var ErrNotFound = errors.New("not found")

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// Validation builds a *ValidationError from a format string.
func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// AuthExchangeError means the authorization code or the state token could
// not be verified. The user must re-authorize.
type AuthExchangeError struct {
	Reason string
	Err    error
}

func (e *AuthExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth exchange: %s: %v", e.Reason, e.Err)
	}
	return "auth exchange: " + e.Reason
}

func (e *AuthExchangeError) Unwrap() error { return e.Err }

// CredentialError means no active or refreshable delegated credential exists
// at send time.
type CredentialError struct {
	Msg string
	Err error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *CredentialError) Unwrap() error { return e.Err }

// ProviderError is a scraping, discovery or mailbox provider failure
// (quota, timeout, malformed payload).
type ProviderError struct {
	Provider string
	Msg      string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PersistenceError means the store was unavailable or rejected a write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err as a *PersistenceError unless it is nil or already
// a not-found sentinel.
func Persistence(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
