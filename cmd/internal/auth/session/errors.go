package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned by stores when no session matches a token digest.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDuplicateToken is returned by Store.Insert when the token digest already exists.
	// Service retries generation on it; it never reaches callers.
	ErrDuplicateToken = errors.New("duplicate session token")

	// ErrUserNotFound is returned when a session is requested for a user that does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrTokenGenerationFailed is returned when every token attempt collided.
	ErrTokenGenerationFailed = errors.New("session token generation failed")

	// ErrPersistenceUnavailable matches every infrastructure failure surfaced by Service.
	ErrPersistenceUnavailable = errors.New("session persistence unavailable")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid session config")
)

// PersistenceError wraps a store failure with the operation that hit it.
// It matches ErrPersistenceUnavailable and still unwraps to the driver error.
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrPersistenceUnavailable.Error(), e.Err)
}

func (e PersistenceError) Unwrap() []error { return []error{ErrPersistenceUnavailable, e.Err} }

// persistence classifies a store error for callers: typed business errors pass
// through, everything else becomes a PersistenceError.
func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrDuplicateToken),
		errors.Is(err, ErrTokenGenerationFailed),
		errors.Is(err, ErrPersistenceUnavailable):
		return err
	}
	return PersistenceError{Op: op, Err: err}
}
