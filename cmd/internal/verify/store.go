package verify

import (
	"context"
	"time"
)

// Entry is the stored state of one email's pending code.
type Entry struct {
	CodeHash  string
	ExpiresAt time.Time
	Attempts  int
}

// Store persists pending codes keyed by normalized email.
type Store interface {
	// Put replaces any pending code for email.
	Put(ctx context.Context, email string, e Entry) error

	// Get returns ErrCodeNotFound when email has no pending code.
	Get(ctx context.Context, email string) (Entry, error)

	// Attempt spends one check from the code's budget in a single step and
	// returns the entry with the new count. Nothing is spent when it returns
	// ErrCodeNotFound, ErrTooManyAttempts or ErrCodeExpired; an expired code
	// is removed.
	Attempt(ctx context.Context, email string, now time.Time, maxAttempts int) (Entry, error)

	// Take deletes the code only while it still holds codeHash and has not
	// expired. At most one concurrent caller gets true.
	Take(ctx context.Context, email string, codeHash string, now time.Time) (bool, error)

	// Delete removes the pending code (idempotent).
	Delete(ctx context.Context, email string) error
}
