package verify

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidEmail is returned for addresses that fail the shape check.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrThrottled is returned when an email asked for codes too often.
	ErrThrottled = errors.New("verification send throttled")

	// ErrCodeInvalid is returned for a wrong or unknown code.
	ErrCodeInvalid = errors.New("verification code invalid")

	// ErrCodeExpired is returned when the stored code is past its TTL.
	ErrCodeExpired = errors.New("verification code expired")

	// ErrTooManyAttempts is returned once the attempt budget is spent.
	ErrTooManyAttempts = errors.New("too many verification attempts")

	// ErrCodeNotFound is returned by stores when no code exists for an email.
	ErrCodeNotFound = errors.New("verification code not found")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid verify config")
)

// ThrottledError carries how long the caller should wait.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrThrottled.Error(), e.RetryAfter)
}

func (e ThrottledError) Unwrap() error { return ErrThrottled }
