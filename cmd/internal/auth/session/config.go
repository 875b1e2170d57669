package session

import (
	"fmt"
	"time"

	"codeplat/cmd/security/token"
)

const (
	// DefaultExpirationWindow is the absolute session lifetime measured from creation.
	DefaultExpirationWindow = 30 * 24 * time.Hour

	// DefaultMaxConcurrentSessions is the per-user cap on live sessions.
	DefaultMaxConcurrentSessions = 2

	// maxTokenLength bounds presented tokens before they are hashed.
	maxTokenLength = 512
)

// Config defines runtime policy for the session subsystem.
type Config struct {
	// ExpirationWindow is how long a session stays live after creation.
	ExpirationWindow time.Duration

	// MaxConcurrentSessions caps live sessions per user at creation time.
	MaxConcurrentSessions int

	// TokenBytes is the number of random bytes behind each token (>= 32).
	TokenBytes int

	// MaxTokenAttempts bounds regeneration after a digest collision.
	MaxTokenAttempts int

	// StrictCap serializes a user's create sequence (sweep, count, evict, insert)
	// when the store supports it. When false, concurrent logins for one user may
	// overshoot the cap by one until the next login.
	StrictCap bool

	// SweepInterval drives the background expiry sweep; zero disables it.
	SweepInterval time.Duration
}

// DefaultConfig returns the production policy.
func DefaultConfig() Config {
	return Config{
		ExpirationWindow:      DefaultExpirationWindow,
		MaxConcurrentSessions: DefaultMaxConcurrentSessions,
		TokenBytes:            token.MinBytes,
		MaxTokenAttempts:      3,
		StrictCap:             true,
		SweepInterval:         time.Hour,
	}
}

// Validate reports the first invalid field, wrapped in ErrConfig.
func (c Config) Validate() error {
	switch {
	case c.ExpirationWindow <= 0:
		return fmt.Errorf("%w: expiration window must be positive", ErrConfig)
	case c.MaxConcurrentSessions < 1:
		return fmt.Errorf("%w: max concurrent sessions must be >= 1", ErrConfig)
	case c.TokenBytes < token.MinBytes || c.TokenBytes > 64:
		return fmt.Errorf("%w: token bytes must be within [%d, 64]", ErrConfig, token.MinBytes)
	case c.MaxTokenAttempts < 1 || c.MaxTokenAttempts > 10:
		return fmt.Errorf("%w: max token attempts must be within [1, 10]", ErrConfig)
	case c.SweepInterval < 0:
		return fmt.Errorf("%w: sweep interval must not be negative", ErrConfig)
	}
	return nil
}
