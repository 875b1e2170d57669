package verify

import (
	"fmt"
	"time"
)

// Config defines verification code policy.
type Config struct {
	// CodeTTL is how long an issued code stays usable.
	CodeTTL time.Duration

	// MaxAttempts is the number of checks allowed per code, right or wrong.
	MaxAttempts int

	// SendInterval is the steady-state minimum spacing between sends to one email.
	SendInterval time.Duration

	// SendBurst is how many sends may happen back to back.
	SendBurst int
}

// DefaultConfig returns the production policy.
func DefaultConfig() Config {
	return Config{
		CodeTTL:      10 * time.Minute,
		MaxAttempts:  5,
		SendInterval: 30 * time.Second,
		SendBurst:    3,
	}
}

// Validate reports the first invalid field, wrapped in ErrConfig.
func (c Config) Validate() error {
	switch {
	case c.CodeTTL <= 0:
		return fmt.Errorf("%w: code ttl must be positive", ErrConfig)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts must be >= 1", ErrConfig)
	case c.SendInterval <= 0:
		return fmt.Errorf("%w: send interval must be positive", ErrConfig)
	case c.SendBurst < 1:
		return fmt.Errorf("%w: send burst must be >= 1", ErrConfig)
	}
	return nil
}
