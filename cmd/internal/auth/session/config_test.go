package session

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig_Valid(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.ExpirationWindow != 30*24*time.Hour {
		t.Fatalf("window=%v want 30 days", cfg.ExpirationWindow)
	}
	if cfg.MaxConcurrentSessions != 2 {
		t.Fatalf("cap=%d want 2", cfg.MaxConcurrentSessions)
	}
	if cfg.TokenBytes < 32 {
		t.Fatalf("token bytes=%d want >= 32", cfg.TokenBytes)
	}
	if !cfg.StrictCap {
		t.Fatalf("strict cap should default on")
	}
}

func TestConfigValidate_Invalid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{name: "zero window", mut: func(c *Config) { c.ExpirationWindow = 0 }},
		{name: "zero cap", mut: func(c *Config) { c.MaxConcurrentSessions = 0 }},
		{name: "low entropy", mut: func(c *Config) { c.TokenBytes = 16 }},
		{name: "huge token", mut: func(c *Config) { c.TokenBytes = 65 }},
		{name: "no attempts", mut: func(c *Config) { c.MaxTokenAttempts = 0 }},
		{name: "negative sweep", mut: func(c *Config) { c.SweepInterval = -time.Second }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tc.mut(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}
