package verify

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"codeplat/cmd/identity"
	"codeplat/cmd/security/token"
)

const codeDigits = 6

// maxLimiters bounds the per-email limiter table before idle entries are pruned.
const maxLimiters = 10000

// Service issues and checks verification codes.
type Service struct {
	cfg    Config
	store  Store
	mailer Mailer
	hasher token.Hasher
	log    *slog.Logger

	mu       sync.Mutex
	limiters map[string]*limiterEntry

	// newCode is crypto/rand by default; tests pin it.
	newCode func() (string, error)
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithHasher sets the code digest function (keyed when the deployment has a secret).
func WithHasher(h token.Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

func withCodeSource(fn func() (string, error)) Option {
	return func(s *Service) { s.newCode = fn }
}

// NewService constructs a Service. A nil mailer falls back to NoopMailer.
func NewService(cfg Config, store Store, mailer Mailer, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrConfig)
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		mailer:   mailer,
		log:      slog.New(slog.DiscardHandler),
		limiters: make(map[string]*limiterEntry),
		newCode:  randomCode,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.mailer == nil {
		s.mailer = NoopMailer{Log: s.log}
	}
	return s, nil
}

// Send issues a fresh code for email, replacing any pending one, and hands
// it to the mailer. Returns ThrottledError when the email is over its budget.
func (s *Service) Send(ctx context.Context, now time.Time, email string) error {
	norm := identity.NormalizeEmail(email)
	if !identity.ValidEmail(norm) {
		return ErrInvalidEmail
	}

	if wait := s.reserve(now, norm); wait > 0 {
		s.log.Info("verify.send.throttled", "email", norm, "retry_after_ms", wait.Milliseconds())
		return ThrottledError{RetryAfter: wait}
	}

	code, err := s.newCode()
	if err != nil {
		return fmt.Errorf("verify: generate code: %w", err)
	}

	err = s.store.Put(ctx, norm, Entry{
		CodeHash:  s.digest(norm, code),
		ExpiresAt: now.Add(s.cfg.CodeTTL),
	})
	if err != nil {
		return fmt.Errorf("verify: store code: %w", err)
	}

	if err := s.mailer.SendCode(ctx, norm, code); err != nil {
		return fmt.Errorf("verify: deliver code: %w", err)
	}

	s.log.Info("verify.send.ok", "email", norm)
	return nil
}

// Check reports whether code matches the pending code for email without
// consuming it. Every check spends one of MaxAttempts before the compare.
func (s *Service) Check(ctx context.Context, now time.Time, email string, code string) error {
	_, err := s.check(ctx, now, identity.NormalizeEmail(email), code)
	return err
}

func (s *Service) check(ctx context.Context, now time.Time, norm string, code string) (string, error) {
	e, err := s.store.Attempt(ctx, norm, now, s.cfg.MaxAttempts)
	switch {
	case errors.Is(err, ErrCodeNotFound):
		return "", ErrCodeInvalid
	case errors.Is(err, ErrCodeExpired), errors.Is(err, ErrTooManyAttempts):
		return "", err
	case err != nil:
		return "", fmt.Errorf("verify: count attempt: %w", err)
	}

	if !hmac.Equal([]byte(s.digest(norm, code)), []byte(e.CodeHash)) {
		s.log.Info("verify.check.mismatch", "email", norm, "attempts", e.Attempts)
		return "", ErrCodeInvalid
	}
	return e.CodeHash, nil
}

// Consume is Check followed by deletion of the code on success. Only one of
// several concurrent callers with the right code succeeds.
func (s *Service) Consume(ctx context.Context, now time.Time, email string, code string) error {
	norm := identity.NormalizeEmail(email)
	hash, err := s.check(ctx, now, norm, code)
	if err != nil {
		return err
	}
	ok, err := s.store.Take(ctx, norm, hash, now)
	if err != nil {
		return fmt.Errorf("verify: delete code: %w", err)
	}
	if !ok {
		return ErrCodeInvalid
	}
	return nil
}

// Purge deletes expired codes when the store keeps them past expiry.
func (s *Service) Purge(ctx context.Context, now time.Time) (int64, error) {
	p, ok := s.store.(interface {
		DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	})
	if !ok {
		return 0, nil
	}
	return p.DeleteExpired(ctx, now)
}

func (s *Service) digest(email, code string) string {
	return s.hasher.Hash(email + ":" + code)
}

// reserve takes one send token for email and returns how long to wait when
// none is available.
func (s *Service) reserve(now time.Time, email string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.limiters) >= maxLimiters {
		s.pruneLocked(now)
	}

	le := s.limiters[email]
	if le == nil {
		le = &limiterEntry{lim: rate.NewLimiter(rate.Every(s.cfg.SendInterval), s.cfg.SendBurst)}
		s.limiters[email] = le
	}
	le.lastSeen = now

	r := le.lim.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return d
	}
	return 0
}

// pruneLocked drops limiters idle long enough to have refilled completely.
func (s *Service) pruneLocked(now time.Time) {
	idle := s.cfg.SendInterval * time.Duration(s.cfg.SendBurst)
	for k, le := range s.limiters {
		if now.Sub(le.lastSeen) > idle {
			delete(s.limiters, k)
		}
	}
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
