package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"codeplat/cmd/security/token"
)

// Service implements the high-level session operations for codeplat.
//
// It issues opaque bearer tokens, validates them against the store (touching
// activity), enforces the per-user cap on creation and supports per-session
// and per-user invalidation. It is safe for concurrent use.
type Service struct {
	cfg     Config
	store   Store
	hasher  token.Hasher
	log     *slog.Logger
	metrics *Metrics

	// generate is crypto/rand token generation; tests substitute it to force collisions.
	generate func(nBytes int) (string, error)
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithLogger sets the structured logger. Defaults to a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithHasher sets the token digest function. Defaults to unkeyed SHA-256.
func WithHasher(h token.Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

func withTokenSource(fn func(int) (string, error)) Option {
	return func(s *Service) { s.generate = fn }
}

// Issued is the result of creating a session. Token is the only copy of the
// bearer secret; it is not recoverable from the store.
type Issued struct {
	SessionID string
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// InvalidReason explains a negative ValidationResult. It is for logs and
// metrics only; clients see a single "invalid session" outcome.
type InvalidReason string

const (
	ReasonNotFound InvalidReason = "not_found"
	ReasonExpired  InvalidReason = "expired"
)

// ValidationResult is the outcome of ValidateSession.
type ValidationResult struct {
	Valid     bool
	UserID    string
	Username  string
	SessionID string
	CreatedAt time.Time
	ExpiresAt time.Time

	// Reason is set when Valid is false.
	Reason InvalidReason
}

// SessionInfo is the client-safe view of a live session.
type SessionInfo struct {
	ID             string
	IPAddress      net.IP
	UserAgent      string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
}

// NewService constructs a Service. cfg is validated.
func NewService(cfg Config, store Store, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrConfig)
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		log:      slog.New(slog.DiscardHandler),
		generate: token.Generate,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Config returns the policy the service runs with.
func (s *Service) Config() Config { return s.cfg }

// CreateSession issues a new session for userID.
//
// Before inserting it removes the user's expired sessions and, when the user
// already holds MaxConcurrentSessions live ones, evicts the oldest. With
// StrictCap and a store implementing UserLocker the whole sequence runs under
// the user's lock.
func (s *Service) CreateSession(ctx context.Context, now time.Time, userID string, dev DeviceContext) (Issued, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Issued{}, ErrUserNotFound
	}

	var issued Issued
	create := func(st Store) error {
		var err error
		issued, err = s.create(ctx, st, now, userID, dev)
		return err
	}

	var err error
	if locker, ok := s.store.(UserLocker); ok && s.cfg.StrictCap {
		err = persistence("lock_user", locker.WithUserLock(ctx, userID, create))
	} else {
		err = create(s.store)
	}
	if err != nil {
		s.log.Warn("session.create.fail", "user_id", userID, "err", err)
		return Issued{}, err
	}

	s.metrics.created()
	s.log.Debug("session.create.ok", "user_id", userID, "session_id", issued.SessionID)
	return issued, nil
}

func (s *Service) create(ctx context.Context, st Store, now time.Time, userID string, dev DeviceContext) (Issued, error) {
	cutoff := s.cutoff(now)

	swept, err := st.DeleteExpired(ctx, userID, cutoff)
	if err != nil {
		return Issued{}, persistence("delete_expired", err)
	}
	s.metrics.expired(swept)

	live, err := st.CountLive(ctx, userID, cutoff)
	if err != nil {
		return Issued{}, persistence("count_live", err)
	}
	if live >= s.cfg.MaxConcurrentSessions {
		if err := st.DeleteOldest(ctx, userID); err != nil {
			return Issued{}, persistence("delete_oldest", err)
		}
		s.metrics.evicted()
		s.log.Info("session.evicted", "user_id", userID, "live", live)
	}

	for attempt := 1; attempt <= s.cfg.MaxTokenAttempts; attempt++ {
		plain, err := s.generate(s.cfg.TokenBytes)
		if err != nil {
			return Issued{}, fmt.Errorf("%w: %v", ErrTokenGenerationFailed, err)
		}

		row, err := st.Insert(ctx, now, userID, s.hasher.Hash(plain), dev)
		if errors.Is(err, ErrDuplicateToken) {
			s.metrics.collision()
			s.log.Warn("session.token.collision", "user_id", userID, "attempt", attempt)
			continue
		}
		if err != nil {
			return Issued{}, persistence("insert", err)
		}

		return Issued{
			SessionID: row.ID,
			Token:     plain,
			CreatedAt: row.CreatedAt,
			ExpiresAt: row.CreatedAt.Add(s.cfg.ExpirationWindow),
		}, nil
	}

	return Issued{}, ErrTokenGenerationFailed
}

// ValidateSession resolves a presented token.
//
// Unknown, malformed and expired tokens produce Valid=false with a Reason and
// a nil error; only store failures return an error. A valid session has its
// last activity raised to now. Expired rows are left for the sweeper.
func (s *Service) ValidateSession(ctx context.Context, now time.Time, plain string) (ValidationResult, error) {
	if strings.TrimSpace(plain) == "" || len(plain) > maxTokenLength {
		return s.invalid(ReasonNotFound, ""), nil
	}

	hash := s.hasher.Hash(plain)

	row, err := s.store.FindByToken(ctx, hash)
	if errors.Is(err, ErrSessionNotFound) {
		return s.invalid(ReasonNotFound, ""), nil
	}
	if err != nil {
		return ValidationResult{}, persistence("find_by_token", err)
	}

	expiresAt := row.CreatedAt.Add(s.cfg.ExpirationWindow)
	if !now.Before(expiresAt) {
		return s.invalid(ReasonExpired, row.ID), nil
	}

	if err := s.store.Touch(ctx, hash, now); err != nil {
		return ValidationResult{}, persistence("touch", err)
	}

	s.metrics.validated("valid")
	return ValidationResult{
		Valid:     true,
		UserID:    row.UserID,
		Username:  row.Username,
		SessionID: row.ID,
		CreatedAt: row.CreatedAt,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) invalid(reason InvalidReason, sessionID string) ValidationResult {
	s.metrics.validated(string(reason))
	s.log.Debug("session.validate.invalid", "reason", string(reason), "session_id", sessionID)
	return ValidationResult{Reason: reason}
}

// InvalidateSession deletes the session behind a token. Unknown tokens succeed.
func (s *Service) InvalidateSession(ctx context.Context, plain string) error {
	if strings.TrimSpace(plain) == "" || len(plain) > maxTokenLength {
		return nil
	}
	n, err := s.store.DeleteByToken(ctx, s.hasher.Hash(plain))
	if err != nil {
		return persistence("delete_by_token", err)
	}
	s.metrics.invalidated(n)
	return nil
}

// InvalidateAll deletes every session of userID and reports how many went.
func (s *Service) InvalidateAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, persistence("delete_by_user", err)
	}
	s.metrics.invalidated(n)
	s.log.Info("session.invalidate_all", "user_id", userID, "count", n)
	return n, nil
}

// ListSessions returns the user's live sessions, oldest first.
func (s *Service) ListSessions(ctx context.Context, now time.Time, userID string) ([]SessionInfo, error) {
	rows, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, persistence("list_by_user", err)
	}

	cutoff := s.cutoff(now)
	out := make([]SessionInfo, 0, len(rows))
	for _, r := range rows {
		if !r.CreatedAt.After(cutoff) {
			continue
		}
		out = append(out, SessionInfo{
			ID:             r.ID,
			IPAddress:      r.IPAddress,
			UserAgent:      r.UserAgent,
			CreatedAt:      r.CreatedAt,
			LastActivityAt: r.LastActivityAt,
			ExpiresAt:      r.CreatedAt.Add(s.cfg.ExpirationWindow),
		})
	}
	return out, nil
}

// Sweep deletes expired sessions of every user.
func (s *Service) Sweep(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.store.DeleteAllExpired(ctx, s.cutoff(now))
	if err != nil {
		return 0, persistence("delete_all_expired", err)
	}
	s.metrics.expired(n)
	return n, nil
}

func (s *Service) cutoff(now time.Time) time.Time {
	return now.Add(-s.cfg.ExpirationWindow)
}
