package session

import (
	"context"
	"net"
	"time"
)

// DeviceContext is the audit metadata captured when a session is created.
// It is never enforced as a binding constraint.
type DeviceContext struct {
	IP        net.IP
	UserAgent string
}

// Row mirrors the codeplat.sessions row, joined with the owner's username.
type Row struct {
	ID             string
	UserID         string
	Username       string
	TokenHash      string
	IPAddress      net.IP
	UserAgent      string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// Store abstracts persistence for session records. Tokens only ever reach a
// Store as digests.
//
// Each method is atomic on a single row or on one user's session set.
type Store interface {
	// CountLive counts the user's sessions created after cutoff.
	CountLive(ctx context.Context, userID string, cutoff time.Time) (int, error)

	// DeleteExpired deletes the user's sessions created at or before cutoff.
	DeleteExpired(ctx context.Context, userID string, cutoff time.Time) (int64, error)

	// DeleteOldest deletes the user's session with the smallest created_at. No-op if none.
	DeleteOldest(ctx context.Context, userID string) error

	// Insert creates a session row. Returns ErrDuplicateToken on digest collision
	// and ErrUserNotFound when the user does not exist.
	Insert(ctx context.Context, now time.Time, userID string, tokenHash string, dev DeviceContext) (Row, error)

	// FindByToken loads a session by digest. Returns ErrSessionNotFound when absent.
	FindByToken(ctx context.Context, tokenHash string) (Row, error)

	// Touch raises last_activity_at to now (never lowers it). No-op if absent.
	Touch(ctx context.Context, tokenHash string, now time.Time) error

	// DeleteByToken deletes a session by digest (idempotent) and reports
	// how many rows went.
	DeleteByToken(ctx context.Context, tokenHash string) (int64, error)

	// ListByUser returns the user's sessions ordered by created_at.
	ListByUser(ctx context.Context, userID string) ([]Row, error)

	// DeleteByUser deletes every session of the user.
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// DeleteAllExpired deletes sessions of every user created at or before cutoff.
	DeleteAllExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// UserLocker is implemented by stores able to serialize one user's session set.
//
// fn receives a Store bound to the locked scope; it must not use the outer store.
// Returns ErrUserNotFound when the user does not exist.
type UserLocker interface {
	WithUserLock(ctx context.Context, userID string, fn func(Store) error) error
}
