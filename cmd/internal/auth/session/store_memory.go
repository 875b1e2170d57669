package session

import (
	"context"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryStore is an in-process Store for tests. It keeps its own user table so
// that username resolution and cascade deletion behave like Postgres.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]string // user id -> username
	sessions map[string]Row    // token hash -> row
	locks    map[string]*userLock
}

// userLock is dropped from MemoryStore.locks once no caller holds or waits on it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]string),
		sessions: make(map[string]Row),
		locks:    make(map[string]*userLock),
	}
}

// PutUser registers (or renames) a user.
func (s *MemoryStore) PutUser(userID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = username
}

// DeleteUser removes a user and, like ON DELETE CASCADE, all of its sessions.
func (s *MemoryStore) DeleteUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	for h, row := range s.sessions {
		if row.UserID == userID {
			delete(s.sessions, h)
		}
	}
}

// CountLive counts the user's sessions created after cutoff.
func (s *MemoryStore) CountLive(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, row := range s.sessions {
		if row.UserID == userID && row.CreatedAt.After(cutoff) {
			n++
		}
	}
	return n, nil
}

// DeleteExpired deletes the user's sessions created at or before cutoff.
func (s *MemoryStore) DeleteExpired(ctx context.Context, userID string, cutoff time.Time) (int64, error) {
	return s.deleteWhere(ctx, func(row Row) bool {
		return row.UserID == userID && !row.CreatedAt.After(cutoff)
	})
}

// DeleteOldest deletes the user's session with the smallest created_at.
func (s *MemoryStore) DeleteOldest(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		oldestHash string
		oldest     Row
		found      bool
	)
	for h, row := range s.sessions {
		if row.UserID != userID {
			continue
		}
		if !found || olderThan(row, oldest) {
			oldestHash, oldest, found = h, row, true
		}
	}
	if found {
		delete(s.sessions, oldestHash)
	}
	return nil
}

// Insert creates a session row.
func (s *MemoryStore) Insert(ctx context.Context, now time.Time, userID string, tokenHash string, dev DeviceContext) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	username, ok := s.users[userID]
	if !ok {
		return Row{}, ErrUserNotFound
	}
	if _, dup := s.sessions[tokenHash]; dup {
		return Row{}, ErrDuplicateToken
	}

	row := Row{
		ID:             ulid.Make().String(),
		UserID:         userID,
		Username:       username,
		TokenHash:      tokenHash,
		IPAddress:      cloneIP(dev.IP),
		UserAgent:      strings.TrimSpace(dev.UserAgent),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	s.sessions[tokenHash] = row
	return cloneRow(row), nil
}

// FindByToken loads a session by digest.
func (s *MemoryStore) FindByToken(ctx context.Context, tokenHash string) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.sessions[tokenHash]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	row.Username = s.users[row.UserID]
	return cloneRow(row), nil
}

// Touch raises last_activity_at to now.
func (s *MemoryStore) Touch(ctx context.Context, tokenHash string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.sessions[tokenHash]
	if !ok {
		return nil
	}
	if now.After(row.LastActivityAt) {
		row.LastActivityAt = now
		s.sessions[tokenHash] = row
	}
	return nil
}

// DeleteByToken deletes a session by digest.
func (s *MemoryStore) DeleteByToken(ctx context.Context, tokenHash string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[tokenHash]; !ok {
		return 0, nil
	}
	delete(s.sessions, tokenHash)
	return 1, nil
}

// ListByUser returns the user's sessions ordered by created_at.
func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Row
	for _, row := range s.sessions {
		if row.UserID == userID {
			row.Username = s.users[userID]
			out = append(out, cloneRow(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return olderThan(out[i], out[j]) })
	return out, nil
}

// DeleteByUser deletes every session of the user.
func (s *MemoryStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	return s.deleteWhere(ctx, func(row Row) bool { return row.UserID == userID })
}

// DeleteAllExpired deletes sessions created at or before cutoff.
func (s *MemoryStore) DeleteAllExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteWhere(ctx, func(row Row) bool { return !row.CreatedAt.After(cutoff) })
}

// WithUserLock serializes fn against other locked calls for the same user.
func (s *MemoryStore) WithUserLock(ctx context.Context, userID string, fn func(Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.users[userID]; !ok {
		s.mu.Unlock()
		return ErrUserNotFound
	}
	l := s.locks[userID]
	if l == nil {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.mu.Unlock()
	}()

	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(s)
}

func (s *MemoryStore) lockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

func (s *MemoryStore) deleteWhere(ctx context.Context, match func(Row) bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for h, row := range s.sessions {
		if match(row) {
			delete(s.sessions, h)
			n++
		}
	}
	return n, nil
}

// olderThan orders by created_at, then id (ULIDs sort by creation).
func olderThan(a, b Row) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func cloneRow(r Row) Row {
	r.IPAddress = cloneIP(r.IPAddress)
	return r
}

func cloneIP(ip net.IP) net.IP {
	if ip == nil {
		return nil
	}
	out := make(net.IP, len(ip))
	copy(out, ip)
	return out
}
