package verify

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps pending codes in process. Tests only: codes do not survive
// a restart and are not shared between instances.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Put(_ context.Context, email string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[email] = e
	return nil
}

func (s *MemoryStore) Get(_ context.Context, email string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[email]
	if !ok {
		return Entry{}, ErrCodeNotFound
	}
	return e, nil
}

func (s *MemoryStore) Attempt(_ context.Context, email string, now time.Time, maxAttempts int) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[email]
	if !ok {
		return Entry{}, ErrCodeNotFound
	}
	if !now.Before(e.ExpiresAt) {
		delete(s.entries, email)
		return Entry{}, ErrCodeExpired
	}
	if e.Attempts >= maxAttempts {
		return Entry{}, ErrTooManyAttempts
	}
	e.Attempts++
	s.entries[email] = e
	return e, nil
}

func (s *MemoryStore) Take(_ context.Context, email string, codeHash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[email]
	if !ok || e.CodeHash != codeHash || !now.Before(e.ExpiresAt) {
		return false, nil
	}
	delete(s.entries, email)
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, email)
	return nil
}
