package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMemoryStore_InsertDuplicateAndUnknownUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	s.PutUser("u1", "alice")

	if _, err := s.Insert(ctx, testEpoch, "u1", "h1", DeviceContext{}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := s.Insert(ctx, testEpoch, "u1", "h1", DeviceContext{}); !errors.Is(err, ErrDuplicateToken) {
		t.Fatalf("expected ErrDuplicateToken, got %v", err)
	}
	if _, err := s.Insert(ctx, testEpoch, "nobody", "h2", DeviceContext{}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMemoryStore_DeleteOldest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	s.PutUser("u1", "alice")
	s.PutUser("u2", "bob")

	// No-op on an empty set.
	if err := s.DeleteOldest(ctx, "u1"); err != nil {
		t.Fatalf("DeleteOldest(empty): %v", err)
	}

	mustInsert := func(userID, hash string, at time.Time) {
		t.Helper()
		if _, err := s.Insert(ctx, at, userID, hash, DeviceContext{}); err != nil {
			t.Fatalf("Insert(%s): %v", hash, err)
		}
	}
	mustInsert("u1", "newer", testEpoch.Add(time.Minute))
	mustInsert("u1", "oldest", testEpoch)
	mustInsert("u2", "older-but-other-user", testEpoch.Add(-time.Hour))

	if err := s.DeleteOldest(ctx, "u1"); err != nil {
		t.Fatalf("DeleteOldest: %v", err)
	}
	if _, err := s.FindByToken(ctx, "oldest"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected oldest deleted, got %v", err)
	}
	for _, h := range []string{"newer", "older-but-other-user"} {
		if _, err := s.FindByToken(ctx, h); err != nil {
			t.Fatalf("%s should survive: %v", h, err)
		}
	}
}

func TestMemoryStore_CountAndDeleteExpiredBoundary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	s.PutUser("u1", "alice")

	cutoff := testEpoch
	for hash, at := range map[string]time.Time{
		"at-cutoff": cutoff,
		"before":    cutoff.Add(-time.Second),
		"after":     cutoff.Add(time.Second),
	} {
		if _, err := s.Insert(ctx, at, "u1", hash, DeviceContext{}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	n, err := s.CountLive(ctx, "u1", cutoff)
	if err != nil || n != 1 {
		t.Fatalf("CountLive=%d,%v want 1", n, err)
	}

	deleted, err := s.DeleteExpired(ctx, "u1", cutoff)
	if err != nil || deleted != 2 {
		t.Fatalf("DeleteExpired=%d,%v want 2", deleted, err)
	}
	deleted, err = s.DeleteExpired(ctx, "u1", cutoff)
	if err != nil || deleted != 0 {
		t.Fatalf("second DeleteExpired=%d,%v want 0", deleted, err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	s.PutUser("u1", "alice")

	dev := DeviceContext{IP: []byte{10, 0, 0, 1}}
	if _, err := s.Insert(ctx, testEpoch, "u1", "h", dev); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	dev.IP[0] = 99

	row, err := s.FindByToken(ctx, "h")
	if err != nil {
		t.Fatalf("FindByToken: %v", err)
	}
	if row.IPAddress[0] != 10 {
		t.Fatalf("stored IP aliased caller's slice: %v", row.IPAddress)
	}
	row.IPAddress[0] = 42

	again, _ := s.FindByToken(ctx, "h")
	if again.IPAddress[0] != 10 {
		t.Fatalf("returned IP aliased stored slice: %v", again.IPAddress)
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore()
	s.PutUser("u1", "alice")
	if _, err := s.CountLive(ctx, "u1", testEpoch); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := s.WithUserLock(ctx, "u1", func(Store) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMemoryStore_UserLocksArePruned(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 50; i++ {
		s.PutUser(fmt.Sprintf("u%d", i), "user")
	}

	for i := 0; i < 50; i++ {
		userID := fmt.Sprintf("u%d", i)
		if err := s.WithUserLock(ctx, userID, func(Store) error { return nil }); err != nil {
			t.Fatalf("WithUserLock(%s): %v", userID, err)
		}
	}
	if n := s.lockCount(); n != 0 {
		t.Fatalf("locks=%d after all callers returned, want 0", n)
	}

	// A held lock stays registered so a second caller queues on it.
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithUserLock(ctx, "u1", func(Store) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered
	if n := s.lockCount(); n != 1 {
		t.Fatalf("locks=%d while held, want 1", n)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("WithUserLock: %v", err)
	}

	boom := errors.New("boom")
	if err := s.WithUserLock(ctx, "u2", func(Store) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if n := s.lockCount(); n != 0 {
		t.Fatalf("locks=%d after release, want 0", n)
	}
}
