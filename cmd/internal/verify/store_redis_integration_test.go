package verify

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

// Redis tests are enabled when CODEPLAT_REDIS_ADDR is set.

func TestRedisStore_Lifecycle(t *testing.T) {
	t.Parallel()

	addr := os.Getenv("CODEPLAT_REDIS_ADDR")
	if addr == "" {
		t.Skip("CODEPLAT_REDIS_ADDR is not set; skipping Redis integration test")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, os.Getenv("CODEPLAT_REDIS_PASSWORD"), 0)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	st := NewRedisStore(client)
	email := "it+" + ulid.Make().String() + "@example.com"
	t.Cleanup(func() { _ = st.Delete(context.Background(), email) })

	if _, err := st.Get(ctx, email); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
	if _, err := st.Attempt(ctx, email, time.Now(), 2); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("Attempt on missing key: expected ErrCodeNotFound, got %v", err)
	}

	exp := time.Now().Add(time.Minute).Truncate(time.Millisecond).UTC()
	if err := st.Put(ctx, email, Entry{CodeHash: "abc", ExpiresAt: exp}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := st.Attempt(ctx, email, time.Now(), 2)
	if err != nil || got.Attempts != 1 || got.CodeHash != "abc" || !got.ExpiresAt.Equal(exp) {
		t.Fatalf("Attempt=%+v,%v want attempts 1", got, err)
	}

	e, err := st.Get(ctx, email)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.CodeHash != "abc" || e.Attempts != 1 || !e.ExpiresAt.Equal(exp) {
		t.Fatalf("unexpected entry: %+v", e)
	}

	ttl, err := client.PTTL(ctx, st.key(email)).Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl=%v,%v", ttl, err)
	}

	if _, err := st.Attempt(ctx, email, time.Now(), 2); err != nil {
		t.Fatalf("second Attempt: %v", err)
	}
	if _, err := st.Attempt(ctx, email, time.Now(), 2); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
	if e, _ := st.Get(ctx, email); e.Attempts != 2 {
		t.Fatalf("refused attempt was counted: %+v", e)
	}

	// Put replaces and resets attempts.
	if err := st.Put(ctx, email, Entry{CodeHash: "def", ExpiresAt: exp}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if e, _ := st.Get(ctx, email); e.Attempts != 0 || e.CodeHash != "def" {
		t.Fatalf("expected replaced entry, got %+v", e)
	}

	if ok, err := st.Take(ctx, email, "abc", time.Now()); err != nil || ok {
		t.Fatalf("Take with stale hash=%v,%v want false", ok, err)
	}
	if ok, err := st.Take(ctx, email, "def", time.Now()); err != nil || !ok {
		t.Fatalf("Take=%v,%v want true", ok, err)
	}
	if ok, _ := st.Take(ctx, email, "def", time.Now()); ok {
		t.Fatalf("second Take succeeded")
	}

	if err := st.Put(ctx, email, Entry{CodeHash: "ghi", ExpiresAt: exp}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := st.Attempt(ctx, email, exp, 5); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}

	if err := st.Delete(ctx, email); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Get(ctx, email); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound after delete, got %v", err)
	}
}
