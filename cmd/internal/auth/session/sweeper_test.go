package session

import (
	"context"
	"testing"
	"time"
)

func TestSweeper_RunSweepsUntilCanceled(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t, func(c *Config) { c.SweepInterval = time.Millisecond })
	store.PutUser("u1", "alice")

	ctx := context.Background()
	old := mustCreate(ctx, t, svc, time.Now().UTC().Add(-DefaultExpirationWindow-time.Hour), "u1")

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewSweeper(svc, nil).Run(runCtx)
	}()

	deadline := time.After(2 * time.Second)
	for {
		rows, err := store.ListByUser(ctx, "u1")
		if err != nil {
			t.Fatalf("ListByUser: %v", err)
		}
		if len(rows) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("sweeper did not delete %s", old.SessionID)
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop after cancel")
	}
}

func TestSweeper_DisabledReturnsImmediately(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, func(c *Config) { c.SweepInterval = 0 })

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewSweeper(svc, nil).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("disabled sweeper should return at once")
	}
}

func TestSweeper_RunOnceRunsExtraJobs(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t, nil)
	store.PutUser("u1", "alice")

	ctx := context.Background()
	mustCreate(ctx, t, svc, time.Now().UTC().Add(-DefaultExpirationWindow-time.Hour), "u1")

	var extraCalls int
	failing := func(context.Context, time.Time) (int64, error) { return 0, context.DeadlineExceeded }
	counting := func(context.Context, time.Time) (int64, error) {
		extraCalls++
		return 3, nil
	}

	w := NewSweeper(svc, nil).Also("broken", failing).Also("codes", counting).Also("nil", nil)
	if got := w.RunOnce(ctx); got != 4 {
		t.Fatalf("deleted=%d want 4 (1 session + 3 codes)", got)
	}
	if extraCalls != 1 {
		t.Fatalf("extra job calls=%d want 1", extraCalls)
	}
}
