package session

import (
	"context"
	"log/slog"
	"time"
)

// SweepFunc deletes rows expired at now and reports how many went.
type SweepFunc func(ctx context.Context, now time.Time) (int64, error)

type sweepJob struct {
	name string
	fn   SweepFunc
}

// Sweeper periodically deletes expired sessions of every user, plus any
// extra expiry jobs registered with Also.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
	extra    []sweepJob
}

// NewSweeper builds a sweeper using the service's configured SweepInterval.
func NewSweeper(svc *Service, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Sweeper{
		svc:      svc,
		interval: svc.cfg.SweepInterval,
		log:      log,
		now:      time.Now,
	}
}

// Also registers another expiry job run on the same schedule.
func (w *Sweeper) Also(name string, fn SweepFunc) *Sweeper {
	if fn != nil {
		w.extra = append(w.extra, sweepJob{name: name, fn: fn})
	}
	return w
}

// Run sweeps once immediately, then every interval until ctx is done.
// It returns at once when the interval is zero.
func (w *Sweeper) Run(ctx context.Context) {
	if w.interval <= 0 {
		return
	}

	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		w.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// RunOnce runs every job a single time and returns the total deleted.
func (w *Sweeper) RunOnce(ctx context.Context) int64 {
	now := w.now().UTC()

	var total int64

	jobs := append([]sweepJob{{name: "sessions", fn: w.svc.Sweep}}, w.extra...)
	for _, j := range jobs {
		n, err := j.fn(ctx, now)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error("sweep.fail", "job", j.name, "err", err)
			}
			continue
		}
		if n > 0 {
			w.log.Info("sweep.ok", "job", j.name, "deleted", n)
		}
		total += n
	}
	return total
}
