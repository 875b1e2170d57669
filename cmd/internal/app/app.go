// Package app wires the codeplat server runtime: config, logging, storage,
// the auth gateway and the background sweeper.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"codeplat/cmd/identity"
	authapi "codeplat/cmd/internal/auth/api"
	"codeplat/cmd/internal/auth/session"
	"codeplat/cmd/internal/db"
	"codeplat/cmd/internal/verify"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// App is the codeplat server runtime. It owns the pool and redis client lifecycles.
type App struct {
	cfg Config
	log Logger

	pool  *pgxpool.Pool
	redis *redis.Client

	registry *prometheus.Registry
	sessions *session.Service
	codes    *verify.Service
	sweeper  *session.Sweeper
	auth     *authapi.Handler
}

// New constructs a fully wired App. The caller must Close it.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.DatabaseURL, db.Up); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("db.migrated")
	}

	pool, err := db.NewPool(ctx, cfg.Pool())
	if err != nil {
		return nil, fmt.Errorf("db pool: %w", err)
	}

	a := &App{cfg: cfg, log: log, pool: pool}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, log := a.cfg, a.log

	hasher, err := cfg.TokenHasher()
	if err != nil {
		return err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	users, err := identity.NewPostgresStore(a.pool)
	if err != nil {
		return err
	}

	a.sessions, err = session.NewService(cfg.Session(), session.NewPostgresStore(a.pool),
		session.WithLogger(log),
		session.WithMetrics(session.NewMetrics(a.registry)),
		session.WithHasher(hasher),
	)
	if err != nil {
		return err
	}

	var codeStore verify.Store
	if cfg.RedisAddr != "" {
		a.redis, err = verify.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		codeStore = verify.NewRedisStore(a.redis)
		log.Info("verify.store.redis", "addr", cfg.RedisAddr)
	} else {
		codeStore = verify.NewPostgresStore(a.pool)
		log.Info("verify.store.postgres")
	}

	a.codes, err = verify.NewService(cfg.Verify(), codeStore, verify.NoopMailer{Log: log},
		verify.WithLogger(log),
		verify.WithHasher(hasher),
	)
	if err != nil {
		return err
	}

	var audit authapi.AuditLog = authapi.SlogAuditLog{Log: log}
	if cfg.AuditToDB {
		audit = authapi.NewPostgresAuditLog(a.pool, log)
	}

	a.auth, err = authapi.NewHandler(log, cfg.Auth(), users, a.sessions,
		authapi.WithVerification(a.codes),
		authapi.WithAuditLog(audit),
	)
	if err != nil {
		return err
	}

	a.sweeper = session.NewSweeper(a.sessions, log).Also("verification_codes", a.codes.Purge)

	log.Info("app.wired",
		"token_hmac", hasher.HMACEnabled(),
		"strict_cap", cfg.SessionStrictCap,
		"max_sessions", cfg.SessionMaxConcurrent,
		"cookie_transport", cfg.CookieEnabled,
	)
	return nil
}

// Handler returns the full HTTP handler (routes plus request logging).
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	deps := map[string]pinger{
		"db": pingFunc(func(ctx context.Context) error { return db.Ping(ctx, a.pool, 2*time.Second) }),
	}
	if a.redis != nil {
		deps["redis"] = pingFunc(func(ctx context.Context) error { return a.redis.Ping(ctx).Err() })
	}

	registerHTTP(mux, a.log, a.registry, deps)
	a.auth.Register(mux)

	return WithRequestLogging(mux, mux, a.log, NewHTTPMetrics(a.registry))
}

// Run starts the HTTP server and the sweeper and blocks until ctx is canceled
// or the server fails.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sweeper.Run(sweepCtx)
	}()
	defer func() {
		stopSweep()
		wg.Wait()
	}()

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

// SweepOnce purges expired sessions and verification codes a single time.
func (a *App) SweepOnce(ctx context.Context) int64 {
	return a.sweeper.RunOnce(ctx)
}

// Close releases the pool and the redis client.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
