package verify

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps pending codes in codeplat.verification_codes.
// Expired rows are overwritten by the next Put or removed on Check.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed code store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Put(ctx context.Context, email string, e Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO codeplat.verification_codes (email_norm, code_hash, expires_at, attempts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email_norm) DO UPDATE
		SET code_hash = EXCLUDED.code_hash,
		    expires_at = EXCLUDED.expires_at,
		    attempts = EXCLUDED.attempts
	`, email, e.CodeHash, e.ExpiresAt, e.Attempts)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, email string) (Entry, error) {
	var e Entry
	err := s.pool.QueryRow(ctx, `
		SELECT code_hash, expires_at, attempts
		FROM codeplat.verification_codes
		WHERE email_norm = $1
	`, email).Scan(&e.CodeHash, &e.ExpiresAt, &e.Attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrCodeNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Attempt increments under a row-level guard so concurrent checks can never
// push attempts past maxAttempts.
func (s *PostgresStore) Attempt(ctx context.Context, email string, now time.Time, maxAttempts int) (Entry, error) {
	var e Entry
	err := s.pool.QueryRow(ctx, `
		UPDATE codeplat.verification_codes
		SET attempts = attempts + 1
		WHERE email_norm = $1 AND attempts < $2 AND expires_at > $3
		RETURNING code_hash, expires_at, attempts
	`, email, maxAttempts, now).Scan(&e.CodeHash, &e.ExpiresAt, &e.Attempts)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, err
	}

	// Nothing was spent; report why.
	cur, err := s.Get(ctx, email)
	if err != nil {
		return Entry{}, err
	}
	if !now.Before(cur.ExpiresAt) {
		if _, err := s.pool.Exec(ctx, `
			DELETE FROM codeplat.verification_codes
			WHERE email_norm = $1 AND expires_at <= $2
		`, email, now); err != nil {
			return Entry{}, err
		}
		return Entry{}, ErrCodeExpired
	}
	return Entry{}, ErrTooManyAttempts
}

func (s *PostgresStore) Take(ctx context.Context, email string, codeHash string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM codeplat.verification_codes
		WHERE email_norm = $1 AND code_hash = $2 AND expires_at > $3
	`, email, codeHash, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Delete(ctx context.Context, email string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM codeplat.verification_codes WHERE email_norm = $1`, email)
	return err
}

// DeleteExpired purges codes past their expiry.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM codeplat.verification_codes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
