package session

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL (codeplat.sessions).
//
// Outside WithUserLock every call acquires a pooled connection for one
// statement and releases it on return.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    querier

	// tx is set on the store view handed to WithUserLock callbacks.
	tx pgx.Tx
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

const selectSessionColumns = `
	s.id, s.user_id, u.username, s.token_hash,
	host(s.ip_address), s.user_agent, s.created_at, s.last_activity_at`

// CountLive counts the user's sessions created after cutoff.
func (s *PostgresStore) CountLive(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, `
		SELECT count(*)
		FROM codeplat.sessions
		WHERE user_id = $1
		  AND created_at > $2
	`, userID, cutoff).Scan(&n)
	return n, err
}

// DeleteExpired deletes the user's sessions created at or before cutoff.
func (s *PostgresStore) DeleteExpired(ctx context.Context, userID string, cutoff time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, `
		DELETE FROM codeplat.sessions
		WHERE user_id = $1
		  AND created_at <= $2
	`, userID, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteOldest deletes the user's session with the smallest created_at.
func (s *PostgresStore) DeleteOldest(ctx context.Context, userID string) error {
	_, err := s.q.Exec(ctx, `
		DELETE FROM codeplat.sessions
		WHERE id = (
			SELECT id
			FROM codeplat.sessions
			WHERE user_id = $1
			ORDER BY created_at ASC, id ASC
			LIMIT 1
		)
	`, userID)
	return err
}

// Insert creates a session row with a fresh ULID.
//
// Inside WithUserLock the insert runs under a savepoint so a digest collision
// leaves the surrounding transaction usable for the retry.
func (s *PostgresStore) Insert(ctx context.Context, now time.Time, userID string, tokenHash string, dev DeviceContext) (Row, error) {
	if s.tx == nil {
		return insertSession(ctx, s.q, now, userID, tokenHash, dev)
	}

	sp, err := s.tx.Begin(ctx)
	if err != nil {
		return Row{}, err
	}
	row, err := insertSession(ctx, sp, now, userID, tokenHash, dev)
	if err != nil {
		_ = sp.Rollback(ctx)
		return Row{}, err
	}
	if err := sp.Commit(ctx); err != nil {
		return Row{}, err
	}
	return row, nil
}

func insertSession(ctx context.Context, q querier, now time.Time, userID string, tokenHash string, dev DeviceContext) (Row, error) {
	id := ulid.Make().String()
	ua := strings.TrimSpace(dev.UserAgent)

	var username string
	err := q.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO codeplat.sessions (
				id, user_id, token_hash, ip_address, user_agent, created_at, last_activity_at
			) VALUES (
				$1, $2, $3, $4::inet, $5, $6, $6
			)
			RETURNING user_id
		)
		SELECT u.username
		FROM ins
		JOIN codeplat.users u ON u.id = ins.user_id
	`, id, userID, tokenHash, ipOrNil(dev.IP), nullIfEmpty(ua), now).Scan(&username)
	if err != nil {
		switch {
		case pgIsUniqueViolation(err, "token_hash"):
			return Row{}, ErrDuplicateToken
		case pgIsForeignKeyViolation(err):
			return Row{}, ErrUserNotFound
		}
		return Row{}, err
	}

	return Row{
		ID:             id,
		UserID:         userID,
		Username:       username,
		TokenHash:      tokenHash,
		IPAddress:      cloneIP(dev.IP),
		UserAgent:      ua,
		CreatedAt:      now,
		LastActivityAt: now,
	}, nil
}

// FindByToken loads a session by digest, joined with its owner's username.
func (s *PostgresStore) FindByToken(ctx context.Context, tokenHash string) (Row, error) {
	row, err := scanRow(s.q.QueryRow(ctx, `
		SELECT`+selectSessionColumns+`
		FROM codeplat.sessions s
		JOIN codeplat.users u ON u.id = s.user_id
		WHERE s.token_hash = $1
	`, tokenHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, err
	}
	return row, nil
}

// Touch raises last_activity_at to now.
func (s *PostgresStore) Touch(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := s.q.Exec(ctx, `
		UPDATE codeplat.sessions
		SET last_activity_at = GREATEST(last_activity_at, $2)
		WHERE token_hash = $1
	`, tokenHash, now)
	return err
}

// DeleteByToken deletes a session by digest (idempotent).
func (s *PostgresStore) DeleteByToken(ctx context.Context, tokenHash string) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM codeplat.sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListByUser returns the user's sessions ordered by created_at.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Row, error) {
	rows, err := s.q.Query(ctx, `
		SELECT`+selectSessionColumns+`
		FROM codeplat.sessions s
		JOIN codeplat.users u ON u.id = s.user_id
		WHERE s.user_id = $1
		ORDER BY s.created_at ASC, s.id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// DeleteByUser deletes every session of the user.
func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM codeplat.sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteAllExpired deletes sessions of every user created at or before cutoff.
func (s *PostgresStore) DeleteAllExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM codeplat.sessions WHERE created_at <= $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRow(r pgx.Row) (Row, error) {
	var (
		row Row
		ip  *string
		ua  *string
	)
	err := r.Scan(
		&row.ID,
		&row.UserID,
		&row.Username,
		&row.TokenHash,
		&ip,
		&ua,
		&row.CreatedAt,
		&row.LastActivityAt,
	)
	if err != nil {
		return Row{}, err
	}
	if ip != nil {
		row.IPAddress = net.ParseIP(*ip)
	}
	if ua != nil {
		row.UserAgent = *ua
	}
	return row, nil
}

func ipOrNil(ip net.IP) any {
	if ip == nil {
		return nil
	}
	return ip.String()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func pgIsUniqueViolation(err error, constraintHint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" { // unique_violation
		return false
	}
	return constraintHint == "" || strings.Contains(strings.ToLower(pgErr.ConstraintName), constraintHint)
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}
