package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over codeplat.users.
//
// The pgx pool is owned by the caller; this store must NOT close it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	params Argon2idParams
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore)

// WithArgon2idParams overrides the hashing cost (tests use cheap parameters).
func WithArgon2idParams(p Argon2idParams) PostgresOption {
	return func(s *PostgresStore) { s.params = p }
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	st := &PostgresStore{pool: pool, params: DefaultArgon2idParams()}
	for _, opt := range opts {
		if opt != nil {
			opt(st)
		}
	}
	return st, nil
}

// CreateUser validates, hashes the password and inserts the user.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	nu, err := prepareUser(op, in, s.params)
	if err != nil {
		return User{}, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO codeplat.users (id, username, username_norm, email, email_norm, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, nu.ID, nu.Username, nu.UsernameNorm, nu.Email, nu.EmailNorm, nu.PasswordHash, nu.CreatedAt)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	return nu.User(), nil
}

// GetUserByID loads a user by primary key.
func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.getUser(ctx, "identity.GetUserByID", `id = $1`, strings.TrimSpace(userID))
}

// GetUserByEmail loads a user by normalized email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.getUser(ctx, "identity.GetUserByEmail", `email_norm = $1`, NormalizeEmail(email))
}

func (s *PostgresStore) getUser(ctx context.Context, op, where, arg string) (User, error) {
	if arg == "" {
		return User{}, OpError{Op: op, Kind: ErrNotFound}
	}

	var u User
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, email, created_at
		FROM codeplat.users
		WHERE `+where, arg).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, OpError{Op: op, Kind: ErrNotFound}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUserAuthByUsername loads a user and its password hash by normalized username.
func (s *PostgresStore) GetUserAuthByUsername(ctx context.Context, username string) (UserAuth, error) {
	return s.getUserAuth(ctx, "identity.GetUserAuthByUsername", `username_norm = $1`, NormalizeUsername(username))
}

// GetUserAuthByEmail loads a user and its password hash by normalized email.
func (s *PostgresStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	return s.getUserAuth(ctx, "identity.GetUserAuthByEmail", `email_norm = $1`, NormalizeEmail(email))
}

func (s *PostgresStore) getUserAuth(ctx context.Context, op, where, arg string) (UserAuth, error) {
	if arg == "" {
		return UserAuth{}, OpError{Op: op, Kind: ErrNotFound}
	}

	var ua UserAuth
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, email, created_at, password_hash
		FROM codeplat.users
		WHERE `+where, arg).Scan(&ua.User.ID, &ua.User.Username, &ua.User.Email, &ua.User.CreatedAt, &ua.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserAuth{}, OpError{Op: op, Kind: ErrNotFound}
	}
	if err != nil {
		return UserAuth{}, err
	}
	return ua, nil
}

// SetPassword hashes and stores a new password for the user.
func (s *PostgresStore) SetPassword(ctx context.Context, userID string, password string) error {
	const op = "identity.SetPassword"

	hash, err := HashPassword(password, s.params)
	if err != nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	tag, err := s.pool.Exec(ctx, `UPDATE codeplat.users SET password_hash = $2 WHERE id = $1`, userID, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return OpError{Op: op, Kind: ErrNotFound}
	}
	return nil
}

// DeleteUser deletes a user (idempotent). Sessions are removed by the FK cascade.
func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM codeplat.users WHERE id = $1`, userID)
	return err
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case strings.Contains(c, "username"):
		return "username", true
	case strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}
