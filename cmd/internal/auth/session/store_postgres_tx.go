package session

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// WithUserLock runs fn inside one transaction that holds a row lock on the
// user (SELECT ... FOR UPDATE). Concurrent creates for the same user queue on
// that lock, which closes the count-then-evict-then-insert race.
//
// fn's store view shares the transaction; returning an error rolls it back.
func (s *PostgresStore) WithUserLock(ctx context.Context, userID string, fn func(Store) error) error {
	if s.tx != nil {
		// Already inside a locked scope.
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockUserTx(ctx, tx, userID); err != nil {
		return err
	}

	if err := fn(&PostgresStore{pool: s.pool, q: tx, tx: tx}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func lockUserTx(ctx context.Context, tx pgx.Tx, userID string) error {
	var id string
	err := tx.QueryRow(ctx, `
		SELECT id
		FROM codeplat.users
		WHERE id = $1
		FOR UPDATE
	`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}
	return err
}
