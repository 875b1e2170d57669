package db

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationFS embeds the SQL migrations applied by Migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS

// Direction is a migration direction accepted by Migrate.
type Direction string

const (
	// Up applies all pending migrations.
	Up Direction = "up"
	// Down rolls back all applied migrations.
	Down Direction = "down"
)

var (
	// ErrNoDSN is returned when Migrate is called without a database URL.
	ErrNoDSN = errors.New("db: database url is not set")
	// ErrDirection is returned for anything other than "up" or "down".
	ErrDirection = errors.New("db: direction must be up or down")
)

// ParseDirection maps CLI input onto a Direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Up:
		return Up, nil
	case Down:
		return Down, nil
	default:
		return "", fmt.Errorf("%w, got %q", ErrDirection, s)
	}
}

// Migrate applies the embedded migrations in the given direction.
// Being already at the target version is not an error.
func Migrate(dsn string, dir Direction) error {
	if strings.TrimSpace(dsn) == "" {
		return ErrNoDSN
	}
	if dir != Up && dir != Down {
		return fmt.Errorf("%w, got %q", ErrDirection, dir)
	}

	src, err := iofs.New(MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch dir {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
