package identity

import (
	"context"
	"time"
)

// User is codeplat's canonical security principal.
type User struct {
	ID        string
	Username  string
	Email     *string
	CreatedAt time.Time
}

// UserAuth pairs a user with its stored credential hash. It never leaves the auth gateway.
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput describes a registration request.
type CreateUserInput struct {
	Username string
	Email    *string
	Password string
	Now      time.Time
}

// Store is the identity persistence boundary.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, userID string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserAuthByUsername(ctx context.Context, username string) (UserAuth, error)
	GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error)

	// SetPassword replaces the user's credential hash.
	SetPassword(ctx context.Context, userID string, password string) error

	// DeleteUser removes the user; its sessions go with it (ON DELETE CASCADE).
	DeleteUser(ctx context.Context, userID string) error
}
