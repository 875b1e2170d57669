package identity

import (
	"strings"
	"time"
)

// newUser is a validated, hashed registration ready to persist.
type newUser struct {
	ID           string
	Username     string
	UsernameNorm string
	Email        *string
	EmailNorm    *string
	PasswordHash string
	CreatedAt    time.Time
}

func (n newUser) User() User {
	return User{ID: n.ID, Username: n.Username, Email: n.Email, CreatedAt: n.CreatedAt}
}

// prepareUser validates the input, hashes the password and assigns an ID.
func prepareUser(op string, in CreateUserInput, params Argon2idParams) (newUser, error) {
	username := strings.TrimSpace(in.Username)
	usernameNorm := NormalizeUsername(username)
	if !ValidUsername(usernameNorm) {
		return newUser{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid username"}
	}

	var email, emailNorm *string
	if in.Email != nil && strings.TrimSpace(*in.Email) != "" {
		e := strings.TrimSpace(*in.Email)
		n := NormalizeEmail(e)
		if !ValidEmail(n) {
			return newUser{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid email"}
		}
		email, emailNorm = &e, &n
	}

	pwHash, err := HashPassword(in.Password, params)
	if err != nil {
		return newUser{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := NewULID(now)
	if err != nil {
		return newUser{}, err
	}

	return newUser{
		ID:           id,
		Username:     username,
		UsernameNorm: usernameNorm,
		Email:        email,
		EmailNorm:    emailNorm,
		PasswordHash: pwHash,
		CreatedAt:    now,
	}, nil
}
