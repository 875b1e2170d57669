package identity

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	params  Argon2idParams
	byID    map[string]UserAuth
	byName  map[string]string // username_norm -> id
	byEmail map[string]string // email_norm -> id

	onCreate func(User)
	onDelete func(userID string)
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryArgon2idParams overrides the hashing cost.
func WithMemoryArgon2idParams(p Argon2idParams) MemoryOption {
	return func(s *MemoryStore) { s.params = p }
}

// WithUserHooks registers callbacks run after a user is created or deleted.
// They let another in-memory table (sessions) follow the users table.
func WithUserHooks(onCreate func(User), onDelete func(userID string)) MemoryOption {
	return func(s *MemoryStore) {
		s.onCreate = onCreate
		s.onDelete = onDelete
	}
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		params:  DefaultArgon2idParams(),
		byID:    make(map[string]UserAuth),
		byName:  make(map[string]string),
		byEmail: make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CreateUser validates, hashes the password and stores the user.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	nu, err := prepareUser(op, in, s.params)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	if _, ok := s.byName[nu.UsernameNorm]; ok {
		s.mu.Unlock()
		return User{}, ConflictError{Op: op, Field: "username"}
	}
	if nu.EmailNorm != nil {
		if _, ok := s.byEmail[*nu.EmailNorm]; ok {
			s.mu.Unlock()
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		s.byEmail[*nu.EmailNorm] = nu.ID
	}
	s.byName[nu.UsernameNorm] = nu.ID
	s.byID[nu.ID] = UserAuth{User: nu.User(), PasswordHash: nu.PasswordHash}
	s.mu.Unlock()

	if s.onCreate != nil {
		s.onCreate(nu.User())
	}
	return nu.User(), nil
}

// GetUserByID loads a user by ID.
func (s *MemoryStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ua, ok := s.byID[strings.TrimSpace(userID)]
	if !ok {
		return User{}, OpError{Op: "identity.GetUserByID", Kind: ErrNotFound}
	}
	return ua.User, nil
}

// GetUserByEmail loads a user by normalized email.
func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, OpError{Op: "identity.GetUserByEmail", Kind: ErrNotFound}
	}
	return s.byID[id].User, nil
}

// GetUserAuthByUsername loads a user and its password hash by normalized username.
func (s *MemoryStore) GetUserAuthByUsername(ctx context.Context, username string) (UserAuth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[NormalizeUsername(username)]
	if !ok {
		return UserAuth{}, OpError{Op: "identity.GetUserAuthByUsername", Kind: ErrNotFound}
	}
	return s.byID[id], nil
}

// GetUserAuthByEmail loads a user and its password hash by normalized email.
func (s *MemoryStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return UserAuth{}, OpError{Op: "identity.GetUserAuthByEmail", Kind: ErrNotFound}
	}
	return s.byID[id], nil
}

// SetPassword hashes and stores a new password for the user.
func (s *MemoryStore) SetPassword(ctx context.Context, userID string, password string) error {
	const op = "identity.SetPassword"

	hash, err := HashPassword(password, s.params)
	if err != nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ua, ok := s.byID[userID]
	if !ok {
		return OpError{Op: op, Kind: ErrNotFound}
	}
	ua.PasswordHash = hash
	s.byID[userID] = ua
	return nil
}

// DeleteUser removes a user (idempotent).
func (s *MemoryStore) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	ua, ok := s.byID[userID]
	if ok {
		delete(s.byID, userID)
		delete(s.byName, NormalizeUsername(ua.User.Username))
		if ua.User.Email != nil {
			delete(s.byEmail, NormalizeEmail(*ua.User.Email))
		}
	}
	s.mu.Unlock()

	if ok && s.onDelete != nil {
		s.onDelete(userID)
	}
	return nil
}
