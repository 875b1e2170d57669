package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Version = 19 // argon2.Version is 0x13 (19)

	minPasswordLen = 8
	maxPasswordLen = 256
)

var (
	// ErrPasswordTooShort is returned by HashPassword for passwords under 8 bytes.
	ErrPasswordTooShort = errors.New("password too short")
	// ErrPasswordTooLong is returned by HashPassword for passwords over 256 bytes.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrInvalidHash is returned by VerifyPassword for malformed or out-of-bounds PHC strings.
	ErrInvalidHash = errors.New("invalid argon2id hash format")
)

// Argon2idParams defines Argon2id hashing parameters.
type Argon2idParams struct {
	MemoryKiB uint32
	Time      uint32
	Threads   uint8
	SaltLen   uint32
	KeyLen    uint32
}

// DefaultArgon2idParams returns the production hashing cost.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		MemoryKiB: 64 * 1024,
		Time:      3,
		Threads:   2,
		SaltLen:   16,
		KeyLen:    32,
	}
}

// CheckPasswordPolicy reports whether a plaintext password is acceptable.
func CheckPasswordPolicy(passwordPlain string) error {
	if len(passwordPlain) < minPasswordLen {
		return ErrPasswordTooShort
	}
	if len(passwordPlain) > maxPasswordLen {
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword returns a PHC-style Argon2id hash string:
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
func HashPassword(passwordPlain string, p Argon2idParams) (string, error) {
	if err := CheckPasswordPolicy(passwordPlain); err != nil {
		return "", err
	}
	p = saneParams(p)

	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey([]byte(passwordPlain), salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version, p.MemoryKiB, p.Time, p.Threads,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

// VerifyPassword checks a password against a PHC Argon2id hash.
// Returns (false, nil) on mismatch and (false, ErrInvalidHash) for malformed hashes.
func VerifyPassword(passwordPlain string, encodedPHC string) (bool, error) {
	if len(passwordPlain) > maxPasswordLen {
		return false, nil
	}

	p, salt, expected, err := decodePHC(encodedPHC)
	if err != nil {
		return false, err
	}

	// Refuse attacker-sized parameters stored in a tampered hash.
	limits := DefaultArgon2idParams()
	if p.MemoryKiB > limits.MemoryKiB*2 || p.Time > limits.Time*2 || p.Threads > limits.Threads*2 {
		return false, ErrInvalidHash
	}

	key := argon2.IDKey([]byte(passwordPlain), salt, p.Time, p.MemoryKiB, p.Threads, uint32(len(expected))) // #nosec G115 -- bounded by decodePHC.
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

func decodePHC(encoded string) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" || parts[2] != "v=19" {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 || len(salt) > 64 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	hash, err := b64.DecodeString(parts[5])
	if err != nil || len(hash) < 16 || len(hash) > 128 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	return Argon2idParams{MemoryKiB: mem, Time: it, Threads: uint8(par)}, salt, hash, nil
}

func saneParams(p Argon2idParams) Argon2idParams {
	def := DefaultArgon2idParams()
	if p.MemoryKiB < 8*1024 {
		p.MemoryKiB = def.MemoryKiB
	}
	if p.Time == 0 {
		p.Time = def.Time
	}
	if p.Threads == 0 {
		p.Threads = 1
	}
	if p.SaltLen < 8 {
		p.SaltLen = def.SaltLen
	}
	if p.KeyLen < 16 {
		p.KeyLen = def.KeyLen
	}
	return p
}
