package identity

import (
	"errors"
	"strings"
	"testing"
)

// Cheap parameters keep the suite fast; production cost is covered by DefaultArgon2idParams.
var testParams = Argon2idParams{MemoryKiB: 8 * 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32}

func TestHashAndVerifyPassword(t *testing.T) {
	t.Parallel()

	enc, err := HashPassword("correct horse battery", testParams)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(enc, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding: %q", enc)
	}

	ok, err := VerifyPassword("correct horse battery", enc)
	if err != nil || !ok {
		t.Fatalf("VerifyPassword(match)=%v,%v", ok, err)
	}

	ok, err = VerifyPassword("wrong horse battery", enc)
	if err != nil || ok {
		t.Fatalf("VerifyPassword(mismatch)=%v,%v", ok, err)
	}
}

func TestHashPassword_Length(t *testing.T) {
	t.Parallel()

	if _, err := HashPassword("short", testParams); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if _, err := HashPassword(strings.Repeat("x", 257), testParams); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestVerifyPassword_InvalidHash(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=999999999,t=1,p=1$c2FsdHNhbHRzYWx0$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!$aGFzaGhhc2hoYXNoaGFzaA",
	}
	for _, enc := range cases {
		if _, err := VerifyPassword("whatever-password", enc); !errors.Is(err, ErrInvalidHash) {
			t.Fatalf("VerifyPassword(%q): expected ErrInvalidHash, got %v", enc, err)
		}
	}
}

func TestNormalizeAndValidate(t *testing.T) {
	t.Parallel()

	if got := NormalizeUsername("  Alice.B "); got != "alice.b" {
		t.Fatalf("NormalizeUsername=%q", got)
	}
	if got := NormalizeEmail(" A@Example.COM"); got != "a@example.com" {
		t.Fatalf("NormalizeEmail=%q", got)
	}

	usernames := map[string]bool{
		"al":          false,
		"alice":       true,
		"alice_b-2.x": true,
		"alice b":     false,
		"ÄLICE":       false,
	}
	for in, want := range usernames {
		if got := ValidUsername(in); got != want {
			t.Fatalf("ValidUsername(%q)=%v want=%v", in, got, want)
		}
	}

	emails := map[string]bool{
		"a@b.c":    true,
		"@b.c":     false,
		"a@":       false,
		"a@b@c":    false,
		"a b@c.de": false,
	}
	for in, want := range emails {
		if got := ValidEmail(in); got != want {
			t.Fatalf("ValidEmail(%q)=%v want=%v", in, got, want)
		}
	}
}
