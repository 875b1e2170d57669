package token

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestGenerate_LengthAndAlphabet(t *testing.T) {
	t.Parallel()

	tok, err := Generate(32)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// 32 bytes -> 43 base64url chars without padding.
	if len(tok) != 43 {
		t.Fatalf("len=%d want=43", len(tok))
	}
	if strings.ContainsAny(tok, "+/=") {
		t.Fatalf("token is not url-safe: %q", tok)
	}
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) != 32 {
		t.Fatalf("decode: len=%d err=%v", len(raw), err)
	}
}

func TestGenerate_RejectsLowEntropy(t *testing.T) {
	t.Parallel()

	if _, err := Generate(16); !errors.Is(err, ErrTooFewBytes) {
		t.Fatalf("expected ErrTooFewBytes, got %v", err)
	}
}

func TestGenerate_Unique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		tok, err := Generate(MinBytes)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token after %d draws", i)
		}
		seen[tok] = struct{}{}
	}
}

func TestNewHasher(t *testing.T) {
	t.Parallel()

	longKey := strings.Repeat("k", MinHMACKeyBytes)

	cases := []struct {
		name     string
		secret   string
		require  bool
		wantErr  error
		wantHMAC bool
	}{
		{name: "dev sha", secret: "", require: false, wantHMAC: false},
		{name: "required missing", secret: "  ", require: true, wantErr: ErrHMACKeyMissing},
		{name: "required short", secret: "short", require: true, wantErr: ErrHMACKeyTooShort},
		{name: "required ok", secret: longKey, require: true, wantHMAC: true},
		{name: "optional short key still used", secret: "short", require: false, wantHMAC: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h, err := NewHasher(tc.secret, tc.require)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err=%v want=%v", err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if h.HMACEnabled() != tc.wantHMAC {
				t.Fatalf("HMACEnabled=%v want=%v", h.HMACEnabled(), tc.wantHMAC)
			}
		})
	}
}

func TestHasher_Hash(t *testing.T) {
	t.Parallel()

	var plain Hasher
	if got, want := plain.Hash("abc"), HashSHA256Hex("abc"); got != want {
		t.Fatalf("zero hasher should use sha256: got %q want %q", got, want)
	}

	keyed, err := NewHasher(strings.Repeat("s", 40), true)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	got := keyed.Hash("abc")
	if len(got) != 64 {
		t.Fatalf("digest len=%d want=64", len(got))
	}
	if got == plain.Hash("abc") {
		t.Fatalf("keyed digest must differ from sha256 digest")
	}
	if got != keyed.Hash("abc") {
		t.Fatalf("digest must be deterministic")
	}
}
