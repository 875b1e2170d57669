package authapi

import (
	"net/http"
	"testing"
)

func TestConfigNormalize_CookieGuardrails(t *testing.T) {
	t.Parallel()

	cfg := Config{
		CookieName:     "codeplat_token",
		CSRFCookieName: "codeplat_token",
		CookieSameSite: http.SameSiteNoneMode,
		CookieSecure:   false,
	}.Normalize()

	if cfg.CSRFCookieName == cfg.CookieName {
		t.Fatalf("csrf cookie name must differ from session cookie name")
	}
	if !cfg.CookieSecure {
		t.Fatalf("SameSite=None requires Secure=true")
	}
	if cfg.MaxBodyBytes != 1<<20 || cfg.CSRFHeaderName != "X-CSRF-Token" || cfg.CookiePath != "/" {
		t.Fatalf("blanks not defaulted: %+v", cfg)
	}
}

func TestParseSameSite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want http.SameSite
	}{
		{in: "strict", want: http.SameSiteStrictMode},
		{in: "lax", want: http.SameSiteLaxMode},
		{in: " None ", want: http.SameSiteNoneMode},
		{in: "default", want: http.SameSiteDefaultMode},
		{in: "unknown", want: http.SameSiteLaxMode},
	}

	for _, tc := range tests {
		got := ParseSameSite(tc.in)
		if got != tc.want {
			t.Fatalf("ParseSameSite(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
}
