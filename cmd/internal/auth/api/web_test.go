package authapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func cookieTestHandler() *Handler {
	return &Handler{cfg: Config{
		CookieEnabled:  true,
		CookieName:     "codeplat_session",
		CSRFCookieName: "codeplat_csrf",
		CSRFHeaderName: "X-CSRF-Token",
		CookiePath:     "/",
		CookieSecure:   true,
		CookieSameSite: http.SameSiteLaxMode,
	}}
}

func TestSetWebSessionCookies(t *testing.T) {
	t.Parallel()

	h := cookieTestHandler()
	rr := httptest.NewRecorder()
	exp := time.Now().UTC().Add(30 * time.Minute)

	csrf, err := h.setWebSessionCookies(rr, "session-token-123", exp)
	if err != nil {
		t.Fatalf("setWebSessionCookies: %v", err)
	}
	if csrf == "" {
		t.Fatalf("expected csrf token")
	}

	cookies := rr.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(cookies))
	}
	for _, c := range cookies {
		switch c.Name {
		case "codeplat_session":
			if !c.HttpOnly || c.Value != "session-token-123" || !c.Secure {
				t.Fatalf("session cookie misconfigured: %+v", c)
			}
		case "codeplat_csrf":
			if c.HttpOnly || c.Value != csrf {
				t.Fatalf("csrf cookie misconfigured: %+v", c)
			}
		default:
			t.Fatalf("unexpected cookie %q", c.Name)
		}
	}
}

func TestCSRFDoubleSubmitValidation(t *testing.T) {
	t.Parallel()

	h := cookieTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "codeplat_csrf", Value: "csrf-abc"})
	req.Header.Set("X-CSRF-Token", "csrf-abc")
	if !h.csrfDoubleSubmitValid(req) {
		t.Fatalf("expected csrf validation success")
	}

	req.Header.Set("X-CSRF-Token", "csrf-xyz")
	if h.csrfDoubleSubmitValid(req) {
		t.Fatalf("expected csrf validation failure")
	}

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "codeplat_csrf", Value: "csrf-abc"})
	if h.csrfDoubleSubmitValid(req) {
		t.Fatalf("missing header must fail")
	}
}

func TestClearWebSessionCookies(t *testing.T) {
	t.Parallel()

	h := cookieTestHandler()
	rr := httptest.NewRecorder()
	h.clearWebSessionCookies(rr)

	cookies := rr.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected 2 expired cookies, got %d", len(cookies))
	}
	for _, c := range cookies {
		if c.MaxAge >= 0 {
			t.Fatalf("cookie %q not expired: %+v", c.Name, c)
		}
	}

	off := &Handler{cfg: Config{}}
	rr = httptest.NewRecorder()
	off.clearWebSessionCookies(rr)
	if len(rr.Result().Cookies()) != 0 {
		t.Fatalf("cookies disabled: expected none")
	}
}
