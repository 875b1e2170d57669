package authapi

import (
	"net/http"
	"strings"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// CookieEnabled additionally delivers the session token in an HttpOnly
	// cookie for browser clients. Cookie-authenticated writes must carry the
	// CSRF double-submit header.
	CookieEnabled  bool
	CookieName     string
	CSRFCookieName string
	CSRFHeaderName string
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite
}

// DefaultConfig returns safe defaults (bearer-only transport).
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:   1 << 20, // 1 MiB
		CookieName:     "codeplat_session",
		CSRFCookieName: "codeplat_csrf",
		CSRFHeaderName: "X-CSRF-Token",
		CookiePath:     "/",
		CookieSecure:   true,
		CookieSameSite: http.SameSiteLaxMode,
	}
}

// Normalize fills blanks from DefaultConfig and enforces cookie guardrails.
func (c Config) Normalize() Config {
	def := DefaultConfig()

	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	if strings.TrimSpace(c.CookieName) == "" {
		c.CookieName = def.CookieName
	}
	if strings.TrimSpace(c.CSRFCookieName) == "" {
		c.CSRFCookieName = def.CSRFCookieName
	}
	if strings.TrimSpace(c.CSRFHeaderName) == "" {
		c.CSRFHeaderName = def.CSRFHeaderName
	}
	if strings.TrimSpace(c.CookiePath) == "" {
		c.CookiePath = def.CookiePath
	}

	// The CSRF cookie is script-readable; it must never shadow the session cookie.
	if c.CSRFCookieName == c.CookieName {
		c.CSRFCookieName = c.CookieName + "_csrf"
	}
	// Browsers drop SameSite=None cookies without Secure.
	if c.CookieSameSite == http.SameSiteNoneMode {
		c.CookieSecure = true
	}
	return c
}

// ParseSameSite maps config text onto http.SameSite. Unknown values mean Lax.
func ParseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}
