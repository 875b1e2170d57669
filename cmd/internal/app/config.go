package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	authapi "codeplat/cmd/internal/auth/api"
	"codeplat/cmd/internal/auth/session"
	"codeplat/cmd/internal/db"
	"codeplat/cmd/internal/verify"
	"codeplat/cmd/security/token"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override (CODEPLAT_DATABASE_URL -> database_url).
const EnvPrefix = "CODEPLAT_"

// ErrConfig is returned (wrapped with the offending key) for invalid configuration.
var ErrConfig = errors.New("invalid config")

// Config contains all runtime configuration. Keys are flat so that a YAML key
// and its environment variable map one to one.
type Config struct {
	HTTPAddr  string `koanf:"http_addr"`
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	ReadHeaderTimeout time.Duration `koanf:"http_read_header_timeout"`
	ReadTimeout       time.Duration `koanf:"http_read_timeout"`
	WriteTimeout      time.Duration `koanf:"http_write_timeout"`
	IdleTimeout       time.Duration `koanf:"http_idle_timeout"`
	MaxHeaderBytes    int           `koanf:"http_max_header_bytes"`

	DatabaseURL string `koanf:"database_url"`
	DBMaxConns  int32  `koanf:"db_max_conns"`
	DBMinConns  int32  `koanf:"db_min_conns"`

	// MigrateOnStart applies pending migrations before serving.
	MigrateOnStart bool `koanf:"migrate_on_start"`

	// Token hashing. When RequireTokenHMAC is set the key must be >= 32 bytes.
	TokenHMACKey     string `koanf:"token_hmac_key"`
	RequireTokenHMAC bool   `koanf:"require_token_hmac"`

	SessionWindow           time.Duration `koanf:"session_window"`
	SessionMaxConcurrent    int           `koanf:"session_max_concurrent"`
	SessionTokenBytes       int           `koanf:"session_token_bytes"`
	SessionMaxTokenAttempts int           `koanf:"session_max_token_attempts"`
	SessionStrictCap        bool          `koanf:"session_strict_cap"`
	SweepInterval           time.Duration `koanf:"sweep_interval"`

	// Verification codes live in Redis when RedisAddr is set, else in Postgres.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	VerifyCodeTTL      time.Duration `koanf:"verify_code_ttl"`
	VerifyMaxAttempts  int           `koanf:"verify_max_attempts"`
	VerifySendInterval time.Duration `koanf:"verify_send_interval"`
	VerifySendBurst    int           `koanf:"verify_send_burst"`

	TrustProxy     bool   `koanf:"trust_proxy"`
	MaxBodyBytes   int64  `koanf:"max_body_bytes"`
	CookieEnabled  bool   `koanf:"cookie_enabled"`
	CookieName     string `koanf:"cookie_name"`
	CSRFCookieName string `koanf:"csrf_cookie_name"`
	CSRFHeaderName string `koanf:"csrf_header_name"`
	CookiePath     string `koanf:"cookie_path"`
	CookieDomain   string `koanf:"cookie_domain"`
	CookieSecure   bool   `koanf:"cookie_secure"`
	CookieSameSite string `koanf:"cookie_samesite"`

	AuditToDB bool `koanf:"audit_to_db"`
}

// DefaultConfig returns the production defaults. DatabaseURL has none.
func DefaultConfig() Config {
	sess := session.DefaultConfig()
	ver := verify.DefaultConfig()
	auth := authapi.DefaultConfig()

	return Config{
		HTTPAddr:  "0.0.0.0:8080",
		LogLevel:  "info",
		LogFormat: "json",

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,

		DBMaxConns: 10,

		SessionWindow:           sess.ExpirationWindow,
		SessionMaxConcurrent:    sess.MaxConcurrentSessions,
		SessionTokenBytes:       sess.TokenBytes,
		SessionMaxTokenAttempts: sess.MaxTokenAttempts,
		SessionStrictCap:        sess.StrictCap,
		SweepInterval:           sess.SweepInterval,

		VerifyCodeTTL:      ver.CodeTTL,
		VerifyMaxAttempts:  ver.MaxAttempts,
		VerifySendInterval: ver.SendInterval,
		VerifySendBurst:    ver.SendBurst,

		MaxBodyBytes:   auth.MaxBodyBytes,
		CookieName:     auth.CookieName,
		CSRFCookieName: auth.CSRFCookieName,
		CSRFHeaderName: auth.CSRFHeaderName,
		CookiePath:     auth.CookiePath,
		CookieSecure:   auth.CookieSecure,
		CookieSameSite: "lax",

		AuditToDB: true,
	}
}

// LoadConfig layers an optional YAML file and CODEPLAT_* environment
// variables over DefaultConfig, then validates the result.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if strings.TrimSpace(path) != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envTransformer := func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformer), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid key.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("%w: database_url is required", ErrConfig)
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("%w: http_addr is required", ErrConfig)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log_format must be json or text, got %q", ErrConfig, c.LogFormat)
	}
	if c.DBMinConns < 0 || c.DBMaxConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns) {
		return fmt.Errorf("%w: db_min_conns/db_max_conns out of range", ErrConfig)
	}
	if _, err := c.TokenHasher(); err != nil {
		return fmt.Errorf("%w: token_hmac_key: %v", ErrConfig, err)
	}
	if err := c.Session().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := c.Verify().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return nil
}

// TokenHasher builds the digest used for session tokens and verification codes.
func (c Config) TokenHasher() (token.Hasher, error) {
	return token.NewHasher(c.TokenHMACKey, c.RequireTokenHMAC)
}

// Session derives the session policy.
func (c Config) Session() session.Config {
	return session.Config{
		ExpirationWindow:      c.SessionWindow,
		MaxConcurrentSessions: c.SessionMaxConcurrent,
		TokenBytes:            c.SessionTokenBytes,
		MaxTokenAttempts:      c.SessionMaxTokenAttempts,
		StrictCap:             c.SessionStrictCap,
		SweepInterval:         c.SweepInterval,
	}
}

// Verify derives the verification code policy.
func (c Config) Verify() verify.Config {
	return verify.Config{
		CodeTTL:      c.VerifyCodeTTL,
		MaxAttempts:  c.VerifyMaxAttempts,
		SendInterval: c.VerifySendInterval,
		SendBurst:    c.VerifySendBurst,
	}
}

// Auth derives the HTTP gateway settings.
func (c Config) Auth() authapi.Config {
	return authapi.Config{
		TrustProxy:     c.TrustProxy,
		MaxBodyBytes:   c.MaxBodyBytes,
		CookieEnabled:  c.CookieEnabled,
		CookieName:     c.CookieName,
		CSRFCookieName: c.CSRFCookieName,
		CSRFHeaderName: c.CSRFHeaderName,
		CookiePath:     c.CookiePath,
		CookieDomain:   c.CookieDomain,
		CookieSecure:   c.CookieSecure,
		CookieSameSite: authapi.ParseSameSite(c.CookieSameSite),
	}.Normalize()
}

// Pool derives the pgx pool settings.
func (c Config) Pool() db.PoolConfig {
	return db.PoolConfig{
		DatabaseURL: c.DatabaseURL,
		MaxConns:    c.DBMaxConns,
		MinConns:    c.DBMinConns,
	}
}
