package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: authentication backends and the login manager
//   - session.go: session cookie and server-side session storage
//   - database.go: Postgres user directory and Redis
//   - http.go: HTTP server configuration
//   - observability.go: metrics and log level
type AppConfig struct {
	// IsDev controls development mode behavior (insecure cookies, mock identities).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Authentication configuration
	Auth AuthConfig

	// Session configuration
	Session SessionConfig `envPrefix:"SESSION_"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Auth.Sanitize()
	c.Session.Sanitize()
	c.HTTP.Sanitize()
	c.Observability.Sanitize()

	// Check NODE_ENV for dev mode
	c.detectDevMode()
}

// Validate reports combinations that Sanitize cannot repair.
func (c *AppConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.SecretKey) == "" {
		errs = append(errs, errors.New("AUTH_SECRET_KEY must not be blank"))
	}
	if err := validateLoginURL(c.Auth.LoginURL); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToUpper(c.Auth.Digest.Algorithm) {
	case "MD5", "MD5-SESS":
	default:
		errs = append(errs, fmt.Errorf("AUTH_DIGEST_ALGORITHM %q: want MD5 or MD5-sess", c.Auth.Digest.Algorithm))
	}
	for _, q := range c.Auth.Digest.Qop {
		if q != "auth" {
			errs = append(errs, fmt.Errorf("AUTH_DIGEST_QOP %q: only auth is supported", q))
		}
	}
	if c.Session.SameSite == "none" && !c.Session.HTTPSOnly {
		errs = append(errs, errors.New("SESSION_SAME_SITE=none requires SESSION_HTTPS_ONLY=true"))
	}
	if err := validateCookieDomain(c.HTTP.CookieDomain); err != nil {
		errs = append(errs, err)
	}
	if c.Auth.Mode == AuthModeMock && !c.IsDev {
		errs = append(errs, errors.New("AUTH_MODE=mock is only allowed with DEV=true"))
	}
	return errors.Join(errs...)
}

// validateLoginURL accepts an empty value, an absolute path or an http(s) URL.
func validateLoginURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("AUTH_LOGIN_URL: %w", err)
	}
	if u.Scheme == "" && u.Host == "" && strings.HasPrefix(u.Path, "/") {
		return nil
	}
	if (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return nil
	}
	return fmt.Errorf("AUTH_LOGIN_URL %q: want an absolute path or http(s) URL", raw)
}

// validateCookieDomain rejects public suffixes such as "co.uk".
func validateCookieDomain(domain string) error {
	d := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if d == "" || d == "localhost" {
		return nil
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(d); err != nil {
		return fmt.Errorf("APP_COOKIE_DOMAIN %q: %w", domain, err)
	}
	return nil
}

// NeedsRedis reports whether any configured component stores state in Redis.
func (c *AppConfig) NeedsRedis() bool {
	return c.Session.Backend == SessionBackendRedis || c.Auth.Digest.NonceStore == NonceStoreRedis
}

// NeedsPostgres reports whether users are read from Postgres.
func (c *AppConfig) NeedsPostgres() bool {
	return c.Auth.Mode == AuthModePostgres
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}
