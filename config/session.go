package config

import (
	"net/http"
	"strings"
	"time"
)

// SessionBackend selects where session records are kept.
type SessionBackend string

const (
	// SessionBackendCookie keeps the whole record in a signed (or encrypted) cookie.
	SessionBackendCookie SessionBackend = "cookie"
	// SessionBackendRedis keeps an id in the cookie and the record in Redis.
	SessionBackendRedis SessionBackend = "redis"
)

// SessionConfig controls the session middleware.
type SessionConfig struct {
	Backend    SessionBackend `env:"BACKEND"     envDefault:"cookie"`
	CookieName string         `env:"COOKIE_NAME" envDefault:"session"`
	MaxAge     time.Duration  `env:"MAX_AGE"     envDefault:"336h"`
	SameSite   string         `env:"SAME_SITE"   envDefault:"lax"`
	HTTPSOnly  bool           `env:"HTTPS_ONLY"  envDefault:"false"`

	// EncryptionKey switches cookie sessions from signed to AES-GCM encrypted.
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	// RedisPrefix namespaces server-side session keys.
	RedisPrefix string `env:"REDIS_PREFIX" envDefault:"loginkit:session:"`
}

// Sanitize applies defaults to session values.
func (c *SessionConfig) Sanitize() {
	if c.Backend != SessionBackendRedis {
		c.Backend = SessionBackendCookie
	}
	if c.CookieName = strings.TrimSpace(c.CookieName); c.CookieName == "" {
		c.CookieName = "session"
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 14 * 24 * time.Hour
	}
	if c.RedisPrefix == "" {
		c.RedisPrefix = "loginkit:session:"
	}
	c.SameSite = strings.ToLower(strings.TrimSpace(c.SameSite))
}

// SameSiteMode maps SameSite to the net/http constant, defaulting to Lax.
func (c SessionConfig) SameSiteMode() http.SameSite {
	switch c.SameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
