package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode selects where user records, passwords and roles come from.
type AuthMode string

const (
	// AuthModeFile reads users from a YAML file.
	AuthModeFile AuthMode = "file"
	// AuthModePostgres reads users from the users table.
	AuthModePostgres AuthMode = "postgres"
	// AuthModeMock uses a single configured dev identity (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "file", "postgres", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: file, postgres, mock)", v)
	}
}

// NonceStoreKind selects where Digest nonces and opaques live.
type NonceStoreKind string

const (
	NonceStoreSession NonceStoreKind = "session"
	NonceStoreRedis   NonceStoreKind = "redis"
)

// DigestConfig controls the Digest backend.
type DigestConfig struct {
	// Qop lists the offered quality-of-protection values. "none" disables qop.
	Qop []string `env:"QOP" envDefault:"auth" envSeparator:","`
	// Algorithm is MD5 or MD5-Sess.
	Algorithm string `env:"ALGORITHM" envDefault:"MD5"`
	// UseHA1 means stored passwords are precomputed HA1 hashes.
	UseHA1 bool `env:"USE_HA1" envDefault:"false"`
	// NonceStore is session or redis.
	NonceStore NonceStoreKind `env:"NONCE_STORE" envDefault:"session"`
	// NonceTTL bounds how long a redis-issued nonce stays valid.
	NonceTTL time.Duration `env:"NONCE_TTL" envDefault:"5m"`
}

// OAuthConfig contains OAuth/OIDC configuration for federated browser login.
// Federated login is enabled when DiscoveryURL is set.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"loginkit"`
	ClientSecret string `env:"CLIENT_SECRET" envDefault:""`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// Enabled reports whether the federated login flow is configured.
func (c OAuthConfig) Enabled() bool {
	return c.DiscoveryURL != "" && c.ClientID != "" && c.ClientSecret != ""
}

// OIDCTokenConfig configures bearer JWT verification for the token backend.
// Enabled when Issuer is set; otherwise tokens come from the user directory.
type OIDCTokenConfig struct {
	Issuer   string `env:"ISSUER"`
	Audience string `env:"AUDIENCE"`
	// RolesClaim is a JMESPath expression evaluated against the token claims.
	RolesClaim string `env:"ROLES_CLAIM" envDefault:"roles"`
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID   string   `env:"USER_ID"  envDefault:"dev-user"`
	Email    string   `env:"EMAIL"    envDefault:"dev@example.com"`
	Groups   []string `env:"GROUPS"   envDefault:"admins"    envSeparator:";"`
	Token    string   `env:"TOKEN"    envDefault:"dev-token"`
	Password string   `env:"PASSWORD" envDefault:"dev"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which user directory backs the verifiers.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"file"`

	// SecretKey signs remember-me and session cookies.
	SecretKey string `env:"AUTH_SECRET_KEY,required"`

	// LoginURL is where unauthenticated browser requests are redirected. Empty yields a bare 401.
	LoginURL string `env:"AUTH_LOGIN_URL" envDefault:"/login"`

	// RememberMeCookieName also salts the remember-me signature.
	RememberMeCookieName string `env:"AUTH_REMEMBER_ME_COOKIE" envDefault:"remember_me"`

	// RememberMeDuration is the remember-me cookie max age.
	RememberMeDuration time.Duration `env:"AUTH_REMEMBER_ME_DURATION" envDefault:"720h"`

	// UserIDAttribute names the principal field or key holding the session id.
	UserIDAttribute string `env:"AUTH_USER_ID_ATTRIBUTE" envDefault:"id"`

	// Realm is advertised in Basic, Token and Digest challenges.
	Realm string `env:"AUTH_REALM" envDefault:"Authentication Required"`

	// TokenScheme is the Authorization scheme of the token backend.
	TokenScheme string `env:"AUTH_TOKEN_SCHEME" envDefault:"Bearer"`

	// UserCacheTTL bounds how long Redis caches Postgres users. Zero disables the cache.
	UserCacheTTL time.Duration `env:"AUTH_USER_CACHE_TTL" envDefault:"30s"`

	// UsersFile is the YAML user directory (used when Mode=file).
	UsersFile string `env:"AUTH_USERS_FILE" envDefault:"config/users.yaml"`

	Digest DigestConfig `envPrefix:"AUTH_DIGEST_"`

	// OAuth configuration for federated login.
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// OIDC bearer token verification.
	OIDC OIDCTokenConfig `envPrefix:"OIDC_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// AdminGroup and UserGroup map IdP groups to the admin and user roles.
	AdminGroup string `env:"ADMIN_GROUP" envDefault:"admins"`
	UserGroup  string `env:"USER_GROUP"  envDefault:"users"`
}

// Sanitize normalizes auth values.
func (c *AuthConfig) Sanitize() {
	qop := c.Digest.Qop[:0]
	for _, q := range c.Digest.Qop {
		q = strings.TrimSpace(q)
		if q == "" || strings.EqualFold(q, "none") {
			continue
		}
		qop = append(qop, q)
	}
	// A non-nil empty slice means "no qop"; nil would mean the backend default.
	c.Digest.Qop = append([]string{}, qop...)

	if c.Digest.NonceStore != NonceStoreRedis {
		c.Digest.NonceStore = NonceStoreSession
	}
	if c.Digest.NonceTTL <= 0 {
		c.Digest.NonceTTL = 5 * time.Minute
	}
	if c.RememberMeDuration <= 0 {
		c.RememberMeDuration = 30 * 24 * time.Hour
	}
	if c.RememberMeCookieName == "" {
		c.RememberMeCookieName = "remember_me"
	}
	if c.UserIDAttribute == "" {
		c.UserIDAttribute = "id"
	}
	if c.TokenScheme == "" {
		c.TokenScheme = "Bearer"
	}
}
