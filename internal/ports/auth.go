package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service
// and the HTTP guards in internal/http.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/target/loginkit/internal/domain/auth"
)

// ErrSessionNotFound is returned by SessionStore.Get for unknown or expired ids.
var ErrSessionNotFound = errors.New("session not found")

// PasswordVerifier checks a username/password pair. A nil (or otherwise absent)
// principal means the pair was rejected.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, username, password string) (domainauth.Principal, error)
}

// PasswordVerifierFunc adapts a function to PasswordVerifier.
type PasswordVerifierFunc func(ctx context.Context, username, password string) (domainauth.Principal, error)

func (f PasswordVerifierFunc) VerifyPassword(ctx context.Context, username, password string) (domainauth.Principal, error) {
	return f(ctx, username, password)
}

// TokenVerifier maps an opaque bearer token to a principal.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (domainauth.Principal, error)
}

// TokenVerifierFunc adapts a function to TokenVerifier.
type TokenVerifierFunc func(ctx context.Context, token string) (domainauth.Principal, error)

func (f TokenVerifierFunc) VerifyToken(ctx context.Context, token string) (domainauth.Principal, error) {
	return f(ctx, token)
}

// PasswordStore returns the stored digest secret for a user: the plaintext
// password, or the precomputed HA1 when the backend is configured for it.
type PasswordStore interface {
	LookupPassword(ctx context.Context, username string) (secret string, ok bool, err error)
}

// PasswordStoreFunc adapts a function to PasswordStore.
type PasswordStoreFunc func(ctx context.Context, username string) (string, bool, error)

func (f PasswordStoreFunc) LookupPassword(ctx context.Context, username string) (string, bool, error) {
	return f(ctx, username)
}

// NonceStore issues and checks Digest nonce and opaque values. Scope is the
// per-client handle (for example the request session id) values are bound to.
type NonceStore interface {
	GenerateNonce(ctx context.Context, scope NonceScope) (string, error)
	VerifyNonce(ctx context.Context, scope NonceScope, nonce string) (bool, error)
	GenerateOpaque(ctx context.Context, scope NonceScope) (string, error)
	VerifyOpaque(ctx context.Context, scope NonceScope, opaque string) (bool, error)
}

// NonceScope is the client-bound storage handle a NonceStore reads and writes.
type NonceScope interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// RoleProvider returns the roles held by an authenticated principal.
type RoleProvider interface {
	UserRoles(ctx context.Context, user domainauth.Principal) (domainauth.RoleSet, error)
}

// RoleProviderFunc adapts a function to RoleProvider.
type RoleProviderFunc func(ctx context.Context, user domainauth.Principal) (domainauth.RoleSet, error)

func (f RoleProviderFunc) UserRoles(ctx context.Context, user domainauth.Principal) (domainauth.RoleSet, error) {
	return f(ctx, user)
}

// UserLoader resolves the id stored in a session or remember-me cookie.
type UserLoader interface {
	LoadUser(ctx context.Context, userID string) (domainauth.Principal, error)
}

// UserLoaderFunc adapts a function to UserLoader.
type UserLoaderFunc func(ctx context.Context, userID string) (domainauth.Principal, error)

func (f UserLoaderFunc) LoadUser(ctx context.Context, userID string) (domainauth.Principal, error) {
	return f(ctx, userID)
}

// SessionStore persists server-side session records.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// IdentityStore remembers identities from federated logins. Stores also
// implement UserLoader so the session manager can reload them by id.
type IdentityStore interface {
	SaveIdentity(ctx context.Context, id domainauth.Identity, ttl time.Duration) error
	DeleteIdentity(ctx context.Context, userID string) error
}

// BeginInput carries inputs for initiating a federated login.
type BeginInput struct {
	RedirectURL string
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// AuthProvider initiates and completes a federated login against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}

// RoleMapper maps provider groups to application roles.
type RoleMapper interface {
	Map(groups []string) domainauth.RoleSet
}
