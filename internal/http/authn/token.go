package authn

import (
	"context"
	"fmt"
	"net/http"

	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/ports"
)

// TokenConfig configures a TokenAuth backend.
type TokenConfig struct {
	Common
	// Scheme defaults to Bearer.
	Scheme string
	// Header defaults to Authorization.
	Header string
	// Verifier maps tokens to principals. Nil rejects everything.
	Verifier ports.TokenVerifier
}

// TokenAuth authenticates opaque bearer-style tokens.
type TokenAuth struct {
	core
	verifier ports.TokenVerifier
}

var _ Backend = (*TokenAuth)(nil)

// NewTokenAuth builds a TokenAuth backend.
func NewTokenAuth(cfg TokenConfig) *TokenAuth {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "Bearer"
	}
	v := cfg.Verifier
	if v == nil {
		v = ports.TokenVerifierFunc(func(_ context.Context, _ string) (domainauth.Principal, error) { return nil, nil })
	}
	return &TokenAuth{
		core:     newCore("token", scheme, cfg.Header, cfg.Common),
		verifier: v,
	}
}

// Authenticate extracts the token and asks the verifier.
func (t *TokenAuth) Authenticate(r *http.Request) (domainauth.Principal, error) {
	token, err := extractCredentials(r, t.header, t.scheme)
	if err != nil {
		return nil, err
	}
	user, err := t.verifier.VerifyToken(r.Context(), token)
	if err != nil {
		t.logger.DebugContext(r.Context(), "token verifier rejected token", "error", err)
		return nil, domainauth.NewAuthenticationError("Invalid token")
	}
	if !domainauth.Present(user) {
		return nil, domainauth.NewAuthenticationError("Invalid token")
	}
	return user, nil
}

// Challenge returns <Scheme> realm="<realm>".
func (t *TokenAuth) Challenge(*http.Request) (string, error) {
	return fmt.Sprintf("%s realm=%q", t.scheme, t.realm), nil
}

// LoginRequired guards next with token authentication.
func (t *TokenAuth) LoginRequired(opts ...Option) func(http.Handler) http.Handler {
	return t.guard(t, opts...)
}
