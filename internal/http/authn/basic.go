package authn

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/ports"
	"golang.org/x/text/encoding/charmap"
)

// BasicConfig configures a BasicAuth backend.
type BasicConfig struct {
	Common
	// Verifier checks username/password pairs. Nil rejects everything.
	Verifier ports.PasswordVerifier
}

// BasicAuth implements RFC 7617 Basic authentication.
type BasicAuth struct {
	core
	verifier ports.PasswordVerifier
}

var _ Backend = (*BasicAuth)(nil)

// denyAll is the verifier used until a real one is configured.
var denyAll = ports.PasswordVerifierFunc(func(context.Context, string, string) (domainauth.Principal, error) {
	return nil, nil
})

// NewBasicAuth builds a BasicAuth backend.
func NewBasicAuth(cfg BasicConfig) *BasicAuth {
	v := cfg.Verifier
	if v == nil {
		v = denyAll
	}
	return &BasicAuth{
		core:     newCore("basic", "Basic", defaultHeader, cfg.Common),
		verifier: v,
	}
}

// Authenticate decodes the Basic credentials and asks the verifier.
func (b *BasicAuth) Authenticate(r *http.Request) (domainauth.Principal, error) {
	encoded, err := extractCredentials(r, b.header, b.scheme)
	if err != nil {
		return nil, err
	}
	username, password, err := decodeBasic(encoded)
	if err != nil {
		return nil, err
	}
	user, err := b.verifier.VerifyPassword(r.Context(), username, password)
	if err != nil {
		b.logger.WarnContext(r.Context(), "password verifier failed", "error", err)
		return nil, domainauth.NewAuthenticationError("Invalid username or password")
	}
	if !domainauth.Present(user) {
		return nil, domainauth.NewAuthenticationError("Invalid username or password")
	}
	return user, nil
}

// decodeBasic splits base64 "user:pass" on the first colon. Bytes that are
// not valid UTF-8 are read as Latin-1, so decoding text never fails.
func decodeBasic(encoded string) (string, string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", "", domainauth.NewAuthenticationError("Malformed basic credentials")
	}
	text := string(raw)
	if !utf8.Valid(raw) {
		latin, decErr := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if decErr != nil {
			return "", "", domainauth.NewAuthenticationError("Malformed basic credentials")
		}
		text = string(latin)
	}
	username, password, ok := strings.Cut(text, ":")
	if !ok {
		return "", "", domainauth.NewAuthenticationError("Malformed basic credentials")
	}
	return username, password, nil
}

// Challenge returns Basic realm="<realm>".
func (b *BasicAuth) Challenge(*http.Request) (string, error) {
	return fmt.Sprintf("Basic realm=%q", b.realm), nil
}

// LoginRequired guards next with Basic authentication.
func (b *BasicAuth) LoginRequired(opts ...Option) func(http.Handler) http.Handler {
	return b.guard(b, opts...)
}
