package authn

import (
	"net/http"
	"strings"
	"unicode"

	domainauth "github.com/target/loginkit/internal/domain/auth"
)

const (
	defaultHeader = "Authorization"
	defaultRealm  = "Authentication Required"
)

// splitScheme splits "Scheme credentials" on the first run of whitespace.
func splitScheme(value string) (scheme, credentials string, ok bool) {
	value = strings.TrimLeftFunc(value, unicode.IsSpace)
	i := strings.IndexFunc(value, unicode.IsSpace)
	if i < 0 {
		return "", "", false
	}
	return value[:i], strings.TrimLeftFunc(value[i:], unicode.IsSpace), true
}

// extractCredentials returns the credential part of header when it carries
// scheme. The scheme comparison is case-sensitive.
func extractCredentials(r *http.Request, header, scheme string) (string, error) {
	value := r.Header.Get(header)
	if value == "" {
		return "", domainauth.NewAuthenticationError("Missing authorization header")
	}
	got, credentials, ok := splitScheme(value)
	if !ok {
		return "", domainauth.NewAuthenticationError("Malformed authorization header")
	}
	if got != scheme {
		return "", domainauth.NewAuthenticationError("Unsupported authorization scheme")
	}
	return credentials, nil
}

// schemeMatches reports whether header on r starts with the scheme token.
func schemeMatches(r *http.Request, header, scheme string) bool {
	value := r.Header.Get(header)
	if value == "" {
		return false
	}
	fields := strings.Fields(value)
	return len(fields) > 0 && fields[0] == scheme
}
