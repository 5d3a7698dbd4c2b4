package authn

import (
	"crypto/md5" //nolint:gosec // RFC 2617 digest requires MD5
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/http/session"
	"github.com/target/loginkit/internal/ports"
)

// Digest algorithms.
const (
	AlgorithmMD5     = "MD5"
	AlgorithmMD5Sess = "MD5-Sess"
)

const qopAuth = "auth"

// DigestConfig configures a DigestAuth backend.
type DigestConfig struct {
	Common
	// Qop lists offered qop values. Nil offers "auth"; an empty non-nil
	// slice offers none, which omits algorithm and qop from the challenge.
	Qop []string
	// Algorithm is MD5 (default) or MD5-Sess.
	Algorithm string
	// UseHA1 means Passwords returns precomputed HA1 values.
	UseHA1 bool
	// Passwords supplies the secret for a username. Required.
	Passwords ports.PasswordStore
	// Nonces issues and verifies nonce and opaque values. Defaults to
	// SessionNonceStore, which needs the session middleware.
	Nonces ports.NonceStore
}

// DigestAuth implements RFC 2617 Digest authentication.
type DigestAuth struct {
	core
	qop       []string
	algorithm string
	useHA1    bool
	passwords ports.PasswordStore
	nonces    ports.NonceStore
}

var _ Backend = (*DigestAuth)(nil)

// NewDigestAuth validates cfg and builds a DigestAuth backend.
func NewDigestAuth(cfg DigestConfig) (*DigestAuth, error) {
	alg := cfg.Algorithm
	if alg == "" {
		alg = AlgorithmMD5
	}
	if alg != AlgorithmMD5 && alg != AlgorithmMD5Sess {
		return nil, fmt.Errorf("digest: unsupported algorithm %q (want %s or %s)", cfg.Algorithm, AlgorithmMD5, AlgorithmMD5Sess)
	}
	if cfg.Passwords == nil {
		return nil, errors.New("digest: password store is required")
	}
	qop := cfg.Qop
	if qop == nil {
		qop = []string{qopAuth}
	}
	nonces := cfg.Nonces
	if nonces == nil {
		nonces = SessionNonceStore{}
	}
	return &DigestAuth{
		core:      newCore("digest", "Digest", defaultHeader, cfg.Common),
		qop:       slices.Clone(qop),
		algorithm: alg,
		useHA1:    cfg.UseHA1,
		passwords: cfg.Passwords,
		nonces:    nonces,
	}, nil
}

// nonceScope returns the request session, or a throwaway scope when the
// session middleware is not installed.
func nonceScope(r *http.Request) ports.NonceScope {
	if sess := session.FromContext(r.Context()); sess != nil {
		return sess
	}
	return domainauth.NewSession("", 0)
}

// Challenge issues a fresh nonce and opaque and formats the header.
func (d *DigestAuth) Challenge(r *http.Request) (string, error) {
	scope := nonceScope(r)
	nonce, err := d.nonces.GenerateNonce(r.Context(), scope)
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	opaque, err := d.nonces.GenerateOpaque(r.Context(), scope)
	if err != nil {
		return "", fmt.Errorf("generate opaque: %w", err)
	}
	h := fmt.Sprintf("Digest realm=%q, nonce=%q, opaque=%q", d.realm, nonce, opaque)
	if len(d.qop) > 0 {
		h += fmt.Sprintf(", algorithm=%q, qop=%q", d.algorithm, strings.Join(d.qop, ","))
	}
	return h, nil
}

// Authenticate verifies the client's digest response.
func (d *DigestAuth) Authenticate(r *http.Request) (domainauth.Principal, error) {
	raw, err := extractCredentials(r, d.header, d.scheme)
	if err != nil {
		return nil, err
	}
	params := parseDigestParams(raw)
	for _, k := range []string{"username", "nonce", "uri", "response"} {
		if params[k] == "" {
			return nil, domainauth.NewAuthenticationError("Missing digest field " + k)
		}
	}

	ctx := r.Context()
	scope := nonceScope(r)
	nonceOK, err := d.nonces.VerifyNonce(ctx, scope, params["nonce"])
	if err != nil {
		return nil, fmt.Errorf("verify nonce: %w", err)
	}
	opaqueOK, err := d.nonces.VerifyOpaque(ctx, scope, params["opaque"])
	if err != nil {
		return nil, fmt.Errorf("verify opaque: %w", err)
	}
	if !nonceOK || !opaqueOK {
		return nil, domainauth.NewAuthenticationError("Invalid opaque")
	}

	qop := params["qop"]
	if qop != "" && (qop != qopAuth || !slices.Contains(d.qop, qop)) {
		return nil, domainauth.NewAuthenticationError("Unsupported qop")
	}
	if qop == qopAuth && (params["nc"] == "" || params["cnonce"] == "") {
		return nil, domainauth.NewAuthenticationError("Missing digest field nc or cnonce")
	}

	username := params["username"]
	secret, ok, err := d.passwords.LookupPassword(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("lookup password: %w", err)
	}
	if !ok {
		return nil, domainauth.NewAuthenticationError("Invalid response")
	}

	expected := DigestResponse(DigestInput{
		Username:  username,
		Realm:     d.realm,
		Secret:    secret,
		SecretHA1: d.useHA1,
		Algorithm: d.algorithm,
		Method:    r.Method,
		URI:       params["uri"],
		Nonce:     params["nonce"],
		NC:        params["nc"],
		CNonce:    params["cnonce"],
		Qop:       qop,
	})
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(params["response"]))) != 1 {
		return nil, domainauth.NewAuthenticationError("Invalid response")
	}
	return username, nil
}

// LoginRequired guards next with Digest authentication.
func (d *DigestAuth) LoginRequired(opts ...Option) func(http.Handler) http.Handler {
	return d.guard(d, opts...)
}

// DigestInput carries everything needed to compute a digest response.
type DigestInput struct {
	Username  string
	Realm     string
	Secret    string
	SecretHA1 bool
	Algorithm string
	Method    string
	URI       string
	Nonce     string
	NC        string
	CNonce    string
	Qop       string
}

// ComputeHA1 returns MD5(username:realm:password) as lowercase hex.
func ComputeHA1(username, realm, password string) string {
	return md5Hex(username + ":" + realm + ":" + password)
}

// DigestResponse computes the expected response digest for in.
func DigestResponse(in DigestInput) string {
	ha1 := in.Secret
	if !in.SecretHA1 {
		ha1 = ComputeHA1(in.Username, in.Realm, in.Secret)
	}
	if strings.EqualFold(in.Algorithm, AlgorithmMD5Sess) {
		ha1 = md5Hex(ha1 + ":" + in.Nonce + ":" + in.CNonce)
	}
	ha2 := md5Hex(strings.ToUpper(in.Method) + ":" + in.URI)
	if in.Qop == qopAuth {
		return md5Hex(strings.Join([]string{ha1, in.Nonce, in.NC, in.CNonce, in.Qop, ha2}, ":"))
	}
	return md5Hex(ha1 + ":" + in.Nonce + ":" + ha2)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // RFC 2617 digest requires MD5
	return hex.EncodeToString(sum[:])
}

// parseDigestParams parses a comma-separated list of key=value or
// key="quoted value" pairs. Keys are lowercased.
func parseDigestParams(s string) map[string]string {
	params := map[string]string{}
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ' ' || s[i] == ',' || s[i] == '\t') {
			i++
		}
		start := i
		for i < len(s) && s[i] != '=' && s[i] != ',' {
			i++
		}
		key := strings.ToLower(strings.TrimSpace(s[start:i]))
		if i >= len(s) || s[i] == ',' {
			continue
		}
		i++ // '='
		for i < len(s) && s[i] == ' ' {
			i++
		}
		var val strings.Builder
		if i < len(s) && s[i] == '"' {
			i++
			for i < len(s) && s[i] != '"' {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				val.WriteByte(s[i])
				i++
			}
			i++ // closing quote
		} else {
			start = i
			for i < len(s) && s[i] != ',' {
				i++
			}
			val.WriteString(strings.TrimSpace(s[start:i]))
		}
		if key != "" {
			params[key] = val.String()
		}
	}
	return params
}
