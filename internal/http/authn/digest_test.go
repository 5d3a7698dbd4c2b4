package authn

import (
	"context"
	"crypto/md5" //nolint:gosec // reference digest computation
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/loginkit/internal/domain/auth"
	"github.com/target/loginkit/internal/http/session"
	mockauth "github.com/target/loginkit/internal/mocks/auth"
	"github.com/target/loginkit/internal/ports"
)

// fixedNonces hands out constant values so digests can be precomputed.
type fixedNonces struct{ nonce, opaque string }

func (f fixedNonces) GenerateNonce(context.Context, ports.NonceScope) (string, error) {
	return f.nonce, nil
}

func (f fixedNonces) VerifyNonce(_ context.Context, _ ports.NonceScope, n string) (bool, error) {
	return n == f.nonce, nil
}

func (f fixedNonces) GenerateOpaque(context.Context, ports.NonceScope) (string, error) {
	return f.opaque, nil
}

func (f fixedNonces) VerifyOpaque(_ context.Context, _ ports.NonceScope, o string) (bool, error) {
	return o == f.opaque, nil
}

func refMD5(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // reference digest computation
	return hex.EncodeToString(sum[:])
}

func digestHeader(fields map[string]string) string {
	parts := make([]string, 0, len(fields))
	for _, k := range []string{"username", "realm", "nonce", "uri", "algorithm", "qop", "nc", "cnonce", "response", "opaque"} {
		v, ok := fields[k]
		if !ok {
			continue
		}
		if k == "qop" || k == "nc" || k == "algorithm" {
			parts = append(parts, fmt.Sprintf("%s=%s", k, v))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%q", k, v))
	}
	return "Digest " + strings.Join(parts, ", ")
}

func TestDigestResponse_RFC2617Vector(t *testing.T) {
	assert.Equal(t, "939e7578ed9e3c518a452acee763bce9", ComputeHA1("Mufasa", "testrealm@host.com", "Circle Of Life"))

	got := DigestResponse(DigestInput{
		Username:  "Mufasa",
		Realm:     "testrealm@host.com",
		Secret:    "Circle Of Life",
		Algorithm: AlgorithmMD5,
		Method:    http.MethodGet,
		URI:       "/dir/index.html",
		Nonce:     "dcd98b7102dd2f0e8b11d0f600bfb0c093",
		NC:        "00000001",
		CNonce:    "0a4f113b",
		Qop:       "auth",
	})
	assert.Equal(t, "6629fae49393a05397450978507c4ef1", got)
}

func TestDigestAuth_ReferenceClient(t *testing.T) {
	const (
		realm  = "Authentication Required"
		nonce  = "0123456789abcdef0123456789abcdef"
		opaque = "fedcba9876543210fedcba9876543210"
		cnonce = "c1c2c3"
		nc     = "00000001"
		uri    = "/api/digest/hi"
	)
	dir := mockauth.NewDirectory()
	dir.Add("1", "john", "hello", "user")

	tests := []struct {
		name      string
		algorithm string
		qop       []string
		sendQop   bool
		useHA1    bool
	}{
		{name: "md5 with qop", algorithm: AlgorithmMD5, qop: nil, sendQop: true},
		{name: "md5 without qop", algorithm: AlgorithmMD5, qop: []string{}},
		{name: "md5-sess with qop", algorithm: AlgorithmMD5Sess, sendQop: true},
		{name: "stored ha1", algorithm: AlgorithmMD5, sendQop: true, useHA1: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passwords := ports.PasswordStore(dir)
			if tt.useHA1 {
				passwords = ports.PasswordStoreFunc(func(_ context.Context, u string) (string, bool, error) {
					return refMD5(u + ":" + realm + ":hello"), u == "john", nil
				})
			}
			d, err := NewDigestAuth(DigestConfig{
				Qop:       tt.qop,
				Algorithm: tt.algorithm,
				UseHA1:    tt.useHA1,
				Passwords: passwords,
				Nonces:    fixedNonces{nonce: nonce, opaque: opaque},
			})
			require.NoError(t, err)

			ha1 := refMD5("john:" + realm + ":hello")
			if tt.algorithm == AlgorithmMD5Sess {
				ha1 = refMD5(ha1 + ":" + nonce + ":" + cnonce)
			}
			ha2 := refMD5("GET:" + uri)
			fields := map[string]string{
				"username": "john", "realm": realm, "nonce": nonce, "uri": uri, "opaque": opaque,
			}
			if tt.sendQop {
				fields["qop"] = "auth"
				fields["nc"] = nc
				fields["cnonce"] = cnonce
				fields["response"] = refMD5(strings.Join([]string{ha1, nonce, nc, cnonce, "auth", ha2}, ":"))
			} else {
				fields["response"] = refMD5(ha1 + ":" + nonce + ":" + ha2)
			}

			req := httptest.NewRequest(http.MethodGet, uri, nil)
			req.Header.Set("Authorization", digestHeader(fields))
			user, err := d.Authenticate(req)
			require.NoError(t, err)
			assert.Equal(t, "john", user)

			fields["response"] = strings.Repeat("0", 32)
			req.Header.Set("Authorization", digestHeader(fields))
			_, err = d.Authenticate(req)
			var authErr *domainauth.AuthenticationError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, "Invalid response", authErr.Message)
		})
	}
}

func TestDigestAuth_Challenge(t *testing.T) {
	d, err := NewDigestAuth(DigestConfig{
		Passwords: mockauth.NewDirectory(),
		Nonces:    fixedNonces{nonce: "n1", opaque: "o1"},
	})
	require.NoError(t, err)
	h, err := d.Challenge(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, `Digest realm="Authentication Required", nonce="n1", opaque="o1", algorithm="MD5", qop="auth"`, h)

	d, err = NewDigestAuth(DigestConfig{
		Common:    Common{Realm: "r"},
		Qop:       []string{},
		Passwords: mockauth.NewDirectory(),
		Nonces:    fixedNonces{nonce: "n1", opaque: "o1"},
	})
	require.NoError(t, err)
	h, err = d.Challenge(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, `Digest realm="r", nonce="n1", opaque="o1"`, h)
}

func TestNewDigestAuth_Validation(t *testing.T) {
	_, err := NewDigestAuth(DigestConfig{Algorithm: "SHA-256", Passwords: mockauth.NewDirectory()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported algorithm")

	_, err = NewDigestAuth(DigestConfig{})
	require.Error(t, err)
}

func TestDigestAuth_RejectsBadOpaqueAndQop(t *testing.T) {
	dir := mockauth.NewDirectory()
	dir.Add("1", "john", "hello")
	d, err := NewDigestAuth(DigestConfig{Passwords: dir, Nonces: fixedNonces{nonce: "n", opaque: "o"}})
	require.NoError(t, err)

	base := map[string]string{"username": "john", "nonce": "n", "uri": "/", "response": "x", "opaque": "o"}

	tests := []struct {
		name    string
		mutate  func(map[string]string)
		message string
	}{
		{name: "wrong opaque", mutate: func(f map[string]string) { f["opaque"] = "other" }, message: "Invalid opaque"},
		{name: "stale nonce", mutate: func(f map[string]string) { f["nonce"] = "old" }, message: "Invalid opaque"},
		{name: "auth-int", mutate: func(f map[string]string) { f["qop"] = "auth-int"; f["nc"] = "1"; f["cnonce"] = "c" }, message: "Unsupported qop"},
		{name: "missing uri", mutate: func(f map[string]string) { delete(f, "uri") }, message: "Missing digest field uri"},
		{name: "unknown user", mutate: func(f map[string]string) { f["username"] = "ghost" }, message: "Invalid response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := map[string]string{}
			for k, v := range base {
				fields[k] = v
			}
			tt.mutate(fields)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", digestHeader(fields))
			_, err := d.Authenticate(req)
			var authErr *domainauth.AuthenticationError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.message, authErr.Message)
		})
	}
}

func TestDigestAuth_SessionNonceRoundTrip(t *testing.T) {
	dir := mockauth.NewDirectory()
	dir.Add("1", "john", "hello", "user")
	d, err := NewDigestAuth(DigestConfig{Passwords: dir})
	require.NoError(t, err)

	codec, err := session.NewSignedCodec("secret")
	require.NoError(t, err)
	h := session.Middleware(session.NewCookieStore(codec, session.CookieOptions{}), nil)(
		d.LoginRequired()(usernameGreeter(t)),
	)

	first := serve(h, httptest.NewRequest(http.MethodGet, "/api/digest/hi", nil))
	require.Equal(t, http.StatusUnauthorized, first.Code)
	challenge := first.Header().Get("WWW-Authenticate")
	require.True(t, strings.HasPrefix(challenge, "Digest "))
	params := parseDigestParams(strings.TrimPrefix(challenge, "Digest "))
	assert.Len(t, params["nonce"], 32)
	assert.Len(t, params["opaque"], 32)

	cookies := first.Result().Cookies()
	require.NotEmpty(t, cookies)

	fields := map[string]string{
		"username": "john",
		"realm":    params["realm"],
		"nonce":    params["nonce"],
		"uri":      "/api/digest/hi",
		"qop":      "auth",
		"nc":       "00000001",
		"cnonce":   "abc",
		"opaque":   params["opaque"],
	}
	fields["response"] = DigestResponse(DigestInput{
		Username: "john", Realm: params["realm"], Secret: "hello", Algorithm: AlgorithmMD5,
		Method: http.MethodGet, URI: "/api/digest/hi", Nonce: params["nonce"], NC: "00000001", CNonce: "abc", Qop: "auth",
	})

	second := httptest.NewRequest(http.MethodGet, "/api/digest/hi", nil)
	for _, c := range cookies {
		second.AddCookie(c)
	}
	second.Header.Set("Authorization", digestHeader(fields))
	res := serve(h, second)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "Hello john", res.Body.String())

	// Without the session cookie the nonce is unknown.
	third := httptest.NewRequest(http.MethodGet, "/api/digest/hi", nil)
	third.Header.Set("Authorization", digestHeader(fields))
	assert.Equal(t, http.StatusUnauthorized, serve(h, third).Code)
}

// usernameGreeter expects the Digest principal, which is the username.
func usernameGreeter(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ := domainauth.UserFromContext(r.Context())
		name, ok := principal.(string)
		require.True(t, ok, "digest principal is %T", principal)
		_, _ = w.Write([]byte("Hello " + name))
	})
}

func TestParseDigestParams(t *testing.T) {
	got := parseDigestParams(`username="Mufasa", realm="a, b", qop=auth, nc=00000001, uri="/x?y=\"z\""`)
	assert.Equal(t, "Mufasa", got["username"])
	assert.Equal(t, "a, b", got["realm"])
	assert.Equal(t, "auth", got["qop"])
	assert.Equal(t, "00000001", got["nc"])
	assert.Equal(t, `/x?y="z"`, got["uri"])
}

func TestSessionNonceStore(t *testing.T) {
	ctx := context.Background()
	scope := domainauth.NewSession("", 0)
	store := SessionNonceStore{}

	ok, err := store.VerifyNonce(ctx, scope, "")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := store.GenerateNonce(ctx, scope)
	require.NoError(t, err)
	assert.Len(t, n, 32)

	ok, _ = store.VerifyNonce(ctx, scope, n)
	assert.True(t, ok)
	ok, _ = store.VerifyNonce(ctx, scope, strings.Repeat("0", 32))
	assert.False(t, ok)
	ok, _ = store.VerifyOpaque(ctx, scope, n)
	assert.False(t, ok)
}
